package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthFailure is returned when no authenticated session could be established
	ErrAuthFailure = errors.New("authentication failed")

	// ErrComposeNotFound is returned when every compose strategy was exhausted
	ErrComposeNotFound = errors.New("compose surface not found")

	// ErrMediaAttachFailed is returned when media could not be handed to the page
	ErrMediaAttachFailed = errors.New("media attach failed")

	// ErrCaptionVerificationFailed marks a caption readback mismatch (soft unless strict)
	ErrCaptionVerificationFailed = errors.New("caption verification failed")

	// ErrSubmitFailed is returned when no activation technique was confirmed
	ErrSubmitFailed = errors.New("submit failed")

	// ErrVerificationTimeout is returned when no success signal appeared in time
	ErrVerificationTimeout = errors.New("publish verification timed out")

	// ErrTimeout is returned when the governor's overall deadline elapsed
	ErrTimeout = errors.New("publish timed out")

	// ErrIOFailure is returned when staged media cannot be accessed
	ErrIOFailure = errors.New("staging io failure")

	// ErrInvalidJob is returned for jobs the queue refuses to accept
	ErrInvalidJob = errors.New("invalid job")

	// ErrQueueClosed is returned when enqueueing after shutdown
	ErrQueueClosed = errors.New("queue closed")

	// ErrShutdown marks a publish cut short by process shutdown
	ErrShutdown = errors.New("publisher shut down")

	// ErrPostNotFound is returned when a post history record does not exist
	ErrPostNotFound = errors.New("post not found")
)

// ErrorKind names a failure category of the publish taxonomy
type ErrorKind string

const (
	KindNone                      ErrorKind = ""
	KindAuthFailure               ErrorKind = "AuthFailure"
	KindComposeNotFound           ErrorKind = "ComposeNotFound"
	KindMediaAttachFailed         ErrorKind = "MediaAttachFailed"
	KindCaptionVerificationFailed ErrorKind = "CaptionVerificationFailed"
	KindSubmitFailed              ErrorKind = "SubmitFailed"
	KindVerificationTimeout       ErrorKind = "VerificationTimeout"
	KindTimeout                   ErrorKind = "Timeout"
	KindIOFailure                 ErrorKind = "IOFailure"
	KindUnknown                   ErrorKind = "Unknown"
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrTimeout, KindTimeout},
	{ErrAuthFailure, KindAuthFailure},
	{ErrComposeNotFound, KindComposeNotFound},
	{ErrMediaAttachFailed, KindMediaAttachFailed},
	{ErrCaptionVerificationFailed, KindCaptionVerificationFailed},
	{ErrSubmitFailed, KindSubmitFailed},
	{ErrVerificationTimeout, KindVerificationTimeout},
	{ErrIOFailure, KindIOFailure},
}

// Classify maps an error onto the publish taxonomy
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindUnknown
}

// PhaseError wraps a failure with the phase it happened in
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("phase %s: %s", e.Phase, e.Err.Error())
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// NewPhaseError wraps err with the phase it happened in
func NewPhaseError(phase Phase, err error) error {
	return &PhaseError{Phase: phase, Err: err}
}

// PhaseOf returns the phase recorded in err, if any
func PhaseOf(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}
