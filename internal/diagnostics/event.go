// Package diagnostics carries status and failure events out of the publish
// pipeline. Delivery is best-effort: events are buffered, rate limited and
// fanned out to emitters without ever blocking the caller.
package diagnostics

import (
	"time"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// Level is the severity attached to an event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Kind identifies what happened.
type Kind string

const (
	KindJobEnqueued     Kind = "job_enqueued"
	KindAttemptStarted  Kind = "attempt_started"
	KindPhase           Kind = "phase"
	KindMediaUndercount Kind = "media_undercount"
	KindCaptionMismatch Kind = "caption_mismatch"
	KindAttemptFailed   Kind = "attempt_failed"
	KindSessionReset    Kind = "session_reset"
	KindPublished       Kind = "published"
	KindMediaCleanup    Kind = "media_cleanup"
	KindJobRetry        Kind = "job_retry"
	KindJobDropped      Kind = "job_dropped"
	KindShutdown        Kind = "shutdown"
)

// Event is a single diagnostic record. Screenshot is optional and never
// serialized with the event itself.
type Event struct {
	Kind       Kind         `json:"kind"`
	Level      Level        `json:"level"`
	Message    string       `json:"message"`
	Timestamp  time.Time    `json:"timestamp"`
	JobID      string       `json:"job_id,omitempty"`
	Attempt    int          `json:"attempt,omitempty"`
	Phase      domain.Phase `json:"phase,omitempty"`
	Error      string       `json:"error,omitempty"`
	Reference  string       `json:"reference,omitempty"`
	Screenshot []byte       `json:"-"`
	Caption    string       `json:"caption,omitempty"`
}

// HasScreenshot reports whether the event carries image bytes.
func (e Event) HasScreenshot() bool {
	return len(e.Screenshot) > 0
}

// Sink accepts events. Emit must not block.
type Sink interface {
	Emit(event Event)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(Event) {}
