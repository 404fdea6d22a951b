package domain

// Post status constants recorded in the post history
const (
	PostStatusQueued     = "QUEUED"
	PostStatusPublishing = "PUBLISHING"
	PostStatusRetrying   = "RETRYING"
	PostStatusPublished  = "PUBLISHED"
	PostStatusFailed     = "FAILED"
	PostStatusDrained    = "DRAINED"
)

// Phase is one step of the publish state machine. Phases run strictly in
// declaration order.
type Phase string

const (
	PhaseSessionEstablished Phase = "SessionEstablished"
	PhaseComposeOpened      Phase = "ComposeOpened"
	PhaseMediaAttached      Phase = "MediaAttached"
	PhaseCaptionEntered     Phase = "CaptionEntered"
	PhaseSubmitted          Phase = "Submitted"
	PhaseVerified           Phase = "Verified"
	PhaseFailed             Phase = "Failed"
)

// Phases lists the non-terminal phases in execution order.
var Phases = []Phase{
	PhaseSessionEstablished,
	PhaseComposeOpened,
	PhaseMediaAttached,
	PhaseCaptionEntered,
	PhaseSubmitted,
	PhaseVerified,
}
