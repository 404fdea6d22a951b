package domain

import (
	"sync"
	"time"
)

// Attempt is the run-scoped state of one state machine run. It is shared
// between the governor and the running machine, so access goes through the
// mutex.
type Attempt struct {
	Number    int
	StartedAt time.Time
	Deadline  time.Time

	mu        sync.Mutex
	phase     Phase
	lastError error
}

// NewAttempt starts attempt number n
func NewAttempt(n int, deadline time.Time) *Attempt {
	return &Attempt{
		Number:    n,
		StartedAt: time.Now(),
		Deadline:  deadline,
		phase:     PhaseSessionEstablished,
	}
}

func (a *Attempt) SetPhase(p Phase) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.phase = p
}

func (a *Attempt) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

func (a *Attempt) Fail(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastError = err
}

func (a *Attempt) LastError() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.lastError
}
