// Package publisher implements the publish state machine: a strictly ordered
// walk through session, compose, media, caption, submit and verification
// phases against one automation surface.
package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/internal/diagnostics"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// SessionStore persists the authenticated session between attempts.
type SessionStore interface {
	Load() (*domain.Session, error)
	Save(session *domain.Session) error
	Clear() error
}

// Machine runs the publish phases. It holds no per-attempt state and can be
// shared by successive attempts.
type Machine struct {
	config   Config
	sessions SessionStore
	sink     diagnostics.Sink
	logger   *slog.Logger
}

// New creates a state machine.
func New(config Config, sessions SessionStore, sink diagnostics.Sink, logger *slog.Logger) *Machine {
	config.applyDefaults()
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if sink == nil {
		sink = diagnostics.Nop{}
	}
	return &Machine{
		config:   config,
		sessions: sessions,
		sink:     sink,
		logger:   logger.With(slog.String("component", "publisher")),
	}
}

// run carries what one attempt learns as it moves through the phases.
type run struct {
	surface automation.Surface
	job     *domain.Job
	attempt *domain.Attempt
	logger  *slog.Logger

	textSurface automation.Selector
	submit      automation.Selector
	signal      string
	reference   string
}

type step struct {
	phase domain.Phase
	fn    func(ctx context.Context, r *run) error
}

// Run executes every phase in order on s. It returns the best-effort external
// reference of the published post, or a *domain.PhaseError naming the phase
// that failed.
func (m *Machine) Run(ctx context.Context, s automation.Surface, job *domain.Job, attempt *domain.Attempt) (string, error) {
	r := &run{
		surface: s,
		job:     job,
		attempt: attempt,
		logger: m.logger.With(
			slog.String("job_id", job.ID),
			slog.Int("attempt", attempt.Number),
		),
	}

	steps := []step{
		{domain.PhaseSessionEstablished, m.establishSession},
		{domain.PhaseComposeOpened, m.openCompose},
		{domain.PhaseMediaAttached, m.attachMedia},
		{domain.PhaseCaptionEntered, m.enterCaption},
		{domain.PhaseSubmitted, m.submitPost},
		{domain.PhaseVerified, m.verifyPublished},
	}

	for _, st := range steps {
		attempt.SetPhase(st.phase)
		started := time.Now()

		if err := st.fn(ctx, r); err != nil {
			phaseErr := domain.NewPhaseError(st.phase, err)
			attempt.Fail(phaseErr)
			r.logger.Warn("Phase failed",
				slog.String("phase", string(st.phase)),
				slog.Any("error", err),
			)
			return "", phaseErr
		}

		elapsed := time.Since(started)
		r.logger.Info("Phase completed",
			slog.String("phase", string(st.phase)),
			slog.Duration("duration", elapsed),
		)
		m.sink.Emit(diagnostics.Event{
			Kind:    diagnostics.KindPhase,
			Level:   diagnostics.LevelInfo,
			Message: fmt.Sprintf("%s in %s", st.phase, elapsed.Round(time.Millisecond)),
			JobID:   job.ID,
			Attempt: attempt.Number,
			Phase:   st.phase,
		})
	}

	return r.reference, nil
}

func (m *Machine) url(path string) string {
	return m.config.BaseURL + path
}

// warn reports a soft failure together with a best-effort screenshot.
func (m *Machine) warn(ctx context.Context, r *run, kind diagnostics.Kind, message string) {
	r.logger.Warn(message, slog.String("phase", string(r.attempt.Phase())))

	shot, err := r.surface.Screenshot(ctx)
	if err != nil {
		r.logger.Debug("Screenshot failed", slog.Any("error", err))
	}

	m.sink.Emit(diagnostics.Event{
		Kind:       kind,
		Level:      diagnostics.LevelWarning,
		Message:    message,
		JobID:      r.job.ID,
		Attempt:    r.attempt.Number,
		Phase:      r.attempt.Phase(),
		Screenshot: shot,
		Caption:    message,
	})
}
