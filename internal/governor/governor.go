// Package governor wraps the publish state machine in a hard deadline and a
// bounded number of full-session attempts.
package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/internal/diagnostics"
	"github.com/cuongbtq/relay-poster/internal/staging"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
	"github.com/cuongbtq/relay-poster/shared/backoff"
)

// deadlineScreenshotBudget caps the failure screenshot once the overall
// deadline has fired.
const deadlineScreenshotBudget = 100 * time.Millisecond

// ErrShutdown is returned for attempts refused or cut short by Shutdown.
var ErrShutdown = domain.ErrShutdown

// Runner drives one attempt of the state machine on a surface.
type Runner interface {
	Run(ctx context.Context, s automation.Surface, job *domain.Job, attempt *domain.Attempt) (string, error)
}

type Config struct {
	MaxAttempts       int
	RetryDelay        time.Duration
	OverallTimeout    time.Duration
	TeardownTimeout   time.Duration
	ScreenshotTimeout time.Duration
}

// Governor owns the attempt lifecycle of a job.
type Governor struct {
	config   Config
	launcher automation.Launcher
	runner   Runner
	sink     diagnostics.Sink
	logger   *slog.Logger
	cleanup  func(paths []string) (int, error)

	mu     sync.Mutex
	active *lease
	closed bool
}

func New(config Config, launcher automation.Launcher, runner Runner, sink diagnostics.Sink, logger *slog.Logger) *Governor {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	if config.OverallTimeout <= 0 {
		config.OverallTimeout = 120 * time.Second
	}
	if config.TeardownTimeout <= 0 {
		config.TeardownTimeout = 10 * time.Second
	}
	if config.ScreenshotTimeout <= 0 {
		config.ScreenshotTimeout = 5 * time.Second
	}
	if sink == nil {
		sink = diagnostics.Nop{}
	}

	return &Governor{
		config:   config,
		launcher: launcher,
		runner:   runner,
		sink:     sink,
		logger:   logger.With(slog.String("component", "governor")),
		cleanup:  staging.Remove,
	}
}

// Publish runs the job under the overall deadline, retrying whole attempts
// with linear backoff. It always returns a result; it never panics on a
// misbehaving surface.
func (g *Governor) Publish(ctx context.Context, job *domain.Job) domain.PublishResult {
	ctx, cancel := context.WithTimeout(ctx, g.config.OverallTimeout)
	defer cancel()

	deadline, _ := ctx.Deadline()
	logger := g.logger.With(slog.String("job_id", job.ID))
	started := time.Now()

	var lastErr error
	attempts := 0
	for n := 1; n <= g.config.MaxAttempts; n++ {
		attempts = n
		ref, err := g.runAttempt(ctx, job, n, deadline)
		if err == nil {
			g.onSuccess(job, n, ref, logger)
			return domain.PublishResult{Success: true, ExternalRef: ref, Attempts: n}
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, ErrShutdown) {
			break
		}
		if g.isClosed() {
			lastErr = fmt.Errorf("%w: %v", ErrShutdown, err)
			break
		}
		if n == g.config.MaxAttempts {
			break
		}

		delay := backoff.Linear(g.config.RetryDelay, n)
		g.sink.Emit(diagnostics.Event{
			Kind:    diagnostics.KindSessionReset,
			Level:   diagnostics.LevelInfo,
			Message: fmt.Sprintf("session torn down, retrying in %s", delay),
			JobID:   job.ID,
			Attempt: n,
		})
		logger.Info("Retrying publish with a fresh session",
			slog.Int("attempt", n),
			slog.Duration("delay", delay),
		)

		if err := backoff.Sleep(ctx, delay); err != nil {
			break
		}
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && domain.Classify(lastErr) != domain.KindTimeout {
		lastErr = fmt.Errorf("%w after %s: %v", domain.ErrTimeout, g.config.OverallTimeout, lastErr)
	}

	logger.Error("Publish failed",
		slog.Int("attempts", attempts),
		slog.Duration("elapsed", time.Since(started)),
		slog.String("kind", string(domain.Classify(lastErr))),
		slog.Any("error", lastErr),
	)
	return domain.PublishResult{Err: lastErr, Attempts: attempts}
}

type outcome struct {
	ref string
	err error
}

// runAttempt launches a fresh surface, runs the machine on it and always
// tears the surface down before returning.
func (g *Governor) runAttempt(ctx context.Context, job *domain.Job, n int, deadline time.Time) (string, error) {
	attempt := domain.NewAttempt(n, deadline)
	g.sink.Emit(diagnostics.Event{
		Kind:    diagnostics.KindAttemptStarted,
		Level:   diagnostics.LevelInfo,
		Message: fmt.Sprintf("attempt %d/%d started", n, g.config.MaxAttempts),
		JobID:   job.ID,
		Attempt: n,
	})

	surface, err := g.launcher.Launch(ctx)
	if err != nil {
		err = domain.NewPhaseError(attempt.Phase(), fmt.Errorf("launch surface: %w", err))
		attempt.Fail(err)
		g.reportFailure(job, attempt, nil, err, 0)
		return "", err
	}

	l, err := g.acquire(surface)
	if err != nil {
		return "", err
	}
	defer g.release(l)

	done := make(chan outcome, 1)
	go func() {
		ref, err := g.runner.Run(ctx, surface, job, attempt)
		done <- outcome{ref: ref, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			attempt.Fail(out.err)
			g.reportFailure(job, attempt, surface, out.err, g.config.ScreenshotTimeout)
		}
		return out.ref, out.err
	case <-ctx.Done():
		cause := ctx.Err()
		if errors.Is(cause, context.DeadlineExceeded) {
			cause = fmt.Errorf("%w: overall deadline of %s exceeded", domain.ErrTimeout, g.config.OverallTimeout)
		}
		err := domain.NewPhaseError(attempt.Phase(), cause)
		attempt.Fail(err)
		// The deadline has already passed; the screenshot gets only a short slice.
		g.reportFailure(job, attempt, surface, err, min(g.config.ScreenshotTimeout, deadlineScreenshotBudget))
		return "", err
	}
}

// reportFailure logs and emits attempt_failed. A screenshot is attached when
// surface is set and shotTimeout is positive.
func (g *Governor) reportFailure(job *domain.Job, attempt *domain.Attempt, surface automation.Surface, err error, shotTimeout time.Duration) {
	var shot []byte
	if surface != nil && shotTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), shotTimeout)
		var shotErr error
		shot, shotErr = surface.Screenshot(ctx)
		cancel()
		if shotErr != nil {
			g.logger.Debug("Failure screenshot unavailable", slog.Any("error", shotErr))
		}
	}

	phase := attempt.Phase()
	if p, ok := domain.PhaseOf(err); ok {
		phase = p
	}

	g.logger.Warn("Publish attempt failed",
		slog.String("job_id", job.ID),
		slog.Int("attempt", attempt.Number),
		slog.String("phase", string(phase)),
		slog.String("kind", string(domain.Classify(err))),
		slog.Any("error", err),
	)
	g.sink.Emit(diagnostics.Event{
		Kind:       diagnostics.KindAttemptFailed,
		Level:      diagnostics.LevelError,
		Message:    fmt.Sprintf("attempt %d failed in %s", attempt.Number, phase),
		JobID:      job.ID,
		Attempt:    attempt.Number,
		Phase:      phase,
		Error:      err.Error(),
		Screenshot: shot,
		Caption:    job.Caption,
	})
}

func (g *Governor) onSuccess(job *domain.Job, n int, ref string, logger *slog.Logger) {
	logger.Info("Publish succeeded",
		slog.Int("attempt", n),
		slog.String("reference", ref),
	)
	g.sink.Emit(diagnostics.Event{
		Kind:      diagnostics.KindPublished,
		Level:     diagnostics.LevelSuccess,
		Message:   fmt.Sprintf("published on attempt %d", n),
		JobID:     job.ID,
		Attempt:   n,
		Phase:     domain.PhaseVerified,
		Reference: ref,
		Caption:   job.Caption,
	})

	removed, err := g.cleanup(job.Images)
	if err != nil {
		logger.Warn("Failed to remove staged media",
			slog.Int("removed", removed),
			slog.Any("error", err),
		)
		g.sink.Emit(diagnostics.Event{
			Kind:    diagnostics.KindMediaCleanup,
			Level:   diagnostics.LevelWarning,
			Message: "staged media cleanup incomplete",
			JobID:   job.ID,
			Error:   err.Error(),
		})
		return
	}
	logger.Info("Staged media removed", slog.Int("removed", removed))
}
