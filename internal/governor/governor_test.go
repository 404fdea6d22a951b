package governor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/internal/diagnostics"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubSurface only tracks teardown and screenshots; the runner never touches it.
type stubSurface struct {
	automation.Surface

	// hangShots makes Screenshot wait for its context.
	hangShots bool

	mu     sync.Mutex
	closes int
	shots  int
}

func (s *stubSurface) Screenshot(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	s.shots++
	s.mu.Unlock()
	if s.hangShots {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return []byte("png"), nil
}

func (s *stubSurface) Close(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *stubSurface) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type stubLauncher struct {
	mu        sync.Mutex
	surfaces  []*stubSurface
	fail      error
	hangShots bool
}

func (l *stubLauncher) Launch(context.Context) (automation.Surface, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return nil, l.fail
	}
	s := &stubSurface{hangShots: l.hangShots}
	l.surfaces = append(l.surfaces, s)
	return s, nil
}

func (l *stubLauncher) launched() []*stubSurface {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*stubSurface(nil), l.surfaces...)
}

// scriptedRunner fails until attempt succeedOn, or blocks when block is set.
type scriptedRunner struct {
	succeedOn int
	failWith  error
	block     chan struct{}
	started   chan int
}

func (r *scriptedRunner) Run(_ context.Context, _ automation.Surface, _ *domain.Job, attempt *domain.Attempt) (string, error) {
	if r.started != nil {
		r.started <- attempt.Number
	}
	if r.block != nil {
		attempt.SetPhase(domain.PhaseSubmitted)
		<-r.block
		return "", errors.New("unblocked")
	}
	if attempt.Number == r.succeedOn {
		return "https://x.test/me/status/1", nil
	}
	err := r.failWith
	if err == nil {
		err = domain.ErrSubmitFailed
	}
	return "", domain.NewPhaseError(domain.PhaseSubmitted, err)
}

func newJob(t *testing.T) *domain.Job {
	t.Helper()
	p := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o600))
	job, err := domain.NewJob([]string{p}, "caption", 4)
	require.NoError(t, err)
	return job
}

func newGovernor(cfg Config, launcher automation.Launcher, runner Runner, sink diagnostics.Sink) *Governor {
	return New(cfg, launcher, runner, sink, discardLogger())
}

func TestPublish_SucceedsOnAttemptK(t *testing.T) {
	for k := 1; k <= 3; k++ {
		t.Run(string(rune('0'+k)), func(t *testing.T) {
			launcher := &stubLauncher{}
			sink := diagnostics.NewRecorder()
			g := newGovernor(Config{MaxAttempts: 3, RetryDelay: time.Millisecond, OverallTimeout: time.Second},
				launcher, &scriptedRunner{succeedOn: k}, sink)

			job := newJob(t)
			result := g.Publish(context.Background(), job)

			require.True(t, result.Success, "error: %v", result.Err)
			assert.Equal(t, k, result.Attempts)
			assert.Equal(t, "https://x.test/me/status/1", result.ExternalRef)

			assert.Equal(t, k-1, sink.Count(diagnostics.KindSessionReset))
			assert.Equal(t, k-1, sink.Count(diagnostics.KindAttemptFailed))
			assert.Equal(t, 1, sink.Count(diagnostics.KindPublished))

			surfaces := launcher.launched()
			require.Len(t, surfaces, k)
			for _, s := range surfaces {
				assert.Equal(t, 1, s.closeCount())
			}

			_, err := os.Stat(job.Images[0])
			assert.True(t, os.IsNotExist(err), "staged media removed after success")
		})
	}
}

func TestPublish_AllAttemptsFail(t *testing.T) {
	launcher := &stubLauncher{}
	sink := diagnostics.NewRecorder()
	g := newGovernor(Config{MaxAttempts: 3, RetryDelay: time.Millisecond, OverallTimeout: time.Second},
		launcher, &scriptedRunner{failWith: domain.ErrComposeNotFound}, sink)

	job := newJob(t)
	result := g.Publish(context.Background(), job)

	assert.False(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, domain.KindComposeNotFound, domain.Classify(result.Err))
	assert.Equal(t, 2, sink.Count(diagnostics.KindSessionReset))
	assert.Equal(t, 3, sink.Count(diagnostics.KindAttemptFailed))
	assert.Zero(t, sink.Count(diagnostics.KindPublished))

	for _, e := range sink.Events() {
		if e.Kind == diagnostics.KindAttemptFailed {
			assert.Equal(t, domain.PhaseSubmitted, e.Phase)
			assert.True(t, e.HasScreenshot())
		}
	}
	for _, s := range launcher.launched() {
		assert.Equal(t, 1, s.closeCount())
	}

	_, err := os.Stat(job.Images[0])
	assert.NoError(t, err, "staged media kept after failure")
}

func TestPublish_LinearBackoff(t *testing.T) {
	g := newGovernor(Config{MaxAttempts: 3, RetryDelay: 20 * time.Millisecond, OverallTimeout: time.Second},
		&stubLauncher{}, &scriptedRunner{succeedOn: 3}, nil)

	start := time.Now()
	result := g.Publish(context.Background(), newJob(t))
	require.True(t, result.Success)

	// 20ms after attempt 1, 40ms after attempt 2
	assert.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestPublish_DeadlineWithBlockedPhase(t *testing.T) {
	launcher := &stubLauncher{hangShots: true}
	sink := diagnostics.NewRecorder()
	runner := &scriptedRunner{block: make(chan struct{})}
	defer close(runner.block)

	timeout := 50 * time.Millisecond
	g := newGovernor(Config{
		MaxAttempts:       3,
		RetryDelay:        time.Millisecond,
		OverallTimeout:    timeout,
		ScreenshotTimeout: 5 * time.Second,
	}, launcher, runner, sink)

	start := time.Now()
	result := g.Publish(context.Background(), newJob(t))
	elapsed := time.Since(start)

	assert.False(t, result.Success)
	assert.Equal(t, domain.KindTimeout, domain.Classify(result.Err))
	assert.Less(t, elapsed, timeout+250*time.Millisecond)

	phase, ok := domain.PhaseOf(result.Err)
	require.True(t, ok)
	assert.Equal(t, domain.PhaseSubmitted, phase)

	surfaces := launcher.launched()
	require.Len(t, surfaces, 1)
	assert.Equal(t, 1, surfaces[0].closeCount(), "hung surface torn down")
	assert.Equal(t, 1, sink.Count(diagnostics.KindAttemptFailed))
	for _, ev := range sink.Events() {
		if ev.Kind == diagnostics.KindAttemptFailed {
			assert.False(t, ev.HasScreenshot())
		}
	}
}

func TestPublish_LaunchFailure(t *testing.T) {
	sink := diagnostics.NewRecorder()
	g := newGovernor(Config{MaxAttempts: 2, RetryDelay: time.Millisecond, OverallTimeout: time.Second},
		&stubLauncher{fail: errors.New("no chrome")}, &scriptedRunner{succeedOn: 1}, sink)

	result := g.Publish(context.Background(), newJob(t))

	assert.False(t, result.Success)
	assert.Equal(t, 2, result.Attempts)
	assert.Equal(t, domain.KindUnknown, domain.Classify(result.Err))
	assert.Equal(t, 2, sink.Count(diagnostics.KindAttemptFailed))
}

func TestShutdown_TearsDownActiveSurfaceOnce(t *testing.T) {
	launcher := &stubLauncher{}
	runner := &scriptedRunner{block: make(chan struct{}), started: make(chan int, 1)}
	g := newGovernor(Config{MaxAttempts: 3, OverallTimeout: time.Second}, launcher, runner, nil)

	job := newJob(t)
	done := make(chan domain.PublishResult, 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { done <- g.Publish(ctx, job) }()

	<-runner.started
	g.Shutdown()
	g.Shutdown()

	surfaces := launcher.launched()
	require.Len(t, surfaces, 1)
	assert.Equal(t, 1, surfaces[0].closeCount())

	cancel()
	close(runner.block)
	result := <-done
	assert.False(t, result.Success)
	assert.Equal(t, 1, surfaces[0].closeCount(), "release after shutdown does not close again")

	// no new attempts once shut down
	result = g.Publish(context.Background(), newJob(t))
	assert.ErrorIs(t, result.Err, ErrShutdown)
	assert.Equal(t, 1, result.Attempts)
	for _, s := range launcher.launched() {
		assert.Equal(t, 1, s.closeCount())
	}
}

func TestShutdown_AttemptFailingAfterTeardownIsNotRetried(t *testing.T) {
	launcher := &stubLauncher{}
	sink := diagnostics.NewRecorder()
	runner := &scriptedRunner{block: make(chan struct{}), started: make(chan int, 1)}
	g := newGovernor(Config{MaxAttempts: 3, OverallTimeout: time.Second}, launcher, runner, sink)

	job := newJob(t)
	done := make(chan domain.PublishResult, 1)
	go func() { done <- g.Publish(context.Background(), job) }()

	<-runner.started
	g.Shutdown()
	close(runner.block)

	result := <-done
	assert.False(t, result.Success)
	assert.ErrorIs(t, result.Err, ErrShutdown)
	assert.Equal(t, 1, result.Attempts)
	assert.Len(t, launcher.launched(), 1)
	assert.Equal(t, 0, sink.Count(diagnostics.KindSessionReset))
}
