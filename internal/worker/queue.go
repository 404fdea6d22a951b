package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/relay-poster/internal/diagnostics"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// Publisher publishes one job and reports the outcome.
type Publisher interface {
	Publish(ctx context.Context, job *domain.Job) domain.PublishResult
}

// History records job lifecycle transitions.
type History interface {
	RecordQueued(ctx context.Context, job *domain.Job) error
	UpdateStatus(ctx context.Context, update domain.StatusUpdate) error
}

// QueueConfig holds the queue's pacing and retry budget.
type QueueConfig struct {
	PostDelay  time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// Status is a snapshot of the queue.
type Status struct {
	Length           int       `json:"length"`
	Processing       bool      `json:"processing"`
	NextEligibleTime time.Time `json:"next_eligible_time"`
}

// Queue is a FIFO backlog served by a single worker, so at most one job is
// ever being published.
type Queue struct {
	config    QueueConfig
	publisher Publisher
	sink      diagnostics.Sink
	history   History
	logger    *slog.Logger

	mu           sync.Mutex
	backlog      []*domain.Job
	processing   bool
	nextEligible time.Time
	closed       bool
	wake         chan struct{}
}

// NewQueue creates a queue. history may be nil.
func NewQueue(config QueueConfig, publisher Publisher, sink diagnostics.Sink, history History, logger *slog.Logger) *Queue {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if sink == nil {
		sink = diagnostics.Nop{}
	}
	if history == nil {
		history = nopHistory{}
	}

	return &Queue{
		config:    config,
		publisher: publisher,
		sink:      sink,
		history:   history,
		logger:    logger.With(slog.String("component", "queue")),
		wake:      make(chan struct{}, 1),
	}
}

// Enqueue appends job to the backlog and wakes the worker if it is idle.
func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	if job == nil || len(job.Images) == 0 {
		return fmt.Errorf("%w: job has no images", domain.ErrInvalidJob)
	}

	if q.isClosed() {
		return domain.ErrQueueClosed
	}

	// The queued record must exist before the worker can pick the job up.
	if err := q.history.RecordQueued(ctx, job); err != nil {
		q.logger.Warn("Failed to record queued job",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return domain.ErrQueueClosed
	}
	q.backlog = append(q.backlog, job)
	length := len(q.backlog)
	q.mu.Unlock()

	q.signal()

	q.logger.Info("Job enqueued",
		slog.String("job_id", job.ID),
		slog.Int("images", len(job.Images)),
		slog.Int("backlog", length),
	)
	q.sink.Emit(diagnostics.Event{
		Kind:    diagnostics.KindJobEnqueued,
		Level:   diagnostics.LevelInfo,
		Message: fmt.Sprintf("job queued at position %d", length),
		JobID:   job.ID,
	})

	return nil
}

// Status returns the current backlog length, whether a job is in flight and
// when the next job may start.
func (q *Queue) Status() Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Status{
		Length:           len(q.backlog),
		Processing:       q.processing,
		NextEligibleTime: q.nextEligible,
	}
}

// Drain atomically empties the backlog and returns how many jobs it removed.
// The job in flight, if any, is not affected.
func (q *Queue) Drain(ctx context.Context) int {
	q.mu.Lock()
	drained := q.backlog
	q.backlog = nil
	q.mu.Unlock()

	for _, job := range drained {
		err := q.history.UpdateStatus(ctx, domain.StatusUpdate{
			JobID:        job.ID,
			Status:       domain.PostStatusDrained,
			QueueRetries: job.AttemptCount,
		})
		if err != nil {
			q.logger.Warn("Failed to record drained job",
				slog.String("job_id", job.ID),
				slog.Any("error", err),
			)
		}
	}

	if len(drained) > 0 {
		q.logger.Info("Backlog drained", slog.Int("removed", len(drained)))
	}
	return len(drained)
}

// Close stops accepting new jobs.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

func (q *Queue) isClosed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Run serves the backlog until ctx is cancelled.
func (q *Queue) Run(ctx context.Context) {
	q.logger.Info("Queue worker started",
		slog.Duration("post_delay", q.config.PostDelay),
		slog.Int("max_retries", q.config.MaxRetries),
	)

	for {
		if ctx.Err() != nil {
			q.logger.Info("Queue worker stopped")
			return
		}

		job, wait := q.next()
		if job != nil {
			if !q.process(ctx, job) {
				q.logger.Info("Queue worker stopped")
				return
			}
			continue
		}

		if wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				q.logger.Info("Queue worker stopped")
				return
			case <-q.wake:
				timer.Stop()
			case <-timer.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			q.logger.Info("Queue worker stopped")
			return
		case <-q.wake:
		}
	}
}

// next pops the head job if it is eligible to start. Otherwise it returns how
// long to wait, zero meaning until woken.
func (q *Queue) next() (*domain.Job, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.backlog) == 0 {
		return nil, 0
	}
	if wait := time.Until(q.nextEligible); wait > 0 {
		return nil, wait
	}

	job := q.backlog[0]
	q.backlog[0] = nil
	q.backlog = q.backlog[1:]
	q.processing = true
	return job, 0
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

type nopHistory struct{}

func (nopHistory) RecordQueued(context.Context, *domain.Job) error         { return nil }
func (nopHistory) UpdateStatus(context.Context, domain.StatusUpdate) error { return nil }
