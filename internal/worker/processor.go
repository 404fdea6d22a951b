package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/relay-poster/internal/diagnostics"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
	"github.com/cuongbtq/relay-poster/shared/backoff"
)

// process publishes one job and decides what happens to it next: done,
// retried at the front of the backlog, or dropped. It returns false when the
// publish was cut short by shutdown and the loop should stop.
func (q *Queue) process(ctx context.Context, job *domain.Job) bool {
	logger := q.logger.With(slog.String("job_id", job.ID))
	logger.Info("Processing job",
		slog.Int("queue_retries", job.AttemptCount),
		slog.Duration("waited", time.Since(job.EnqueuedAt)),
	)

	q.record(ctx, domain.StatusUpdate{
		JobID:        job.ID,
		Status:       domain.PostStatusPublishing,
		QueueRetries: job.AttemptCount,
	})

	result := q.publisher.Publish(ctx, job)

	if result.Success {
		q.finish(func() {
			// spacing only matters if another job is waiting
			if len(q.backlog) > 0 {
				q.nextEligible = time.Now().Add(q.config.PostDelay)
			} else {
				q.nextEligible = time.Time{}
			}
		})

		logger.Info("Job published",
			slog.String("reference", result.ExternalRef),
			slog.Int("attempts", result.Attempts),
		)
		q.record(ctx, domain.StatusUpdate{
			JobID:        job.ID,
			Status:       domain.PostStatusPublished,
			QueueRetries: job.AttemptCount,
			Attempts:     result.Attempts,
			ExternalRef:  result.ExternalRef,
		})
		return true
	}

	if ctx.Err() != nil || errors.Is(result.Err, domain.ErrShutdown) {
		// interrupted by shutdown, leave it for Drain
		q.finish(func() {
			q.backlog = append([]*domain.Job{job}, q.backlog...)
		})
		logger.Info("Job interrupted by shutdown, returned to backlog")
		return false
	}

	kind := domain.Classify(result.Err)
	phase, _ := domain.PhaseOf(result.Err)
	errMsg := ""
	if result.Err != nil {
		errMsg = result.Err.Error()
	}

	if job.AttemptCount < q.config.MaxRetries {
		job.AttemptCount++
		delay := backoff.Linear(q.config.RetryDelay, job.AttemptCount)

		q.finish(func() {
			q.backlog = append([]*domain.Job{job}, q.backlog...)
			q.nextEligible = time.Now().Add(delay)
		})

		logger.Warn("Job failed, retrying",
			slog.Int("queue_retry", job.AttemptCount),
			slog.Int("max_retries", q.config.MaxRetries),
			slog.Duration("delay", delay),
			slog.String("kind", string(kind)),
			slog.Any("error", result.Err),
		)
		q.sink.Emit(diagnostics.Event{
			Kind:    diagnostics.KindJobRetry,
			Level:   diagnostics.LevelWarning,
			Message: fmt.Sprintf("retry %d/%d in %s", job.AttemptCount, q.config.MaxRetries, delay),
			JobID:   job.ID,
			Attempt: result.Attempts,
			Phase:   phase,
			Error:   errMsg,
		})
		q.record(ctx, domain.StatusUpdate{
			JobID:        job.ID,
			Status:       domain.PostStatusRetrying,
			QueueRetries: job.AttemptCount,
			Attempts:     result.Attempts,
			ErrorKind:    kind,
			ErrorMessage: errMsg,
		})
		q.signal()
		return true
	}

	q.finish(func() {
		if len(q.backlog) > 0 {
			q.nextEligible = time.Now().Add(q.config.PostDelay)
		} else {
			q.nextEligible = time.Time{}
		}
	})

	logger.Error("Job dropped after exhausting retries",
		slog.Int("queue_retries", job.AttemptCount),
		slog.String("kind", string(kind)),
		slog.Any("error", result.Err),
	)
	q.sink.Emit(diagnostics.Event{
		Kind:    diagnostics.KindJobDropped,
		Level:   diagnostics.LevelError,
		Message: fmt.Sprintf("job dropped after %d queue retries", job.AttemptCount),
		JobID:   job.ID,
		Attempt: result.Attempts,
		Phase:   phase,
		Error:   errMsg,
		Caption: job.Caption,
	})
	q.record(ctx, domain.StatusUpdate{
		JobID:        job.ID,
		Status:       domain.PostStatusFailed,
		QueueRetries: job.AttemptCount,
		Attempts:     result.Attempts,
		ErrorKind:    kind,
		ErrorMessage: errMsg,
	})
	return true
}

// finish clears the in-flight flag and applies fn under the same lock.
func (q *Queue) finish(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.processing = false
	fn()
}

func (q *Queue) record(ctx context.Context, update domain.StatusUpdate) {
	// history writes still land during shutdown
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := q.history.UpdateStatus(ctx, update); err != nil {
		q.logger.Warn("Failed to record job status",
			slog.String("job_id", update.JobID),
			slog.String("status", update.Status),
			slog.Any("error", err),
		)
	}
}
