package worker

import (
	"context"
	"log/slog"
	"sync"
)

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Queue         *Queue
	Ingest        IngestSource // nil disables broker ingest
	ConsumerTag   string
	PrefetchCount int
	MaxImages     int
}

// Worker runs the publish queue and, when configured, the ingest consumer
type Worker struct {
	logger        *slog.Logger
	queue         *Queue
	ingest        IngestSource
	consumerTag   string
	prefetchCount int
	maxImages     int
	wg            sync.WaitGroup
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = 1
	}
	tag := cfg.ConsumerTag
	if tag == "" {
		tag = "relay-poster"
	}

	return &Worker{
		logger:        cfg.Logger.With(slog.String("component", "worker")),
		queue:         cfg.Queue,
		ingest:        cfg.Ingest,
		consumerTag:   tag,
		prefetchCount: prefetch,
		maxImages:     cfg.MaxImages,
	}
}

// Start runs the queue and ingest loops and blocks until ctx is cancelled
// and both have returned
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker", slog.Bool("ingest", w.ingest != nil))

	if w.ingest != nil {
		deliveries, err := w.setupConsumer()
		if err != nil {
			return err
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.consumeIngest(ctx, deliveries)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.queue.Run(ctx)
	}()

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	w.wg.Wait()
	w.logger.Info("Worker stopped")
	return nil
}

// Stop refuses new jobs and drains the backlog. It returns the number of
// jobs that were removed unpublished.
func (w *Worker) Stop(ctx context.Context) int {
	w.queue.Close()
	drained := w.queue.Drain(ctx)
	w.logger.Info("Worker drained", slog.Int("drained", drained))
	return drained
}
