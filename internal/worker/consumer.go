package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// IngestSource delivers producer messages from the broker.
type IngestSource interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// setupConsumer sets QoS and starts consuming the ingest queue
func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	if err := w.ingest.Qos(w.prefetchCount); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.ingest.Consume(w.consumerTag)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Ingest consumer started",
		slog.String("consumer_tag", w.consumerTag),
		slog.Int("prefetch_count", w.prefetchCount),
	)
	return deliveries, nil
}

// consumeIngest turns deliveries into queued jobs until ctx is cancelled or
// the broker closes the channel
func (w *Worker) consumeIngest(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Ingest consumer stopped - context canceled")
			return

		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}
			w.handleDelivery(ctx, delivery)
		}
	}
}

func (w *Worker) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	var msg domain.IngestMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil {
		w.logger.Error("Failed to parse ingest message",
			slog.String("error", err.Error()),
			slog.String("body", string(delivery.Body)),
		)
		w.nack(delivery, false)
		return
	}

	job, err := domain.NewJob(msg.Images, msg.Caption, w.maxImages)
	if err != nil {
		w.logger.Error("Rejected ingest message",
			slog.String("error", err.Error()),
			slog.Int("images", len(msg.Images)),
		)
		w.nack(delivery, false)
		return
	}

	if len(msg.Images) > len(job.Images) {
		w.logger.Warn("Too many images, extra images ignored",
			slog.String("job_id", job.ID),
			slog.Int("received", len(msg.Images)),
			slog.Int("kept", len(job.Images)),
		)
	}

	if err := w.queue.Enqueue(ctx, job); err != nil {
		// a closed queue is shutdown, let another consumer take it
		requeue := errors.Is(err, domain.ErrQueueClosed)
		w.logger.Error("Failed to enqueue ingested job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)
		w.nack(delivery, requeue)
		return
	}

	if err := delivery.Ack(false); err != nil {
		w.logger.Error("Failed to ACK message",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (w *Worker) nack(delivery amqp.Delivery, requeue bool) {
	if err := delivery.Nack(false, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.String("error", err.Error()),
			slog.Bool("requeue", requeue),
		)
	}
}
