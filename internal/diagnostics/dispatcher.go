package diagnostics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Emitter delivers a dequeued event to one destination.
type Emitter interface {
	Name() string
	Emit(ctx context.Context, event Event) error
}

// Config controls buffering and pacing of the dispatcher.
type Config struct {
	BufferSize    int
	RatePerSecond float64
	EmitTimeout   time.Duration
}

// Dispatcher is a Sink that queues events and delivers them to its emitters
// at a bounded rate from a single goroutine.
type Dispatcher struct {
	events   chan Event
	limiter  *rate.Limiter
	emitters []Emitter
	timeout  time.Duration
	logger   *slog.Logger

	dropped   atomic.Int64
	delivered atomic.Int64
}

// NewDispatcher creates a dispatcher. Run must be called to start delivery.
func NewDispatcher(config Config, logger *slog.Logger, emitters ...Emitter) *Dispatcher {
	if config.BufferSize <= 0 {
		config.BufferSize = 256
	}
	limit := rate.Inf
	if config.RatePerSecond > 0 {
		limit = rate.Limit(config.RatePerSecond)
	}
	if config.EmitTimeout <= 0 {
		config.EmitTimeout = 10 * time.Second
	}

	return &Dispatcher{
		events:   make(chan Event, config.BufferSize),
		limiter:  rate.NewLimiter(limit, 1),
		emitters: emitters,
		timeout:  config.EmitTimeout,
		logger:   logger.With(slog.String("component", "diagnostics")),
	}
}

// Emit queues the event, dropping it with a warning if the buffer is full.
func (d *Dispatcher) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case d.events <- event:
	default:
		d.dropped.Add(1)
		d.logger.Warn("Diagnostics buffer full, dropping event",
			slog.String("kind", string(event.Kind)),
			slog.String("job_id", event.JobID),
		)
	}
}

// Run delivers queued events until ctx is cancelled, then flushes whatever is
// still buffered without pacing.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("Diagnostics dispatcher started",
		slog.Int("emitters", len(d.emitters)),
		slog.Float64("rate_per_second", float64(d.limiter.Limit())),
	)

	for {
		select {
		case <-ctx.Done():
			d.flush()
			return
		case event := <-d.events:
			if err := d.limiter.Wait(ctx); err != nil {
				d.deliver(event)
				d.flush()
				return
			}
			d.deliver(event)
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case event := <-d.events:
			d.deliver(event)
		default:
			d.logger.Info("Diagnostics dispatcher stopped",
				slog.Int64("delivered", d.delivered.Load()),
				slog.Int64("dropped", d.dropped.Load()),
			)
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	for _, emitter := range d.emitters {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := emitter.Emit(ctx, event)
		cancel()
		if err != nil {
			d.logger.Warn("Diagnostics emitter failed",
				slog.String("emitter", emitter.Name()),
				slog.String("kind", string(event.Kind)),
				slog.Any("error", err),
			)
		}
	}
	d.delivered.Add(1)
}

// Dropped returns how many events were discarded because the buffer was full.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Delivered returns how many events were handed to the emitters.
func (d *Dispatcher) Delivered() int64 {
	return d.delivered.Load()
}
