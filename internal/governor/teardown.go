package governor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/cuongbtq/relay-poster/internal/automation"
)

// lease is the governor's hold on one attempt's surface. teardown runs at
// most once no matter how many paths reach it.
type lease struct {
	surface automation.Surface
	once    sync.Once
}

func (g *Governor) acquire(s automation.Surface) (*lease, error) {
	l := &lease{surface: s}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		g.teardown(l)
		return nil, ErrShutdown
	}
	g.active = l
	g.mu.Unlock()

	return l, nil
}

func (g *Governor) release(l *lease) {
	g.mu.Lock()
	if g.active == l {
		g.active = nil
	}
	g.mu.Unlock()

	g.teardown(l)
}

func (g *Governor) teardown(l *lease) {
	l.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), g.config.TeardownTimeout)
		defer cancel()
		if err := l.surface.Close(ctx); err != nil {
			g.logger.Warn("Surface teardown failed", slog.Any("error", err))
			return
		}
		g.logger.Debug("Surface torn down")
	})
}

func (g *Governor) isClosed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.closed
}

// Shutdown tears down the live surface, if any, and refuses new attempts.
// It is safe to call more than once.
func (g *Governor) Shutdown() {
	g.mu.Lock()
	g.closed = true
	l := g.active
	g.mu.Unlock()

	if l != nil {
		g.logger.Info("Tearing down active surface for shutdown")
		g.teardown(l)
	}
}
