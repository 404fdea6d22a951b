package publisher

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/shared/backoff"
)

// Strategy is one way of reaching a UI affordance. Try reports whether it
// worked; an error counts as a miss unless the context is done.
type Strategy struct {
	Name string
	Try  func(ctx context.Context, s automation.Surface) (bool, error)
}

var errNoStrategy = errors.New("no strategy succeeded")

// firstSuccess runs strategies in order and returns the name of the first
// one that worked.
func firstSuccess(ctx context.Context, s automation.Surface, logger *slog.Logger, strategies []Strategy) (string, error) {
	for _, st := range strategies {
		ok, err := st.Try(ctx, s)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if err != nil {
			logger.Debug("Strategy failed", slog.String("strategy", st.Name), slog.Any("error", err))
			continue
		}
		if ok {
			return st.Name, nil
		}
		logger.Debug("Strategy missed", slog.String("strategy", st.Name))
	}
	return "", errNoStrategy
}

// findFirst returns the first selector that currently matches an element.
func findFirst(ctx context.Context, s automation.Surface, sels []automation.Selector) (automation.Selector, bool) {
	for _, sel := range sels {
		if ok, err := s.Exists(ctx, sel); err == nil && ok {
			return sel, true
		}
	}
	return automation.Selector{}, false
}

// anyExists reports whether any selector matches.
func anyExists(ctx context.Context, s automation.Surface, sels []automation.Selector) bool {
	_, ok := findFirst(ctx, s, sels)
	return ok
}

// waitFor polls until one of sels matches or timeout elapses.
func waitFor(ctx context.Context, s automation.Surface, sels []automation.Selector, timeout, interval time.Duration) (automation.Selector, error) {
	var found automation.Selector
	ok, err := poll(ctx, timeout, interval, func() bool {
		sel, hit := findFirst(ctx, s, sels)
		if hit {
			found = sel
		}
		return hit
	})
	if err != nil {
		return automation.Selector{}, err
	}
	if !ok {
		return automation.Selector{}, automation.ErrNotFound
	}
	return found, nil
}

// poll evaluates cond immediately and then every interval until it holds or
// timeout elapses. It only returns an error when ctx is done.
func poll(ctx context.Context, timeout, interval time.Duration, cond func() bool) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true, nil
		}
		if err := ctx.Err(); err != nil {
			return false, err
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}
		if err := backoff.Sleep(ctx, min(interval, remaining)); err != nil {
			return false, err
		}
	}
}
