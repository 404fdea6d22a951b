package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

func (m *Machine) establishSession(ctx context.Context, r *run) error {
	s := r.surface

	session, err := m.sessions.Load()
	if err != nil {
		r.logger.Warn("Failed to load stored session", slog.Any("error", err))
	}

	if session != nil {
		if err := s.SetCookies(ctx, session.Cookies); err != nil {
			r.logger.Warn("Failed to restore session cookies", slog.Any("error", err))
		} else {
			if err := s.Navigate(ctx, m.url(homePath)); err != nil {
				return fmt.Errorf("%w: open home: %v", domain.ErrAuthFailure, err)
			}
			ok, err := poll(ctx, m.config.ElementTimeout, m.config.VerifyInterval, func() bool {
				return anyExists(ctx, s, authenticatedMarkers)
			})
			if err != nil {
				return err
			}
			if ok {
				r.logger.Info("Stored session accepted")
				return nil
			}
		}

		r.logger.Info("Stored session rejected, discarding it")
		if err := m.sessions.Clear(); err != nil {
			r.logger.Warn("Failed to clear stale session", slog.Any("error", err))
		}
	}

	if err := m.login(ctx, r); err != nil {
		return err
	}

	cookies, err := s.Cookies(ctx)
	if err != nil {
		r.logger.Warn("Failed to read session cookies", slog.Any("error", err))
		return nil
	}
	if err := m.sessions.Save(&domain.Session{Cookies: cookies}); err != nil {
		r.logger.Warn("Failed to persist session", slog.Any("error", err))
	}
	return nil
}

func (m *Machine) login(ctx context.Context, r *run) error {
	if m.config.Username == "" || m.config.Password == "" {
		return fmt.Errorf("%w: no credentials configured", domain.ErrAuthFailure)
	}

	s := r.surface
	timeout, interval := m.config.LoginTimeout, m.config.VerifyInterval

	r.logger.Info("Logging in", slog.String("username", m.config.Username))
	if err := s.Navigate(ctx, m.url(loginPath)); err != nil {
		return fmt.Errorf("%w: open login: %v", domain.ErrAuthFailure, err)
	}

	user, err := waitFor(ctx, s, usernameInputs, timeout, interval)
	if err != nil {
		return fmt.Errorf("%w: username field: %v", domain.ErrAuthFailure, err)
	}
	if err := s.Type(ctx, user, m.config.Username); err != nil {
		return fmt.Errorf("%w: enter username: %v", domain.ErrAuthFailure, err)
	}

	next, err := waitFor(ctx, s, nextButtons, timeout, interval)
	if err != nil {
		return fmt.Errorf("%w: next button: %v", domain.ErrAuthFailure, err)
	}
	if err := s.Click(ctx, next); err != nil {
		return fmt.Errorf("%w: click next: %v", domain.ErrAuthFailure, err)
	}

	pass, err := waitFor(ctx, s, passwordInputs, timeout, interval)
	if err != nil {
		return fmt.Errorf("%w: password field: %v", domain.ErrAuthFailure, err)
	}
	if err := s.Type(ctx, pass, m.config.Password); err != nil {
		return fmt.Errorf("%w: enter password: %v", domain.ErrAuthFailure, err)
	}

	submit, err := waitFor(ctx, s, loginButtons, timeout, interval)
	if err != nil {
		return fmt.Errorf("%w: login button: %v", domain.ErrAuthFailure, err)
	}
	if err := s.Click(ctx, submit); err != nil {
		return fmt.Errorf("%w: click login: %v", domain.ErrAuthFailure, err)
	}

	ok, err := poll(ctx, timeout, interval, func() bool {
		return anyExists(ctx, s, authenticatedMarkers)
	})
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: not signed in after login", domain.ErrAuthFailure)
	}

	r.logger.Info("Login succeeded")
	return nil
}
