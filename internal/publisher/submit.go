package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

type activation struct {
	name     string
	activate func(ctx context.Context, r *run) error
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (m *Machine) activations() []activation {
	return []activation{
		{"click", func(ctx context.Context, r *run) error {
			return r.surface.Click(ctx, r.submit)
		}},
		{"script-click", func(ctx context.Context, r *run) error {
			var clicked bool
			if err := r.surface.Evaluate(ctx, clickScript(r.submit), &clicked); err != nil {
				return err
			}
			if !clicked {
				return automation.ErrNotFound
			}
			return nil
		}},
		{"mouse", func(ctx context.Context, r *run) error {
			var p *point
			if err := r.surface.Evaluate(ctx, centerScript(r.submit), &p); err != nil {
				return err
			}
			if p == nil {
				return automation.ErrNotFound
			}
			return r.surface.MouseClick(ctx, p.X, p.Y)
		}},
		{"keyboard", func(ctx context.Context, r *run) error {
			return r.surface.PressKey(ctx, r.textSurface, automation.KeySubmit)
		}},
	}
}

// submitPost tries every activation technique in order, for up to
// SubmitRounds rounds, and stops at the first one confirmed by a publish
// signal. A technique that only greys out the button is not a confirmation;
// if that is all any round achieved, the post may still be in flight and the
// Verified phase gets the final word.
func (m *Machine) submitPost(ctx context.Context, r *run) error {
	s := r.surface
	inFlight := false

	for round := 1; round <= m.config.SubmitRounds; round++ {
		if round > 1 {
			if err := sleep(ctx, m.config.VerifyInterval); err != nil {
				return err
			}
		}

		sel, ok := findFirst(ctx, s, submitButtons)
		if !ok {
			r.logger.Debug("Submit button not found", slog.Int("round", round))
			continue
		}
		r.submit = sel

		enabled, err := m.waitEnabled(ctx, r)
		if err != nil {
			return err
		}
		if !enabled {
			r.logger.Debug("Submit button stayed disabled", slog.Int("round", round))
			continue
		}

		for _, act := range m.activations() {
			if err := act.activate(ctx, r); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Debug("Activation failed",
					slog.String("technique", act.name),
					slog.Any("error", err),
				)
				continue
			}

			confirmed, err := m.confirmSubmit(ctx, r)
			if err != nil {
				return err
			}
			if confirmed {
				r.logger.Info("Submit confirmed",
					slog.String("technique", act.name),
					slog.Int("round", round),
				)
				return nil
			}
			if !m.buttonEnabled(ctx, s, r.submit) {
				inFlight = true
			}
			r.logger.Debug("Activation not confirmed",
				slog.String("technique", act.name),
				slog.Int("round", round),
			)
		}
	}

	if inFlight {
		r.logger.Info("Submit unconfirmed but button disabled, waiting for verification")
		return nil
	}
	return fmt.Errorf("%w: no activation confirmed after %d rounds", domain.ErrSubmitFailed, m.config.SubmitRounds)
}

// waitEnabled checks the submit button, nudging the editor between checks so
// the client re-evaluates the form state.
func (m *Machine) waitEnabled(ctx context.Context, r *run) (bool, error) {
	nudges := []func() error{
		func() error { return r.surface.Click(ctx, r.textSurface) },
		func() error {
			var ok bool
			return r.surface.Evaluate(ctx, inputNudgeScript(r.textSurface), &ok)
		},
	}

	for i := 0; ; i++ {
		if m.buttonEnabled(ctx, r.surface, r.submit) {
			return true, nil
		}
		if i >= len(nudges) {
			return false, nil
		}
		if err := nudges[i](); err != nil {
			r.logger.Debug("Nudge failed", slog.Any("error", err))
		}
		if err := sleep(ctx, m.config.VerifyInterval); err != nil {
			return false, err
		}
	}
}

func (m *Machine) buttonEnabled(ctx context.Context, s automation.Surface, sel automation.Selector) bool {
	if ok, err := s.Exists(ctx, sel); err != nil || !ok {
		return false
	}
	if v, ok, err := s.Attribute(ctx, sel, "aria-disabled"); err == nil && ok && v == "true" {
		return false
	}
	if _, ok, err := s.Attribute(ctx, sel, "disabled"); err == nil && ok {
		return false
	}
	return true
}

// confirmSubmit accepts an activation only when one of the publish signals
// shows up.
func (m *Machine) confirmSubmit(ctx context.Context, r *run) (bool, error) {
	if err := sleep(ctx, m.config.VerifyInterval); err != nil {
		return false, err
	}
	signal, ref, ok := m.checkSignals(ctx, r)
	if ok {
		r.signal, r.reference = signal, ref
	}
	return ok, nil
}

func (m *Machine) verifyPublished(ctx context.Context, r *run) error {
	if r.signal == "" {
		ok, err := poll(ctx, m.config.VerifyTimeout, m.config.VerifyInterval, func() bool {
			signal, ref, hit := m.checkSignals(ctx, r)
			if hit {
				r.signal, r.reference = signal, ref
			}
			return hit
		})
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVerificationTimeout
		}
	}

	if r.reference == "" {
		r.reference = m.resolveReference(ctx, r)
	}

	r.logger.Info("Publish verified",
		slog.String("signal", r.signal),
		slog.String("reference", r.reference),
	)
	return nil
}

// checkSignals looks for any independent evidence that the post went out.
func (m *Machine) checkSignals(ctx context.Context, r *run) (signal, ref string, ok bool) {
	s := r.surface

	location, locErr := s.Location(ctx)
	if locErr == nil && statusPattern.MatchString(location) {
		return "permalink", location, true
	}

	if ref, hit := m.toastSignal(ctx, s); hit {
		return "toast", ref, true
	}

	textGone := !anyExists(ctx, s, textSurfaces)
	if textGone && locErr == nil && !strings.Contains(location, composePath) {
		return "composer-closed", "", true
	}
	if textGone && !m.anySubmitEnabled(ctx, s) {
		return "submit-disabled", "", true
	}
	return "", "", false
}

func (m *Machine) anySubmitEnabled(ctx context.Context, s automation.Surface) bool {
	for _, sel := range submitButtons {
		if m.buttonEnabled(ctx, s, sel) {
			return true
		}
	}
	return false
}

func (m *Machine) toastSignal(ctx context.Context, s automation.Surface) (string, bool) {
	toast, ok := findFirst(ctx, s, toasts)
	if !ok {
		return "", false
	}
	text, err := s.Text(ctx, toast)
	if err != nil {
		return "", false
	}

	lower := strings.ToLower(text)
	matched := false
	for _, phrase := range toastSuccessPhrases {
		if strings.Contains(lower, phrase) {
			matched = true
			break
		}
	}
	if !matched {
		return "", false
	}

	for _, sel := range toastLinks {
		if href, found, err := s.Attribute(ctx, sel, "href"); err == nil && found && href != "" {
			return m.absolute(href), true
		}
	}
	return "", true
}

// resolveReference falls back to the newest status linked from the profile.
func (m *Machine) resolveReference(ctx context.Context, r *run) string {
	if m.config.Username == "" {
		return ""
	}

	profile := m.url("/" + m.config.Username)
	if err := r.surface.Navigate(ctx, profile); err != nil {
		r.logger.Debug("Profile navigation failed", slog.Any("error", err))
		return ""
	}

	var id string
	if err := r.surface.Evaluate(ctx, latestStatusScript(m.config.Username), &id); err != nil || id == "" {
		r.logger.Debug("No status found on profile", slog.Any("error", err))
		return ""
	}
	return fmt.Sprintf("%s/status/%s", profile, id)
}

func (m *Machine) absolute(href string) string {
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return m.config.BaseURL + href
}
