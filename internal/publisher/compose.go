package publisher

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/internal/diagnostics"
	"github.com/cuongbtq/relay-poster/internal/staging"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

func (m *Machine) composeStrategies(r *run) []Strategy {
	textReady := func(ctx context.Context, s automation.Surface) (bool, error) {
		sel, err := waitFor(ctx, s, textSurfaces, m.config.ElementTimeout, m.config.VerifyInterval)
		if err != nil {
			return false, err
		}
		r.textSurface = sel
		return true, nil
	}

	return []Strategy{
		{
			Name: "compose-button",
			Try: func(ctx context.Context, s automation.Surface) (bool, error) {
				btn, ok := findFirst(ctx, s, composeButtons)
				if !ok {
					return false, nil
				}
				if err := s.Click(ctx, btn); err != nil {
					return false, err
				}
				return textReady(ctx, s)
			},
		},
		{
			Name: "compose-url",
			Try: func(ctx context.Context, s automation.Surface) (bool, error) {
				if err := s.Navigate(ctx, m.url(composePath)); err != nil {
					return false, err
				}
				return textReady(ctx, s)
			},
		},
		{
			Name: "inline-composer",
			Try: func(ctx context.Context, s automation.Surface) (bool, error) {
				if err := s.Navigate(ctx, m.url(homePath)); err != nil {
					return false, err
				}
				return textReady(ctx, s)
			},
		},
	}
}

func (m *Machine) openCompose(ctx context.Context, r *run) error {
	name, err := firstSuccess(ctx, r.surface, r.logger, m.composeStrategies(r))
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		return domain.ErrComposeNotFound
	}

	r.logger.Info("Compose surface ready",
		slog.String("strategy", name),
		slog.String("text_surface", r.textSurface.String()),
	)
	return nil
}

func (m *Machine) attachMedia(ctx context.Context, r *run) error {
	s := r.surface
	images := r.job.Images

	if err := staging.Verify(images); err != nil {
		return err
	}

	input, ok := findFirst(ctx, s, fileInputs)
	if !ok {
		btn, found := findFirst(ctx, s, addMediaButtons)
		if !found {
			return fmt.Errorf("%w: no file input or media button", domain.ErrMediaAttachFailed)
		}
		if err := s.Click(ctx, btn); err != nil {
			return fmt.Errorf("%w: open media picker: %v", domain.ErrMediaAttachFailed, err)
		}
		var err error
		input, err = waitFor(ctx, s, fileInputs, m.config.ElementTimeout, m.config.VerifyInterval)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			return fmt.Errorf("%w: file input never appeared", domain.ErrMediaAttachFailed)
		}
	}

	if err := s.UploadFiles(ctx, input, images); err != nil {
		return fmt.Errorf("%w: upload: %v", domain.ErrMediaAttachFailed, err)
	}

	attached := 0
	for i := 0; i < m.config.MediaPollAttempts; i++ {
		attached = m.countAttachments(ctx, s)
		if attached >= len(images) {
			break
		}
		if i < m.config.MediaPollAttempts-1 {
			if err := sleep(ctx, m.config.MediaPollInterval); err != nil {
				return err
			}
		}
	}

	if attached < len(images) {
		msg := fmt.Sprintf("only %d of %d images attached", attached, len(images))
		if m.config.StrictMedia {
			return fmt.Errorf("%w: %s", domain.ErrMediaAttachFailed, msg)
		}
		m.warn(ctx, r, diagnostics.KindMediaUndercount, msg)
		return nil
	}

	r.logger.Info("Media attached", slog.Int("count", attached))
	return nil
}

func (m *Machine) countAttachments(ctx context.Context, s automation.Surface) int {
	best := 0
	for _, sel := range attachments {
		n, err := s.Count(ctx, sel)
		if err == nil && n > best {
			best = n
		}
	}
	return best
}
