package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/internal/diagnostics"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
	"github.com/cuongbtq/relay-poster/shared/backoff"
)

var sleep = backoff.Sleep

func (m *Machine) enterCaption(ctx context.Context, r *run) error {
	caption := r.job.Caption
	if strings.TrimSpace(caption) == "" {
		r.logger.Info("Empty caption, skipping text entry")
		return nil
	}

	if err := m.typeCaption(ctx, r, chunkRunes(caption, m.config.TypingChunk)); err != nil {
		return err
	}
	if m.captionReadBack(ctx, r, caption) {
		return nil
	}

	r.logger.Info("Caption readback mismatch, retyping character by character")
	if err := m.typeCaption(ctx, r, chunkRunes(caption, 1)); err != nil {
		return err
	}
	if m.captionReadBack(ctx, r, caption) {
		return nil
	}

	if m.config.StrictCaption {
		return domain.ErrCaptionVerificationFailed
	}
	m.warn(ctx, r, diagnostics.KindCaptionMismatch, "caption readback did not match, continuing")
	return nil
}

// typeCaption clears the text surface and types the chunks with pacing,
// finishing with a trailing space so the client registers the last word.
// Input errors are hard failures; only a readback mismatch is soft.
func (m *Machine) typeCaption(ctx context.Context, r *run, chunks []string) error {
	s, box := r.surface, r.textSurface

	if err := s.Click(ctx, box); err != nil {
		return fmt.Errorf("focus text surface: %w", err)
	}
	if err := s.PressKey(ctx, box, automation.KeySelectAll); err != nil {
		return fmt.Errorf("select text: %w", err)
	}
	if err := s.PressKey(ctx, box, automation.KeyDelete); err != nil {
		return fmt.Errorf("clear text: %w", err)
	}

	for _, chunk := range append(chunks, " ") {
		if err := s.Type(ctx, box, chunk); err != nil {
			return fmt.Errorf("type caption: %w", err)
		}
		if m.config.TypingDelay > 0 {
			if err := sleep(ctx, m.config.TypingDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *Machine) captionReadBack(ctx context.Context, r *run, caption string) bool {
	text, err := r.surface.Text(ctx, r.textSurface)
	if err != nil {
		r.logger.Debug("Caption readback failed", slog.Any("error", err))
		return false
	}
	return captionMatches(text, caption)
}

// captionMatches compares only the leading runes of the caption; the client
// rewrites links and emoji, so a full comparison gives false negatives.
func captionMatches(readBack, caption string) bool {
	want := normalizeSpace(caption)
	if utf8.RuneCountInString(want) > captionPrefixRunes {
		want = string([]rune(want)[:captionPrefixRunes])
	}
	return strings.HasPrefix(normalizeSpace(readBack), want)
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func chunkRunes(s string, size int) []string {
	if size <= 0 {
		size = 1
	}
	runes := []rune(s)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
