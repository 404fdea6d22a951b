package diagnostics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// LogEmitter writes events to the structured logger.
type LogEmitter struct {
	logger *slog.Logger
}

func NewLogEmitter(logger *slog.Logger) *LogEmitter {
	return &LogEmitter{logger: logger}
}

func (e *LogEmitter) Name() string { return "log" }

func (e *LogEmitter) Emit(ctx context.Context, event Event) error {
	attrs := []slog.Attr{
		slog.String("kind", string(event.Kind)),
		slog.String("diag_level", string(event.Level)),
	}
	if event.JobID != "" {
		attrs = append(attrs, slog.String("job_id", event.JobID))
	}
	if event.Attempt > 0 {
		attrs = append(attrs, slog.Int("attempt", event.Attempt))
	}
	if event.Phase != "" {
		attrs = append(attrs, slog.String("phase", string(event.Phase)))
	}
	if event.Error != "" {
		attrs = append(attrs, slog.String("error", event.Error))
	}
	if event.Reference != "" {
		attrs = append(attrs, slog.String("reference", event.Reference))
	}
	if event.HasScreenshot() {
		attrs = append(attrs, slog.Int("screenshot_bytes", len(event.Screenshot)))
	}

	e.logger.LogAttrs(ctx, slogLevel(event.Level), event.Message, attrs...)
	return nil
}

func slogLevel(level Level) slog.Level {
	switch level {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ScreenshotWriter stores event screenshots as PNG files under a directory.
type ScreenshotWriter struct {
	dir string
}

func NewScreenshotWriter(dir string) *ScreenshotWriter {
	return &ScreenshotWriter{dir: dir}
}

func (w *ScreenshotWriter) Name() string { return "screenshot" }

func (w *ScreenshotWriter) Emit(ctx context.Context, event Event) error {
	if !event.HasScreenshot() {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create screenshot dir: %w", err)
	}

	path := filepath.Join(w.dir, ScreenshotName(event))
	if err := os.WriteFile(path, event.Screenshot, 0o644); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	return nil
}

// ScreenshotName builds the file name used for an event's screenshot.
func ScreenshotName(event Event) string {
	job := event.JobID
	if job == "" {
		job = "nojob"
	}
	phase := string(event.Phase)
	if phase == "" {
		phase = string(event.Kind)
	}
	return fmt.Sprintf("%s_%s_a%d_%s.png",
		event.Timestamp.UTC().Format("20060102T150405.000"), job, event.Attempt, phase)
}

// MessagePublisher is the broker operation the status publisher relies on.
type MessagePublisher interface {
	PublishWithRetry(ctx context.Context, routingKey string, body []byte, contentType string) error
}

// StatusPublisher forwards events as JSON messages to a broker routing key.
type StatusPublisher struct {
	publisher  MessagePublisher
	routingKey string
}

func NewStatusPublisher(publisher MessagePublisher, routingKey string) *StatusPublisher {
	return &StatusPublisher{publisher: publisher, routingKey: routingKey}
}

func (p *StatusPublisher) Name() string { return "status" }

type statusMessage struct {
	Event
	HasScreenshot  bool   `json:"has_screenshot"`
	ScreenshotFile string `json:"screenshot_file,omitempty"`
}

func (p *StatusPublisher) Emit(ctx context.Context, event Event) error {
	msg := statusMessage{Event: event, HasScreenshot: event.HasScreenshot()}
	if msg.HasScreenshot {
		msg.ScreenshotFile = ScreenshotName(event)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal status event: %w", err)
	}
	return p.publisher.PublishWithRetry(ctx, p.routingKey, body, "application/json")
}
