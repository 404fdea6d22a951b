package chrome

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cuongbtq/relay-poster/internal/automation"
)

func TestFromEpoch(t *testing.T) {
	assert.True(t, fromEpoch(-1).IsZero(), "session cookies have no expiry")
	assert.True(t, fromEpoch(0).IsZero())

	got := fromEpoch(1700000000.5)
	assert.Equal(t, int64(1700000000), got.Unix())
	assert.Equal(t, 500*time.Millisecond, time.Duration(got.Nanosecond()))
}

func TestNewLauncher_Defaults(t *testing.T) {
	l := NewLauncher(Config{Headless: true}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	assert.Equal(t, 15*time.Second, l.config.ActionTimeout)
	assert.Equal(t, 5*time.Second, l.config.CloseTimeout)
	assert.Equal(t, 1280, l.config.WindowWidth)
	assert.Equal(t, 900, l.config.WindowHeight)
}

func TestLauncher_ImplementsInterface(t *testing.T) {
	var _ automation.Launcher = (*Launcher)(nil)
	var _ automation.Surface = (*Surface)(nil)
}
