package staging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

func writeFiles(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, len(names))
	for _, n := range names {
		p := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(p, []byte("img"), 0o600))
		paths = append(paths, p)
	}
	return paths
}

func TestVerify(t *testing.T) {
	paths := writeFiles(t, "a.jpg", "b.png")

	t.Run("all present", func(t *testing.T) {
		assert.NoError(t, Verify(paths))
	})

	t.Run("missing file", func(t *testing.T) {
		err := Verify(append(paths, filepath.Join(t.TempDir(), "gone.jpg")))
		assert.ErrorIs(t, err, domain.ErrIOFailure)
	})

	t.Run("directory", func(t *testing.T) {
		err := Verify([]string{t.TempDir()})
		assert.ErrorIs(t, err, domain.ErrIOFailure)
	})
}

func TestRemove(t *testing.T) {
	paths := writeFiles(t, "a.jpg", "b.png")
	missing := filepath.Join(t.TempDir(), "never.jpg")

	removed, err := Remove(append(paths, missing))
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	for _, p := range paths {
		_, statErr := os.Stat(p)
		assert.True(t, os.IsNotExist(statErr))
	}

	removed, err = Remove(paths)
	require.NoError(t, err, "second removal is a no-op")
	assert.Zero(t, removed)
}
