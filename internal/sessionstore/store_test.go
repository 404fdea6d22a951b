package sessionstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

func TestFileStore_LoadMissing(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	session, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileStore(path)

	expires := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	in := &domain.Session{
		Cookies: []domain.Cookie{
			{Name: "auth_token", Value: "abc", Domain: ".x.com", Path: "/", Expires: expires, HTTPOnly: true, Secure: true},
			{Name: "ct0", Value: "def", Domain: ".x.com", Path: "/"},
		},
	}
	require.NoError(t, store.Save(in))
	assert.False(t, in.SavedAt.IsZero(), "save stamps the session")

	out, err := store.Load()
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Len(t, out.Cookies, 2)
	assert.Equal(t, "auth_token", out.Cookies[0].Name)
	assert.True(t, out.Cookies[0].Expires.Equal(expires))
	assert.True(t, out.Cookies[0].HTTPOnly)
	assert.Equal(t, "ct0", out.Cookies[1].Name)
}

func TestFileStore_SaveReplacesWholesale(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))

	require.NoError(t, store.Save(&domain.Session{Cookies: []domain.Cookie{{Name: "old", Value: "1"}, {Name: "stale", Value: "2"}}}))
	require.NoError(t, store.Save(&domain.Session{Cookies: []domain.Cookie{{Name: "new", Value: "3"}}}))

	out, err := store.Load()
	require.NoError(t, err)
	require.Len(t, out.Cookies, 1)
	assert.Equal(t, "new", out.Cookies[0].Name)
}

func TestFileStore_CorruptFileIsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	session, err := NewFileStore(path).Load()
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestFileStore_Clear(t *testing.T) {
	store := NewFileStore(filepath.Join(t.TempDir(), "session.json"))
	require.NoError(t, store.Save(&domain.Session{Cookies: []domain.Cookie{{Name: "a", Value: "b"}}}))

	require.NoError(t, store.Clear())
	require.NoError(t, store.Clear(), "clearing twice is fine")

	session, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, session)
}

func TestFileStore_SaveNil(t *testing.T) {
	err := NewFileStore(filepath.Join(t.TempDir(), "session.json")).Save(nil)
	assert.Error(t, err)
}
