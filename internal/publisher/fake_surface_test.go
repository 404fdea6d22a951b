package publisher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeSurface is a scripted page: elements are keyed by selector query and
// hooks mutate the page in response to actions.
type fakeSurface struct {
	mu       sync.Mutex
	location string
	present  map[string]int
	texts    map[string]string
	attrs    map[string]map[string]string
	typed    map[string]string
	mangle   func(string) string
	cookies  []domain.Cookie
	restored [][]domain.Cookie
	uploads  [][]string
	calls    []string
	shots    int
	closed   int

	onClick    map[string]func(f *fakeSurface)
	onNavigate map[string]func(f *fakeSurface)
	onKey      map[automation.Key]func(f *fakeSurface)
	onUpload   func(f *fakeSurface, paths []string)
	evaluate   func(f *fakeSurface, script string, out any) error
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		location:   "about:blank",
		present:    map[string]int{},
		texts:      map[string]string{},
		attrs:      map[string]map[string]string{},
		typed:      map[string]string{},
		onClick:    map[string]func(f *fakeSurface){},
		onNavigate: map[string]func(f *fakeSurface){},
		onKey:      map[automation.Key]func(f *fakeSurface){},
	}
}

func (f *fakeSurface) set(sel automation.Selector, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.present[sel.Query] = n
}

func (f *fakeSurface) remove(sel automation.Selector) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.present, sel.Query)
}

func (f *fakeSurface) setText(sel automation.Selector, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts[sel.Query] = text
}

func (f *fakeSurface) setAttr(sel automation.Selector, name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.attrs[sel.Query] == nil {
		f.attrs[sel.Query] = map[string]string{}
	}
	f.attrs[sel.Query][name] = value
}

func (f *fakeSurface) delAttr(sel automation.Selector, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attrs[sel.Query], name)
}

func (f *fakeSurface) setLocation(url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.location = url
}

func (f *fakeSurface) callCount(call string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == call {
			n++
		}
	}
	return n
}

func (f *fakeSurface) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	f.location = url
	f.calls = append(f.calls, "navigate:"+url)
	hook := f.onNavigate[url]
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakeSurface) Location(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.location, nil
}

func (f *fakeSurface) Exists(_ context.Context, sel automation.Selector) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[sel.Query] > 0, nil
}

func (f *fakeSurface) Count(_ context.Context, sel automation.Selector) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.present[sel.Query], nil
}

func (f *fakeSurface) Text(_ context.Context, sel automation.Selector) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.present[sel.Query] == 0 {
		return "", automation.ErrNotFound
	}
	if typed, ok := f.typed[sel.Query]; ok {
		if f.mangle != nil {
			return f.mangle(typed), nil
		}
		return typed, nil
	}
	return f.texts[sel.Query], nil
}

func (f *fakeSurface) Attribute(_ context.Context, sel automation.Selector, name string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.present[sel.Query] == 0 {
		return "", false, automation.ErrNotFound
	}
	v, ok := f.attrs[sel.Query][name]
	return v, ok, nil
}

func (f *fakeSurface) Click(_ context.Context, sel automation.Selector) error {
	f.mu.Lock()
	if f.present[sel.Query] == 0 {
		f.mu.Unlock()
		return automation.ErrNotFound
	}
	f.calls = append(f.calls, "click:"+sel.Query)
	hook := f.onClick[sel.Query]
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakeSurface) MouseClick(context.Context, float64, float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "mouse")
	return nil
}

func (f *fakeSurface) Type(_ context.Context, sel automation.Selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.present[sel.Query] == 0 {
		return automation.ErrNotFound
	}
	f.calls = append(f.calls, "type:"+sel.Query)
	f.typed[sel.Query] += text
	return nil
}

func (f *fakeSurface) PressKey(_ context.Context, sel automation.Selector, key automation.Key) error {
	f.mu.Lock()
	if f.present[sel.Query] == 0 {
		f.mu.Unlock()
		return automation.ErrNotFound
	}
	f.calls = append(f.calls, "key:"+string(key))
	if key == automation.KeyDelete {
		f.typed[sel.Query] = ""
	}
	hook := f.onKey[key]
	f.mu.Unlock()
	if hook != nil {
		hook(f)
	}
	return nil
}

func (f *fakeSurface) UploadFiles(_ context.Context, sel automation.Selector, paths []string) error {
	f.mu.Lock()
	if f.present[sel.Query] == 0 {
		f.mu.Unlock()
		return automation.ErrNotFound
	}
	f.uploads = append(f.uploads, paths)
	hook := f.onUpload
	f.mu.Unlock()
	if hook != nil {
		hook(f, paths)
	}
	return nil
}

func (f *fakeSurface) Evaluate(_ context.Context, script string, out any) error {
	f.mu.Lock()
	hook := f.evaluate
	f.mu.Unlock()
	if hook == nil {
		return nil
	}
	return hook(f, script, out)
}

func (f *fakeSurface) Screenshot(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shots++
	return []byte("png"), nil
}

func (f *fakeSurface) Cookies(context.Context) ([]domain.Cookie, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cookies, nil
}

func (f *fakeSurface) SetCookies(_ context.Context, cookies []domain.Cookie) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restored = append(f.restored, cookies)
	return nil
}

func (f *fakeSurface) Close(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

var _ automation.Surface = (*fakeSurface)(nil)

type memorySessions struct {
	mu      sync.Mutex
	session *domain.Session
	saved   int
	cleared int
}

func (m *memorySessions) Load() (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, nil
}

func (m *memorySessions) Save(session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = session
	m.saved++
	return nil
}

func (m *memorySessions) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
	m.cleared++
	return nil
}

func stagedImages(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	paths := make([]string, 0, n)
	for i := 0; i < n; i++ {
		p := filepath.Join(dir, string(rune('a'+i))+".jpg")
		require.NoError(t, os.WriteFile(p, []byte("jpeg"), 0o600))
		paths = append(paths, p)
	}
	return paths
}
