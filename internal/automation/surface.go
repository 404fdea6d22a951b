// Package automation describes the capability surface used to drive the
// third-party web client. Nothing in this package performs I/O; see the
// chrome subpackage for the headless browser implementation.
package automation

import (
	"context"
	"errors"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// ErrNotFound is returned by element operations when the selector matches nothing
var ErrNotFound = errors.New("element not found")

// Selector identifies page elements either by CSS query or by XPath
type Selector struct {
	Query string
	XPath bool
}

// CSS builds a CSS selector
func CSS(query string) Selector {
	return Selector{Query: query}
}

// XPath builds an XPath selector
func XPath(query string) Selector {
	return Selector{Query: query, XPath: true}
}

func (s Selector) String() string {
	if s.XPath {
		return "xpath:" + s.Query
	}
	return s.Query
}

// Key is a keyboard action sent to a focused element
type Key string

const (
	KeySelectAll Key = "select-all"
	KeyDelete    Key = "delete"
	KeySubmit    Key = "submit" // Ctrl+Enter
)

// Surface is one exclusively owned browser session. Every call blocks until
// the page answers or ctx is done.
type Surface interface {
	Navigate(ctx context.Context, url string) error
	Location(ctx context.Context) (string, error)

	// Exists reports whether at least one element matches, without waiting.
	Exists(ctx context.Context, sel Selector) (bool, error)
	Count(ctx context.Context, sel Selector) (int, error)
	Text(ctx context.Context, sel Selector) (string, error)
	Attribute(ctx context.Context, sel Selector, name string) (string, bool, error)

	Click(ctx context.Context, sel Selector) error
	MouseClick(ctx context.Context, x, y float64) error
	Type(ctx context.Context, sel Selector, text string) error
	PressKey(ctx context.Context, sel Selector, key Key) error
	UploadFiles(ctx context.Context, sel Selector, paths []string) error

	// Evaluate runs script in the page and decodes its result into out.
	Evaluate(ctx context.Context, script string, out any) error
	Screenshot(ctx context.Context) ([]byte, error)

	Cookies(ctx context.Context) ([]domain.Cookie, error)
	SetCookies(ctx context.Context, cookies []domain.Cookie) error

	// Close tears the session down. It is safe to call more than once and
	// must not leave a browser process behind.
	Close(ctx context.Context) error
}

// Launcher starts a fresh Surface for one attempt
type Launcher interface {
	Launch(ctx context.Context) (Surface, error)
}
