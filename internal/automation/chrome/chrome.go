// Package chrome implements automation.Surface on top of a headless Chrome
// driven through the DevTools protocol.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/cuongbtq/relay-poster/internal/automation"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// Config holds browser launch configuration
type Config struct {
	ExecPath      string
	Headless      bool
	UserAgent     string
	UserDataDir   string
	WindowWidth   int
	WindowHeight  int
	ActionTimeout time.Duration
	CloseTimeout  time.Duration
}

// Launcher starts one fresh browser process per Launch call
type Launcher struct {
	config Config
	logger *slog.Logger
}

// NewLauncher creates a new Launcher
func NewLauncher(config Config, logger *slog.Logger) *Launcher {
	if config.ActionTimeout <= 0 {
		config.ActionTimeout = 15 * time.Second
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = 5 * time.Second
	}
	if config.WindowWidth <= 0 || config.WindowHeight <= 0 {
		config.WindowWidth, config.WindowHeight = 1280, 900
	}

	return &Launcher{
		config: config,
		logger: logger.With(slog.String("component", "chrome")),
	}
}

// Launch starts a browser and returns a Surface bound to its first tab
func (l *Launcher) Launch(ctx context.Context) (automation.Surface, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.config.Headless),
		chromedp.WindowSize(l.config.WindowWidth, l.config.WindowHeight),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
	)
	if l.config.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.config.ExecPath))
	}
	if l.config.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.config.UserAgent))
	}
	if l.config.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(l.config.UserDataDir))
	}

	// The browser outlives individual calls; only Close ends it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(func(format string, args ...any) {
			l.logger.Debug(fmt.Sprintf(format, args...))
		}),
	)

	s := &Surface{
		config:        l.config,
		logger:        l.logger,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
	}

	started := make(chan error, 1)
	go func() {
		// The first Run allocates the browser and must not carry a deadline.
		started <- chromedp.Run(browserCtx)
	}()

	select {
	case err := <-started:
		if err != nil {
			_ = s.Close(context.Background())
			return nil, fmt.Errorf("failed to start browser: %w", err)
		}
	case <-ctx.Done():
		_ = s.Close(context.Background())
		return nil, fmt.Errorf("browser launch canceled: %w", ctx.Err())
	}

	l.logger.Debug("Browser launched",
		slog.Bool("headless", l.config.Headless),
	)

	return s, nil
}

// Surface is a single browser session
type Surface struct {
	config        Config
	logger        *slog.Logger
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// run executes actions bounded by both the action timeout and the caller's ctx
func (s *Surface) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(s.browserCtx, s.config.ActionTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

func by(sel automation.Selector) chromedp.QueryOption {
	if sel.XPath {
		return chromedp.BySearch
	}
	return chromedp.ByQueryAll
}

func (s *Surface) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (s *Surface) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return loc, nil
}

func (s *Surface) Count(ctx context.Context, sel automation.Selector) (int, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(sel.Query, &nodes, by(sel), chromedp.AtLeast(0))); err != nil {
		return 0, fmt.Errorf("query %s: %w", sel, err)
	}
	return len(nodes), nil
}

func (s *Surface) Exists(ctx context.Context, sel automation.Selector) (bool, error) {
	n, err := s.Count(ctx, sel)
	return n > 0, err
}

// requirePresent converts an empty match into automation.ErrNotFound
// instead of letting chromedp wait for the full action timeout.
func (s *Surface) requirePresent(ctx context.Context, sel automation.Selector) error {
	ok, err := s.Exists(ctx, sel)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", sel, automation.ErrNotFound)
	}
	return nil
}

func (s *Surface) Text(ctx context.Context, sel automation.Selector) (string, error) {
	if err := s.requirePresent(ctx, sel); err != nil {
		return "", err
	}
	var text string
	if err := s.run(ctx, chromedp.Text(sel.Query, &text, by(sel))); err != nil {
		return "", fmt.Errorf("read text %s: %w", sel, err)
	}
	return text, nil
}

func (s *Surface) Attribute(ctx context.Context, sel automation.Selector, name string) (string, bool, error) {
	if err := s.requirePresent(ctx, sel); err != nil {
		return "", false, err
	}
	var (
		value string
		ok    bool
	)
	if err := s.run(ctx, chromedp.AttributeValue(sel.Query, name, &value, &ok, by(sel), chromedp.NodeReady)); err != nil {
		return "", false, fmt.Errorf("read attribute %s of %s: %w", name, sel, err)
	}
	return value, ok, nil
}

func (s *Surface) Click(ctx context.Context, sel automation.Selector) error {
	if err := s.requirePresent(ctx, sel); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.Click(sel.Query, by(sel), chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", sel, err)
	}
	return nil
}

func (s *Surface) MouseClick(ctx context.Context, x, y float64) error {
	if err := s.run(ctx, chromedp.MouseClickXY(x, y)); err != nil {
		return fmt.Errorf("mouse click at %.0f,%.0f: %w", x, y, err)
	}
	return nil
}

func (s *Surface) Type(ctx context.Context, sel automation.Selector, text string) error {
	if err := s.requirePresent(ctx, sel); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.SendKeys(sel.Query, text, by(sel))); err != nil {
		return fmt.Errorf("type into %s: %w", sel, err)
	}
	return nil
}

func (s *Surface) PressKey(ctx context.Context, sel automation.Selector, key automation.Key) error {
	if err := s.requirePresent(ctx, sel); err != nil {
		return err
	}

	var action chromedp.Action
	switch key {
	case automation.KeySelectAll:
		action = chromedp.KeyEvent("a", chromedp.KeyModifiers(input.ModifierCtrl))
	case automation.KeyDelete:
		action = chromedp.KeyEvent(kb.Delete)
	case automation.KeySubmit:
		action = chromedp.KeyEvent(kb.Enter, chromedp.KeyModifiers(input.ModifierCtrl))
	default:
		return fmt.Errorf("unsupported key %q", key)
	}

	if err := s.run(ctx, chromedp.Focus(sel.Query, by(sel)), action); err != nil {
		return fmt.Errorf("press %s on %s: %w", key, sel, err)
	}
	return nil
}

func (s *Surface) UploadFiles(ctx context.Context, sel automation.Selector, paths []string) error {
	if err := s.requirePresent(ctx, sel); err != nil {
		return err
	}
	if err := s.run(ctx, chromedp.SetUploadFiles(sel.Query, paths, by(sel), chromedp.NodeReady)); err != nil {
		return fmt.Errorf("upload %d files to %s: %w", len(paths), sel, err)
	}
	return nil
}

func (s *Surface) Evaluate(ctx context.Context, script string, out any) error {
	if out == nil {
		var ignored any
		out = &ignored
	}
	if err := s.run(ctx, chromedp.Evaluate(script, out)); err != nil {
		return fmt.Errorf("evaluate script: %w", err)
	}
	return nil
}

func (s *Surface) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, nil
}

func (s *Surface) Cookies(ctx context.Context) ([]domain.Cookie, error) {
	var cookies []domain.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		raw, err := network.GetCookies().Do(ctx)
		if err != nil {
			return err
		}
		cookies = make([]domain.Cookie, 0, len(raw))
		for _, c := range raw {
			cookies = append(cookies, domain.Cookie{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Expires:  fromEpoch(c.Expires),
				HTTPOnly: c.HTTPOnly,
				Secure:   c.Secure,
			})
		}
		return nil
	}))
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	return cookies, nil
}

func (s *Surface) SetCookies(ctx context.Context, cookies []domain.Cookie) error {
	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		p := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		}
		if !c.Expires.IsZero() {
			exp := cdp.TimeSinceEpoch(c.Expires)
			p.Expires = &exp
		}
		params = append(params, p)
	}

	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return network.SetCookies(params).Do(ctx)
	}))
	if err != nil {
		return fmt.Errorf("restore %d cookies: %w", len(cookies), err)
	}
	return nil
}

// Close asks the browser to exit and kills the process if it does not
// within the close timeout.
func (s *Surface) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		var proc *os.Process
		if c := chromedp.FromContext(s.browserCtx); c != nil && c.Browser != nil {
			proc = c.Browser.Process()
		}

		done := make(chan error, 1)
		go func() {
			done <- chromedp.Cancel(s.browserCtx)
		}()

		timer := time.NewTimer(s.config.CloseTimeout)
		defer timer.Stop()

		select {
		case err := <-done:
			if err != nil && !errors.Is(err, context.Canceled) {
				s.closeErr = fmt.Errorf("close browser: %w", err)
			}
		case <-timer.C:
			s.closeErr = s.kill(proc, "graceful close timed out")
		case <-ctx.Done():
			s.closeErr = s.kill(proc, "close canceled")
		}

		s.browserCancel()
		s.allocCancel()
	})
	return s.closeErr
}

func (s *Surface) kill(proc *os.Process, reason string) error {
	s.logger.Warn("Killing browser process",
		slog.String("reason", reason),
	)
	if proc == nil {
		return errors.New(reason)
	}
	if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("%s; kill browser: %w", reason, err)
	}
	return errors.New(reason)
}

func fromEpoch(sec float64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(frac*1e9))
}
