// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/promptprobe/api/schemas"
)

// defaultActionTimeout bounds page operations that take no explicit timeout.
const defaultActionTimeout = 30 * time.Second

// Session is a single page in a browser process owned by the session.
// It implements schemas.PageSession.
type Session struct {
	ctx           context.Context
	shutdown      func() error
	logger        *zap.Logger
	actionTimeout time.Duration

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
	onClose   func()
}

var _ schemas.PageSession = (*Session)(nil)

// newSession wraps a chromedp tab context. shutdown must tear down the tab
// and the browser process behind it.
func newSession(ctx context.Context, shutdown func() error, logger *zap.Logger, onClose func()) *Session {
	return &Session{
		ctx:           ctx,
		shutdown:      shutdown,
		logger:        logger,
		actionTimeout: defaultActionTimeout,
		onClose:       onClose,
	}
}

// bounded limits ctx to the session's action timeout.
func (s *Session) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.actionTimeout)
}

// run executes actions against the tab, bounded by both the session and ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	if s.closed.Load() {
		return schemas.ErrSessionClosed
	}
	opCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(opCtx, actions...)
}

// Navigate loads url and returns once the document fires DOMContentLoaded.
// Subresources such as images and third-party scripts may still be loading.
func (s *Session) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.run(navCtx, navigateToDOMReady(url)); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || navCtx.Err() != nil {
			return fmt.Errorf("navigation to %s timed out after %s: %w", url, timeout, err)
		}
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

// navigateToDOMReady starts a navigation and waits for DOMContentLoaded
// rather than the load event chromedp.Navigate waits for. The listener is
// registered before the navigation so the event cannot be missed.
func navigateToDOMReady(url string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		domReady := make(chan struct{}, 1)
		lctx, cancel := context.WithCancel(ctx)
		defer cancel()
		chromedp.ListenTarget(lctx, func(ev interface{}) {
			if _, ok := ev.(*page.EventDomContentEventFired); ok {
				select {
				case domReady <- struct{}{}:
				default:
				}
			}
		})

		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		switch {
		case err != nil:
			return err
		case errorText != "":
			return fmt.Errorf("page load error %s", errorText)
		}

		select {
		case <-domReady:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// Pause waits for d or until ctx or the session ends.
func (s *Session) Pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ctx.Done():
		return schemas.ErrSessionClosed
	}
}

func (s *Session) CaptureScreenshot(ctx context.Context) ([]byte, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return buf, nil
}

func (s *Session) Content(ctx context.Context) (string, error) {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var html string
	if err := s.run(ctx, chromedp.Evaluate(`document.documentElement ? document.documentElement.outerHTML : ""`, &html)); err != nil {
		return "", fmt.Errorf("reading page content failed: %w", err)
	}
	return html, nil
}

// Exists reports whether sel matches anything right now, without waiting.
func (s *Session) Exists(ctx context.Context, sel schemas.Selector) (bool, error) {
	var nodes []*cdp.Node
	query, by := locate(sel)
	if err := s.run(ctx, chromedp.Nodes(query, &nodes, by, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Click waits up to timeout for sel to become visible and clicks it. An
// element that never appears yields schemas.ErrElementNotFound.
func (s *Session) Click(ctx context.Context, sel schemas.Selector, timeout time.Duration) error {
	clickCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	query, by := locate(sel)
	err := s.run(clickCtx, chromedp.Click(query, by, chromedp.NodeVisible))
	if err == nil {
		return nil
	}
	if clickCtx.Err() != nil && ctx.Err() == nil {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, sel)
	}
	return fmt.Errorf("click %s failed: %w", sel, err)
}

const fillScript = `(function(sel, text) {
	const el = document.querySelector(sel);
	if (!el) { return false; }
	el.focus();
	el.innerText = text;
	el.dispatchEvent(new InputEvent('input', { bubbles: true, inputType: 'insertText', data: text }));
	return true;
})(%s, %s)`

// Fill sets the text of a contenteditable or input element and dispatches an
// input event so the page's framework picks up the change. It gives up after
// the session's action timeout.
func (s *Session) Fill(ctx context.Context, sel schemas.Selector, text string) error {
	if sel.Kind != schemas.SelectorCSS {
		return fmt.Errorf("fill requires a css selector, got %s", sel)
	}
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	var found bool
	script := fmt.Sprintf(fillScript, jsonEncode(sel.Query), jsonEncode(text))
	if err := s.run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return fmt.Errorf("fill %s failed: %w", sel, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, sel)
	}
	return nil
}

// Press focuses sel and sends key. Named keys such as "Enter" are mapped to
// their key codes; anything else is typed literally.
func (s *Session) Press(ctx context.Context, sel schemas.Selector, key string) error {
	ctx, cancel := s.bounded(ctx)
	defer cancel()
	ok, err := s.Exists(ctx, sel)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", schemas.ErrElementNotFound, sel)
	}
	query, by := locate(sel)
	if err := s.run(ctx, chromedp.SendKeys(query, keyFor(key), by)); err != nil {
		return fmt.Errorf("press %q on %s failed: %w", key, sel, err)
	}
	return nil
}

// ExpectRequest arms a listener for the next request matching matcher.
func (s *Session) ExpectRequest(ctx context.Context, matcher schemas.RequestMatcher) (schemas.RequestExpectation, error) {
	if s.closed.Load() {
		return nil, schemas.ErrSessionClosed
	}
	return newRequestExpectation(s.ctx, matcher, s.logger), nil
}

// Close tears down the tab and the browser process. Later calls return the
// first call's result.
func (s *Session) Close(ctx context.Context) error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		done := make(chan error, 1)
		go func() { done <- s.shutdown() }()

		select {
		case s.closeErr = <-done:
		case <-ctx.Done():
			s.closeErr = fmt.Errorf("browser shutdown interrupted: %w", ctx.Err())
		}
		if s.closeErr != nil {
			s.logger.Warn("Browser did not shut down cleanly.", zap.Error(s.closeErr))
		} else {
			s.logger.Debug("Browser closed.")
		}
		if s.onClose != nil {
			s.onClose()
		}
	})
	return s.closeErr
}

// -- Helpers --

// locate turns a Selector into a chromedp query and query option.
func locate(sel schemas.Selector) (string, chromedp.QueryOption) {
	if sel.Kind == schemas.SelectorText {
		return fmt.Sprintf(`//*[contains(normalize-space(text()), %s)]`, xpathLiteral(sel.Query)), chromedp.BySearch
	}
	return sel.Query, chromedp.ByQuery
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, len(parts)*2)
	for i, p := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if p != "" {
			quoted = append(quoted, `"`+p+`"`)
		}
	}
	if len(quoted) == 1 {
		return quoted[0]
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"backspace": kb.Backspace,
}

func keyFor(key string) string {
	if k, ok := namedKeys[strings.ToLower(key)]; ok {
		return k
	}
	return key
}

// jsonEncode renders v as a JS literal for script injection.
func jsonEncode(v interface{}) string {
	b, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
