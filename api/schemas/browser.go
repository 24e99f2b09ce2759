// api/schemas/browser.go
package schemas

import (
	"context"
	"errors"
	"time"
)

// Errors shared by page implementations and their callers.
var (
	// ErrElementNotFound is returned when a selector matches nothing on the page.
	ErrElementNotFound = errors.New("element not found")
	// ErrNoRequestCaptured is returned when a request expectation times out.
	ErrNoRequestCaptured = errors.New("no matching request captured")
	// ErrSessionClosed is returned by operations on a closed page session.
	ErrSessionClosed = errors.New("page session is closed")
)

// SelectorKind says how a Selector's query is interpreted.
type SelectorKind int

const (
	// SelectorCSS is a CSS selector evaluated with querySelector.
	SelectorCSS SelectorKind = iota
	// SelectorText matches the first element whose own text contains the query.
	SelectorText
)

// Selector locates the first matching element on a page.
type Selector struct {
	Kind  SelectorKind
	Query string
}

// CSS builds a CSS selector.
func CSS(query string) Selector { return Selector{Kind: SelectorCSS, Query: query} }

// Text builds a visible-text selector.
func Text(query string) Selector { return Selector{Kind: SelectorText, Query: query} }

func (s Selector) String() string {
	if s.Kind == SelectorText {
		return "text=" + s.Query
	}
	return s.Query
}

// RequestExpectation is an armed wait for one outbound request. Only requests
// sent after the expectation was created are observed.
type RequestExpectation interface {
	// Wait blocks until a matching request is seen, the timeout elapses
	// (ErrNoRequestCaptured) or ctx is done.
	Wait(ctx context.Context, timeout time.Duration) (*CapturedRequest, error)
	// Cancel disarms the expectation. It is safe to call more than once.
	Cancel()
}

// PageSession is a single browser page backed by its own browser process.
// Closing the session terminates the process.
type PageSession interface {
	// Navigate loads url and waits, within timeout, for DOMContentLoaded.
	// Subresources may still be loading when it returns.
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	// Pause waits d while keeping the page alive.
	Pause(ctx context.Context, d time.Duration) error
	// CaptureScreenshot returns a PNG of the current viewport.
	CaptureScreenshot(ctx context.Context) ([]byte, error)
	// Content returns the serialized markup of the current document.
	Content(ctx context.Context) (string, error)
	// Exists reports whether sel matches at least one element.
	Exists(ctx context.Context, sel Selector) (bool, error)
	// Click clicks the first element matching sel.
	Click(ctx context.Context, sel Selector, timeout time.Duration) error
	// Fill replaces the text of the first element matching sel and fires an input event.
	Fill(ctx context.Context, sel Selector, text string) error
	// Press sends a key press to the first element matching sel.
	Press(ctx context.Context, sel Selector, key string) error
	// ExpectRequest arms a wait for the next request satisfying matcher.
	ExpectRequest(ctx context.Context, matcher RequestMatcher) (RequestExpectation, error)
	// Close releases the page and its browser process. Only the first call has effect.
	Close(ctx context.Context) error
}

// BrowserLauncher starts a fresh browser process with one page.
type BrowserLauncher interface {
	Launch(ctx context.Context) (PageSession, error)
}
