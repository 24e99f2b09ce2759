// internal/browser/expectation.go
package browser

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/promptprobe/api/schemas"
)

// requestExpectation listens for the first outbound request satisfying a
// matcher. The listener is registered when the expectation is created, so
// requests sent earlier are never seen.
type requestExpectation struct {
	tabCtx  context.Context
	matcher schemas.RequestMatcher
	logger  *zap.Logger

	listenCtx context.Context
	stop      context.CancelFunc
	matched   chan *network.EventRequestWillBeSent
	once      sync.Once
}

func newRequestExpectation(tabCtx context.Context, matcher schemas.RequestMatcher, logger *zap.Logger) *requestExpectation {
	listenCtx, stop := context.WithCancel(tabCtx)
	e := &requestExpectation{
		tabCtx:    tabCtx,
		matcher:   matcher,
		logger:    logger,
		listenCtx: listenCtx,
		stop:      stop,
		matched:   make(chan *network.EventRequestWillBeSent, 1),
	}

	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		req, ok := ev.(*network.EventRequestWillBeSent)
		if !ok || req.Request == nil {
			return
		}
		if !e.matcher.Matches(req.Request.URL, req.Request.Method) {
			return
		}
		// Keep only the first match. The callback must not block the
		// event loop, so later matches are dropped.
		select {
		case e.matched <- req:
		default:
		}
	})
	return e
}

// Wait blocks for the first matching request, the timeout or ctx.
func (e *requestExpectation) Wait(ctx context.Context, timeout time.Duration) (*schemas.CapturedRequest, error) {
	defer e.Cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case ev := <-e.matched:
		captured := capturedFromEvent(ev)
		if ev.Request.HasPostData && captured.PostData == "" {
			body, err := e.fetchPostData(ctx, ev.RequestID)
			if err != nil {
				e.logger.Debug("Could not fetch post data for captured request.", zap.Error(err))
			} else {
				captured.PostData = body
			}
		}
		return captured, nil
	case <-timer.C:
		return nil, schemas.ErrNoRequestCaptured
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-e.tabCtx.Done():
		return nil, schemas.ErrSessionClosed
	}
}

// Cancel removes the listener.
func (e *requestExpectation) Cancel() {
	e.once.Do(e.stop)
}

func (e *requestExpectation) fetchPostData(ctx context.Context, id network.RequestID) (string, error) {
	fetchCtx, cancel := CombineContext(e.tabCtx, ctx)
	defer cancel()

	var body string
	err := chromedp.Run(fetchCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		data, err := network.GetRequestPostData(id).Do(ctx)
		if err != nil {
			return err
		}
		body = data
		return nil
	}))
	return body, err
}

// capturedFromEvent copies the request's URL, method, headers and any inline
// post data. Header values are rendered as strings.
func capturedFromEvent(ev *network.EventRequestWillBeSent) *schemas.CapturedRequest {
	req := ev.Request
	headers := make(map[string]string, len(req.Headers))
	for k, v := range req.Headers {
		if s, ok := v.(string); ok {
			headers[k] = s
		} else {
			headers[k] = fmt.Sprint(v)
		}
	}

	var body bytes.Buffer
	for _, entry := range req.PostDataEntries {
		if entry == nil {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(entry.Bytes)
		if err != nil {
			body.WriteString(entry.Bytes)
			continue
		}
		body.Write(decoded)
	}

	return &schemas.CapturedRequest{
		URL:      req.URL,
		Method:   req.Method,
		Headers:  headers,
		PostData: body.String(),
	}
}
