// internal/browser/session_test.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp/kb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/promptprobe/api/schemas"
)

// -- Close Semantics --

func TestSessionCloseRunsShutdownOnce(t *testing.T) {
	var shutdowns, hooks atomic.Int32
	s := newSession(context.Background(), func() error {
		shutdowns.Add(1)
		return nil
	}, zaptest.NewLogger(t), func() { hooks.Add(1) })

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Close(context.Background()))
	}
	assert.EqualValues(t, 1, shutdowns.Load())
	assert.EqualValues(t, 1, hooks.Load())
}

func TestSessionCloseReportsFirstError(t *testing.T) {
	boom := errors.New("process already gone")
	s := newSession(context.Background(), func() error { return boom }, zaptest.NewLogger(t), nil)

	assert.ErrorIs(t, s.Close(context.Background()), boom)
	assert.ErrorIs(t, s.Close(context.Background()), boom)
}

func TestSessionCloseHonorsContext(t *testing.T) {
	release := make(chan struct{})
	s := newSession(context.Background(), func() error {
		<-release
		return nil
	}, zaptest.NewLogger(t), nil)
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.Close(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClosedSessionRejectsOperations(t *testing.T) {
	s := newSession(context.Background(), func() error { return nil }, zaptest.NewLogger(t), nil)
	require.NoError(t, s.Close(context.Background()))
	ctx := context.Background()

	assert.ErrorIs(t, s.Navigate(ctx, "https://example.com", time.Second), schemas.ErrSessionClosed)
	_, err := s.Content(ctx)
	assert.ErrorIs(t, err, schemas.ErrSessionClosed)
	_, err = s.CaptureScreenshot(ctx)
	assert.ErrorIs(t, err, schemas.ErrSessionClosed)
	_, err = s.Exists(ctx, schemas.CSS("div"))
	assert.ErrorIs(t, err, schemas.ErrSessionClosed)
	_, err = s.ExpectRequest(ctx, schemas.RequestMatcher{URLSubstring: "trigger?"})
	assert.ErrorIs(t, err, schemas.ErrSessionClosed)
}

func TestSessionPause(t *testing.T) {
	tabCtx, closeTab := context.WithCancel(context.Background())
	s := newSession(tabCtx, func() error { return nil }, zaptest.NewLogger(t), nil)

	assert.NoError(t, s.Pause(context.Background(), 0))
	assert.NoError(t, s.Pause(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Pause(ctx, time.Hour), context.Canceled)

	closeTab()
	assert.ErrorIs(t, s.Pause(context.Background(), time.Hour), schemas.ErrSessionClosed)
}

func TestSessionBoundsActions(t *testing.T) {
	s := newSession(context.Background(), func() error { return nil }, zaptest.NewLogger(t), nil)
	assert.Equal(t, defaultActionTimeout, s.actionTimeout)

	s.actionTimeout = 50 * time.Millisecond
	ctx, cancel := s.bounded(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(50*time.Millisecond), deadline, 50*time.Millisecond)

	// A tighter caller deadline wins.
	parent, cancelParent := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelParent()
	s.actionTimeout = time.Hour
	ctx, cancel = s.bounded(parent)
	defer cancel()
	deadline, _ = ctx.Deadline()
	parentDeadline, _ := parent.Deadline()
	assert.Equal(t, parentDeadline, deadline)
}

func TestFillRejectsTextSelector(t *testing.T) {
	s := newSession(context.Background(), func() error { return nil }, zaptest.NewLogger(t), nil)
	err := s.Fill(context.Background(), schemas.Text("Prompt"), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "css selector")
}

// -- Selector Helpers --

func TestLocate(t *testing.T) {
	q, _ := locate(schemas.CSS("div[contenteditable='true']"))
	assert.Equal(t, "div[contenteditable='true']", q)

	q, _ = locate(schemas.Text("GPT 4.1 Mini"))
	assert.Equal(t, `//*[contains(normalize-space(text()), "GPT 4.1 Mini")]`, q)
}

func TestXPathLiteral(t *testing.T) {
	assert.Equal(t, `"plain"`, xpathLiteral("plain"))
	assert.Equal(t, `'say "hi"'`, xpathLiteral(`say "hi"`))
	assert.Equal(t, `concat("it's ", '"', "quoted", '"')`, xpathLiteral(`it's "quoted"`))
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, kb.Enter, keyFor("Enter"))
	assert.Equal(t, kb.Enter, keyFor("enter"))
	assert.Equal(t, "abc", keyFor("abc"))
}

func TestJSONEncode(t *testing.T) {
	assert.Equal(t, `"a\"b"`, jsonEncode(`a"b`))
	assert.Equal(t, `"div[contenteditable='true']"`, jsonEncode("div[contenteditable='true']"))
}

// -- Request Capture --

func TestCapturedFromEvent(t *testing.T) {
	body := `{"prompt":"hi","session_token":"abc"}`
	ev := &network.EventRequestWillBeSent{
		RequestID: "1000.1",
		Request: &network.Request{
			URL:    "https://api.example.test/trigger?stream=1",
			Method: "POST",
			Headers: network.Headers{
				"Content-Type": "application/json",
				"X-Retry":      float64(2),
			},
			HasPostData: true,
			PostDataEntries: []*network.PostDataEntry{
				{Bytes: base64.StdEncoding.EncodeToString([]byte(body[:10]))},
				nil,
				{Bytes: base64.StdEncoding.EncodeToString([]byte(body[10:]))},
			},
		},
	}

	got := capturedFromEvent(ev)
	assert.Equal(t, "https://api.example.test/trigger?stream=1", got.URL)
	assert.Equal(t, "POST", got.Method)
	assert.Equal(t, "application/json", got.Headers["Content-Type"])
	assert.Equal(t, "2", got.Headers["X-Retry"])
	assert.Equal(t, body, got.PostData)
}

func TestCapturedFromEventRawEntry(t *testing.T) {
	ev := &network.EventRequestWillBeSent{
		Request: &network.Request{
			URL:             "https://x.test/trigger?",
			Method:          "POST",
			PostDataEntries: []*network.PostDataEntry{{Bytes: "not base64!"}},
		},
	}
	assert.Equal(t, "not base64!", capturedFromEvent(ev).PostData)
}
