// internal/probe/navigator_test.go
package probe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestNavigator(t *testing.T) (*Navigator, *[]time.Duration) {
	t.Helper()
	cfg := testConfig(t)
	n := NewNavigator(cfg.Navigation, zaptest.NewLogger(t), nil)
	var sleeps []time.Duration
	n.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	n.now = func() time.Time { return time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC) }
	return n, &sleeps
}

func TestNavigate_AlwaysFails(t *testing.T) {
	n, sleeps := newTestNavigator(t)
	page := newFakePage()
	url := "https://target.test/"
	page.navErrs[url] = []error{errNavTimeout, errNavTimeout, errNavTimeout}

	attempts, err := n.Navigate(context.Background(), page, url)
	require.Error(t, err)
	assert.ErrorIs(t, err, errNavTimeout)

	require.Len(t, page.navCalls, 3, "exactly the configured number of attempts")
	assert.Equal(t, 30*time.Second, page.navCalls[0].timeout)
	assert.Equal(t, 60*time.Second, page.navCalls[1].timeout)
	assert.Equal(t, 90*time.Second, page.navCalls[2].timeout)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, *sleeps, "no backoff after the last attempt")

	require.Len(t, attempts, 3, "one diagnostic entry per attempt")
	for i, a := range attempts {
		assert.Equal(t, i+1, a.Attempt)
		assert.Equal(t, int64((i+1)*30000), a.TimeoutMs)
		assert.Equal(t, errNavTimeout.Error(), a.Exception)
		assert.Equal(t, "Target", a.PageTitle)
		assert.Empty(t, a.ScreenshotError)
		assert.Equal(t, "fail_nav_20261018T093000Z_att"+string(rune('1'+i))+".png", filepath.Base(a.ScreenshotPath))
		data, readErr := os.ReadFile(a.ScreenshotPath)
		require.NoError(t, readErr)
		assert.Equal(t, "\x89PNG", string(data))
	}
}

func TestNavigate_SucceedsAfterRetry(t *testing.T) {
	n, sleeps := newTestNavigator(t)
	page := newFakePage()
	url := "https://target.test/"
	page.navErrs[url] = []error{errNavTimeout}

	attempts, err := n.Navigate(context.Background(), page, url)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Len(t, page.navCalls, 2)
	assert.Equal(t, []time.Duration{time.Second}, *sleeps)
	assert.Equal(t, []time.Duration{1500 * time.Millisecond}, page.pauses, "settle wait after success")
}

func TestNavigate_ArtifactFailuresDoNotAbort(t *testing.T) {
	n, _ := newTestNavigator(t)
	page := newFakePage()
	page.screenshotErr = errors.New("target crashed")
	page.contentErr = errors.New("execution context was destroyed")
	url := "https://target.test/"
	page.navErrs[url] = []error{errNavTimeout, errNavTimeout, errNavTimeout}

	attempts, err := n.Navigate(context.Background(), page, url)
	require.Error(t, err)
	require.Len(t, attempts, 3)
	for _, a := range attempts {
		assert.Equal(t, "target crashed", a.ScreenshotError)
		assert.Empty(t, a.ScreenshotPath)
		assert.Equal(t, "execution context was destroyed", a.PageContentError)
		assert.Empty(t, a.PageContent)
	}
}

func TestNavigate_ScreenshotWriteFailureIsRecorded(t *testing.T) {
	n, _ := newTestNavigator(t)
	n.writeFile = func(string, []byte) error { return errors.New("read-only file system") }
	page := newFakePage()
	url := "https://target.test/"
	page.navErrs[url] = []error{errNavTimeout}

	attempts, err := n.Navigate(context.Background(), page, url)
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "read-only file system", attempts[0].ScreenshotError)
	assert.Empty(t, attempts[0].ScreenshotPath)
}

func TestNavigate_ContentIsTruncated(t *testing.T) {
	n, _ := newTestNavigator(t)
	n.cfg.ContentLimit = 10
	page := newFakePage()
	page.content = strings.Repeat("é", 25)
	url := "https://target.test/"
	page.navErrs[url] = []error{errNavTimeout}

	attempts, err := n.Navigate(context.Background(), page, url)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("é", 10), attempts[0].PageContent)
}

func TestNavigate_StopsWhenContextCanceled(t *testing.T) {
	n, _ := newTestNavigator(t)
	ctx, cancel := context.WithCancel(context.Background())
	n.sleep = func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}
	page := newFakePage()
	url := "https://target.test/"
	page.navErrs[url] = []error{errNavTimeout, errNavTimeout, errNavTimeout}

	attempts, err := n.Navigate(ctx, page, url)
	require.Error(t, err)
	assert.Len(t, attempts, 1)
	assert.Len(t, page.navCalls, 1)
}

func TestSanity(t *testing.T) {
	n, _ := newTestNavigator(t)
	page := newFakePage()
	page.navErrs["https://example.test"] = []error{errors.New("net::ERR_NAME_NOT_RESOLVED")}

	ok, exc := n.Sanity(context.Background(), page, "https://example.test")
	assert.False(t, ok)
	assert.Equal(t, "net::ERR_NAME_NOT_RESOLVED", exc)
	assert.Equal(t, 10*time.Second, page.navCalls[0].timeout)

	ok, exc = n.Sanity(context.Background(), page, "https://example.test")
	assert.True(t, ok)
	assert.Empty(t, exc)
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "abc", truncateRunes("abc", 5))
	assert.Equal(t, "ab", truncateRunes("abc", 2))
	assert.Equal(t, "日本", truncateRunes("日本語", 2))
}
