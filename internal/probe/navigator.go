// internal/probe/navigator.go
package probe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/xkilldash9x/promptprobe/api/schemas"
	"github.com/xkilldash9x/promptprobe/internal/config"
	"github.com/xkilldash9x/promptprobe/internal/observability"
)

// artifactCaptureTimeout bounds each screenshot or content read after a
// failed attempt. The page may be wedged, so these cannot wait forever.
const artifactCaptureTimeout = 10 * time.Second

// Navigator loads the target page with linearly growing timeouts and
// collects diagnostics for every failed attempt.
type Navigator struct {
	cfg     config.NavigationConfig
	logger  *zap.Logger
	metrics *observability.Metrics

	sleep     func(ctx context.Context, d time.Duration) error
	now       func() time.Time
	writeFile func(name string, data []byte) error
}

// NewNavigator creates a navigator. metrics may be nil.
func NewNavigator(cfg config.NavigationConfig, logger *zap.Logger, metrics *observability.Metrics) *Navigator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Navigator{
		cfg:     cfg,
		logger:  logger.Named("navigator"),
		metrics: metrics,
		sleep:   sleepContext,
		now:     time.Now,
		writeFile: func(name string, data []byte) error {
			return os.WriteFile(name, data, 0o644)
		},
	}
}

// AttemptTimeout is the navigation timeout for 1-based attempt k.
func (n *Navigator) AttemptTimeout(k int) time.Duration {
	return time.Duration(k) * n.cfg.BaseTimeout
}

// Backoff is the pause after failed attempt k.
func (n *Navigator) Backoff(k int) time.Duration {
	return time.Duration(k) * n.cfg.BackoffStep
}

// Sanity loads url once as a connectivity baseline. It reports whether the
// load succeeded and, if not, the error text.
func (n *Navigator) Sanity(ctx context.Context, page schemas.PageSession, url string) (bool, string) {
	timeout := n.cfg.SanityTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if err := page.Navigate(ctx, url, timeout); err != nil {
		n.logger.Info("Sanity navigation failed.", zap.String("url", url), zap.Error(err))
		return false, err.Error()
	}
	return true, ""
}

// Navigate tries to load url up to MaxAttempts times. It returns one entry
// per failed attempt; on success the page has loaded and settled. When every
// attempt fails the returned error wraps the last failure.
func (n *Navigator) Navigate(ctx context.Context, page schemas.PageSession, url string) ([]schemas.NavigationAttempt, error) {
	var (
		attempts []schemas.NavigationAttempt
		lastErr  error
	)

	for k := 1; k <= n.cfg.MaxAttempts; k++ {
		timeout := n.AttemptTimeout(k)
		n.logger.Debug("Navigating.", zap.String("url", url), zap.Int("attempt", k), zap.Duration("timeout", timeout))

		err := page.Navigate(ctx, url, timeout)
		if err == nil {
			n.metrics.NavigationAttempt("ok")
			if perr := page.Pause(ctx, n.cfg.SettleWait); perr != nil && ctx.Err() != nil {
				return attempts, ctx.Err()
			}
			return attempts, nil
		}

		lastErr = err
		n.metrics.NavigationAttempt("error")
		n.logger.Warn("Navigation attempt failed.", zap.Int("attempt", k), zap.Error(err))

		record := schemas.NavigationAttempt{
			Attempt:   k,
			TimeoutMs: timeout.Milliseconds(),
			Exception: err.Error(),
		}
		n.captureArtifacts(ctx, page, &record)
		attempts = append(attempts, record)

		if ctx.Err() != nil {
			break
		}
		if k < n.cfg.MaxAttempts {
			if err := n.sleep(ctx, n.Backoff(k)); err != nil {
				break
			}
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no navigation attempts configured")
	}
	return attempts, fmt.Errorf("navigation failed after %d attempts: %w", len(attempts), lastErr)
}

// captureArtifacts fills in the screenshot and page content for a failed
// attempt. Failures are recorded on the attempt and never returned.
func (n *Navigator) captureArtifacts(ctx context.Context, page schemas.PageSession, record *schemas.NavigationAttempt) {
	shotCtx, cancel := context.WithTimeout(ctx, artifactCaptureTimeout)
	png, err := page.CaptureScreenshot(shotCtx)
	cancel()
	if err == nil {
		path := filepath.Join(n.artifactDir(), fmt.Sprintf("fail_nav_%s_att%d.png", n.now().UTC().Format("20060102T150405Z"), record.Attempt))
		err = n.writeFile(path, png)
		if err == nil {
			record.ScreenshotPath = path
		}
	}
	if err != nil {
		record.ScreenshotError = err.Error()
	}

	contentCtx, cancel := context.WithTimeout(ctx, artifactCaptureTimeout)
	html, err := page.Content(contentCtx)
	cancel()
	if err != nil {
		record.PageContentError = err.Error()
		return
	}
	record.PageTitle = pageTitle(html)
	record.PageContent = truncateRunes(html, n.contentLimit())
}

func (n *Navigator) artifactDir() string {
	if n.cfg.ArtifactDir == "" {
		return os.TempDir()
	}
	return n.cfg.ArtifactDir
}

func (n *Navigator) contentLimit() int {
	if n.cfg.ContentLimit <= 0 {
		return 8000
	}
	return n.cfg.ContentLimit
}

func pageTitle(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(doc.Find("title").First().Text())
}

// truncateRunes keeps at most limit characters of s.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	count := 0
	for i := range s {
		if count == limit {
			return s[:i]
		}
		count++
	}
	return s
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
