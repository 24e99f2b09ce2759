// internal/preflight/preflight.go
package preflight

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/xkilldash9x/promptprobe/api/schemas"
	"github.com/xkilldash9x/promptprobe/internal/config"
)

const (
	defaultTimeout = 8 * time.Second
	// maxBodyBytes bounds how much of the page is read to find its title.
	maxBodyBytes = 1 << 20
)

// Checker performs the plain HTTP reachability probe that runs before a
// browser is launched. Any HTTP response counts as reachable, whatever its
// status; only transport failures (DNS, connect, TLS, timeout) are errors.
type Checker struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewChecker builds a checker. transport may be nil to use the default one.
func NewChecker(cfg config.PreflightConfig, userAgent string, transport http.RoundTripper, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := &http.Client{
		Timeout:   timeout,
		Transport: newDecodingTransport(transport),
	}
	// Keeps cookies set by redirect responses for the rest of the chain.
	if jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List}); err == nil {
		client.Jar = jar
	}
	return &Checker{
		client:    client,
		userAgent: userAgent,
		logger:    logger.Named("preflight"),
	}
}

// Check issues a GET to url and reports what came back.
func (c *Checker) Check(ctx context.Context, url string) (*schemas.PreflightReport, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building preflight request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("Preflight request failed.", zap.String("url", url), zap.Error(err))
		return nil, err
	}
	defer resp.Body.Close()

	report := &schemas.PreflightReport{
		URL:        url,
		FinalURL:   resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
	}

	if isHTML(resp.Header.Get("Content-Type")) {
		doc, err := goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			c.logger.Debug("Could not parse preflight body.", zap.Error(err))
		} else {
			report.Title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}
	// Drain what is left of the bounded body so the connection can be reused.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
	report.LatencyMs = time.Since(start).Milliseconds()

	c.logger.Debug("Preflight completed.",
		zap.String("url", url),
		zap.Int("status", report.StatusCode),
		zap.Int64("latency_ms", report.LatencyMs),
	)
	return report, nil
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") || strings.Contains(ct, "application/xhtml")
}
