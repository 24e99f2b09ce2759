// api/schemas/result.go
package schemas

import (
	"strings"
	"time"
)

// -- Request Capture Schemas --

// RequestMatcher selects the outbound request a run waits for.
// A request matches when its URL contains URLSubstring and its method equals
// Method (case-insensitive). An empty Method matches any method.
type RequestMatcher struct {
	URLSubstring string `json:"url_substring"`
	Method       string `json:"method"`
}

// Matches reports whether a request with the given URL and method satisfies the matcher.
func (m RequestMatcher) Matches(url, method string) bool {
	if m.Method != "" && !strings.EqualFold(m.Method, method) {
		return false
	}
	return strings.Contains(url, m.URLSubstring)
}

// CapturedRequest is the outbound request observed by the interceptor.
type CapturedRequest struct {
	URL      string            `json:"url"`
	Method   string            `json:"method"`
	Headers  map[string]string `json:"headers"`
	PostData string            `json:"post_data"`
}

// -- Token Schemas --

// TokenDetail holds the unverified decode of a JWT-shaped token.
type TokenDetail struct {
	Algorithm string                 `json:"alg,omitempty"`
	Type      string                 `json:"typ,omitempty"`
	Claims    map[string]interface{} `json:"claims,omitempty"`
	ExpiresAt *time.Time             `json:"expires_at,omitempty"`
	Expired   bool                   `json:"expired"`
}

// -- Diagnostics Schemas --

// PreflightReport describes the plain HTTP reachability probe.
type PreflightReport struct {
	URL        string `json:"url"`
	FinalURL   string `json:"final_url,omitempty"`
	StatusCode int    `json:"status_code"`
	Title      string `json:"title,omitempty"`
	LatencyMs  int64  `json:"latency_ms"`
}

// NavigationAttempt records one failed navigation attempt and the artifacts
// collected after it. Capture failures are recorded next to the artifact they
// were meant to produce.
type NavigationAttempt struct {
	Attempt          int    `json:"attempt"`
	TimeoutMs        int64  `json:"timeout_ms"`
	Exception        string `json:"exception"`
	ScreenshotPath   string `json:"screenshot_path,omitempty"`
	ScreenshotError  string `json:"screenshot_error,omitempty"`
	PageTitle        string `json:"page_title,omitempty"`
	PageContent      string `json:"page_content,omitempty"`
	PageContentError string `json:"page_content_error,omitempty"`
}

// Diagnostics is the per-run bundle of non-fatal observations.
type Diagnostics struct {
	Preflight  *PreflightReport    `json:"preflight,omitempty"`
	ExampleOK  *bool               `json:"example_ok,omitempty"`
	ExampleExc string              `json:"example_exc,omitempty"`
	Attempts   []NavigationAttempt `json:"attempts,omitempty"`
}

// -- Result Schemas --

// AutomationResult is the outcome of a single pipeline run. It is built once
// by the runner and not modified after it is returned.
type AutomationResult struct {
	RunID              string                 `json:"run_id"`
	MessageSent        string                 `json:"message_sent"`
	Request            *CapturedRequest       `json:"request"`
	Tokens             map[string]string      `json:"tokens"`
	TokenDetails       map[string]TokenDetail `json:"token_details,omitempty"`
	Error              string                 `json:"error,omitempty"`
	Exception          string                 `json:"exception,omitempty"`
	LastException      string                 `json:"last_exception,omitempty"`
	PreflightException string                 `json:"preflight_exception,omitempty"`
	CaptureError       string                 `json:"capture_error,omitempty"`
	Hint               string                 `json:"hint,omitempty"`
	Trace              string                 `json:"trace,omitempty"`
	Diagnostics        *Diagnostics           `json:"diagnostics,omitempty"`
}

// Failed reports whether the run ended in one of the error categories.
func (r *AutomationResult) Failed() bool {
	return r.Error != ""
}

// Error messages reported in AutomationResult.Error.
const (
	ErrMsgPreflight  = "Preflight HTTP check failed"
	ErrMsgLaunch     = "Browser launch failed"
	ErrMsgNavigation = "Navigation failed after retries"
	ErrMsgFillInput  = "failed to fill input"
	ErrMsgUnexpected = "unexpected failure"
)

// Hints attached to failure results.
const (
	HintPreflight  = "Check outbound network/DNS from the host/container, or that the site doesn't block container IPs."
	HintNoNetwork  = "The sanity page also failed to load: the host likely has no outbound network or DNS."
	HintBlocked    = "The sanity page loaded but the target did not: the site may block this IP range or require extra headers."
	HintNavigation = "The target failed to load. If the sanity page also failed, the host likely has no outbound network or DNS; otherwise the site may block this IP range."
)
