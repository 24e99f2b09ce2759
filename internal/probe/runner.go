// internal/probe/runner.go
package probe

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/promptprobe/api/schemas"
	"github.com/xkilldash9x/promptprobe/internal/browser"
	"github.com/xkilldash9x/promptprobe/internal/config"
	"github.com/xkilldash9x/promptprobe/internal/observability"
	"github.com/xkilldash9x/promptprobe/internal/preflight"
	"github.com/xkilldash9x/promptprobe/internal/tokens"
)

// closeTimeout bounds browser teardown, which runs even after the run's
// context is done.
const closeTimeout = 15 * time.Second

// Run outcomes reported to metrics.
const (
	outcomeSuccess    = "success"
	outcomeNoRequest  = "no_request"
	outcomePreflight  = "preflight_error"
	outcomeLaunch     = "launch_error"
	outcomeNavigation = "navigation_error"
	outcomeFill       = "fill_error"
	outcomeUnexpected = "unexpected"
)

// ReachabilityChecker is the plain HTTP probe run before the browser starts.
type ReachabilityChecker interface {
	Check(ctx context.Context, url string) (*schemas.PreflightReport, error)
}

// RunOptions adjust a single run.
type RunOptions struct {
	// Message replaces the randomly chosen prompt when set.
	Message string
}

// Runner executes the whole pipeline: preflight, launch, navigate, interact
// and extract. Each call gets its own browser.
type Runner struct {
	cfg        *config.Config
	launcher   schemas.BrowserLauncher
	preflight  ReachabilityChecker
	navigator  *Navigator
	interactor *Interactor
	extractor  *tokens.Extractor
	metrics    *observability.Metrics
	logger     *zap.Logger

	pick func(prompts []string) string
	now  func() time.Time
}

// NewRunner wires a runner. checker may be nil to skip the HTTP probe and
// metrics may be nil.
func NewRunner(cfg *config.Config, launcher schemas.BrowserLauncher, checker ReachabilityChecker, logger *zap.Logger, metrics *observability.Metrics) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		launcher:   launcher,
		preflight:  checker,
		navigator:  NewNavigator(cfg.Navigation, logger, metrics),
		interactor: NewInteractor(cfg, logger, metrics),
		extractor:  tokens.NewExtractor(cfg.Tokens, logger),
		metrics:    metrics,
		logger:     logger.Named("runner"),
		pick:       pickRandom,
		now:        time.Now,
	}
}

// NewRunnerFromConfig wires the chromedp launcher and, when enabled, the
// HTTP preflight.
func NewRunnerFromConfig(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) *Runner {
	var checker ReachabilityChecker
	if cfg.Preflight.Enabled {
		checker = preflight.NewChecker(cfg.Preflight, cfg.Browser.UserAgent, nil, logger)
	}
	return NewRunner(cfg, browser.NewLauncher(cfg.Browser, logger, metrics), checker, logger, metrics)
}

// Run executes one pipeline run. It never returns an error: every failure,
// including a panic, is reported in the result.
func (r *Runner) Run(ctx context.Context, opts RunOptions) (result *schemas.AutomationResult) {
	message := opts.Message
	if message == "" {
		message = r.pick(r.cfg.Target.PromptPool())
	}
	result = &schemas.AutomationResult{
		RunID:       uuid.NewString(),
		MessageSent: message,
		Tokens:      map[string]string{},
	}
	logger := r.logger.With(zap.String("run_id", result.RunID))
	finish := r.metrics.RunStarted()
	outcome := outcomeUnexpected

	defer func() {
		if p := recover(); p != nil {
			logger.Error("Run panicked.", zap.Any("panic", p))
			result.Error = schemas.ErrMsgUnexpected
			result.Exception = fmt.Sprint(p)
			result.Trace = string(debug.Stack())
			outcome = outcomeUnexpected
		}
		finish(outcome)
		logger.Info("Run finished.", zap.String("outcome", outcome), zap.Int("tokens", len(result.Tokens)))
	}()

	logger.Info("Run started.", zap.String("message", message), zap.String("target", r.cfg.Target.URL))
	outcome = r.execute(ctx, logger, result)
	return result
}

func (r *Runner) execute(ctx context.Context, logger *zap.Logger, result *schemas.AutomationResult) string {
	diagnostics := &schemas.Diagnostics{}

	if r.preflight != nil {
		report, err := r.preflight.Check(ctx, r.cfg.Target.URL)
		if err != nil {
			result.Error = schemas.ErrMsgPreflight
			result.PreflightException = err.Error()
			result.Hint = schemas.HintPreflight
			return outcomePreflight
		}
		diagnostics.Preflight = report
	}

	page, err := r.launcher.Launch(ctx)
	if err != nil {
		logger.Error("Browser launch failed.", zap.Error(err))
		result.Error = schemas.ErrMsgLaunch
		result.Exception = err.Error()
		result.Diagnostics = diagnostics
		return outcomeLaunch
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := page.Close(closeCtx); err != nil {
			logger.Warn("Browser close reported an error.", zap.Error(err))
		}
	}()

	if sanityURL := r.cfg.Target.SanityURL; sanityURL != "" {
		ok, exc := r.navigator.Sanity(ctx, page, sanityURL)
		diagnostics.ExampleOK = &ok
		diagnostics.ExampleExc = exc
	}

	attempts, err := r.navigator.Navigate(ctx, page, r.cfg.Target.URL)
	diagnostics.Attempts = attempts
	result.Diagnostics = diagnostics
	if err != nil {
		result.Error = schemas.ErrMsgNavigation
		result.LastException = lastException(attempts, err)
		result.Hint = navigationHint(diagnostics.ExampleOK)
		return outcomeNavigation
	}

	outcome, err := r.interactor.Run(ctx, page, result.MessageSent)
	if err != nil {
		result.Error = schemas.ErrMsgFillInput
		result.Exception = err.Error()
		return outcomeFill
	}

	result.Request = outcome.Request
	result.CaptureError = outcome.CaptureError
	if outcome.Request == nil {
		return outcomeNoRequest
	}

	extracted := r.extractor.ExtractWithSources(outcome.Request.PostData)
	result.Tokens = extracted.Tokens
	for source, n := range extracted.Sources {
		r.metrics.TokensExtracted(source, n)
	}
	if r.cfg.Tokens.DecodeJWT {
		result.TokenDetails = tokens.DecodeAll(extracted.Tokens, r.now())
	}
	return outcomeSuccess
}

func lastException(attempts []schemas.NavigationAttempt, err error) string {
	if n := len(attempts); n > 0 {
		return attempts[n-1].Exception
	}
	if unwrapped := errors.Unwrap(err); unwrapped != nil {
		return unwrapped.Error()
	}
	return err.Error()
}

// navigationHint picks a hint from the sanity check: its failure points at
// the host's network, its success at the target blocking us.
func navigationHint(exampleOK *bool) string {
	switch {
	case exampleOK == nil:
		return schemas.HintNavigation
	case *exampleOK:
		return schemas.HintBlocked
	default:
		return schemas.HintNoNetwork
	}
}

func pickRandom(prompts []string) string {
	if len(prompts) == 0 {
		return ""
	}
	return prompts[rand.IntN(len(prompts))]
}
