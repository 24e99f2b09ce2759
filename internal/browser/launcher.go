// internal/browser/launcher.go
package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/promptprobe/api/schemas"
	"github.com/xkilldash9x/promptprobe/internal/config"
	"github.com/xkilldash9x/promptprobe/internal/observability"
)

const (
	defaultLaunchTimeout = 60 * time.Second
	browserCloseTimeout  = 10 * time.Second
)

// Launcher starts one headless Chrome per call to Launch. It implements
// schemas.BrowserLauncher.
type Launcher struct {
	cfg     config.BrowserConfig
	logger  *zap.Logger
	metrics *observability.Metrics
}

var _ schemas.BrowserLauncher = (*Launcher)(nil)

// NewLauncher creates a launcher for the given browser configuration.
// metrics may be nil.
func NewLauncher(cfg config.BrowserConfig, logger *zap.Logger, metrics *observability.Metrics) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger.Named("browser"), metrics: metrics}
}

// Launch starts the browser, opens a page and enables network events on it.
// The process is rooted in a detached context and lives until the returned
// session is closed; a failed launch leaves nothing running.
func (l *Launcher) Launch(ctx context.Context) (schemas.PageSession, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(Detach(ctx), DefaultAllocatorOptions(l.cfg)...)

	var ctxOpts []chromedp.ContextOption
	if l.cfg.Debug {
		ctxOpts = append(ctxOpts, chromedp.WithDebugf(l.logger.Sugar().Debugf))
	}
	ctxOpts = append(ctxOpts, chromedp.WithErrorf(l.logger.Sugar().Errorf))
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)

	shutdown := func() error {
		closeCtx, cancel := context.WithTimeout(tabCtx, browserCloseTimeout)
		defer cancel()
		// chromedp.Cancel closes the browser gracefully and waits for the process.
		err := chromedp.Cancel(closeCtx)
		tabCancel()
		allocCancel()
		return err
	}

	timeout := l.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}

	// The first Run allocates the browser, so it must use tabCtx itself rather
	// than a derived timeout context, which would own the process.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx, l.setupActions()...) }()

	var err error
	select {
	case err = <-started:
	case <-time.After(timeout):
		err = fmt.Errorf("browser did not start within %s", timeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	l.logger.Debug("Browser launched.", zap.Bool("headless", l.cfg.Headless), zap.Bool("stealth", l.cfg.Stealth))
	session := newSession(tabCtx, shutdown, l.logger, l.metrics.BrowserOpened())
	if l.cfg.ActionTimeout > 0 {
		session.actionTimeout = l.cfg.ActionTimeout
	}
	return session, nil
}

func (l *Launcher) setupActions() []chromedp.Action {
	actions := []chromedp.Action{network.Enable()}
	for _, a := range emulationActions(l.cfg) {
		actions = append(actions, a)
	}
	return actions
}
