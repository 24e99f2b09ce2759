// internal/browser/emulation.go
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/go-rod/stealth"

	"github.com/xkilldash9x/promptprobe/internal/config"
)

// emulationActions make the tab look like the configured desktop browser:
// user agent, viewport, locale, timezone and, when enabled, the evasion
// script that hides headless markers.
func emulationActions(cfg config.BrowserConfig) chromedp.Tasks {
	var tasks chromedp.Tasks

	if cfg.UserAgent != "" {
		override := emulation.SetUserAgentOverride(cfg.UserAgent)
		if cfg.Locale != "" {
			override = override.WithAcceptLanguage(acceptLanguage(cfg.Locale))
		}
		tasks = append(tasks, override)
	}

	if w, h := cfg.Viewport["width"], cfg.Viewport["height"]; w > 0 && h > 0 {
		tasks = append(tasks, emulation.SetDeviceMetricsOverride(int64(w), int64(h), 1, false))
	}

	if cfg.Locale != "" {
		tasks = append(tasks,
			emulation.SetLocaleOverride().WithLocale(cfg.Locale),
			network.SetExtraHTTPHeaders(network.Headers{"Accept-Language": acceptLanguage(cfg.Locale)}),
		)
	}

	if cfg.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(cfg.Timezone))
	}

	if cfg.Stealth {
		// AddScriptToEvaluateOnNewDocument returns an identifier as well as an
		// error, so it needs an ActionFunc wrapper.
		tasks = append(tasks, chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(stealth.JS).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}))
	}
	return tasks
}

// acceptLanguage builds an Accept-Language value for a locale such as
// "en-US", listing the bare language second.
func acceptLanguage(locale string) string {
	lang, _, found := strings.Cut(locale, "-")
	if !found || lang == "" {
		return locale
	}
	return fmt.Sprintf("%s,%s;q=0.9", locale, lang)
}
