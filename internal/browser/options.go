// internal/browser/options.go
package browser

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/xkilldash9x/promptprobe/internal/config"
)

const (
	defaultWindowWidth  = 1280
	defaultWindowHeight = 800
)

// LaunchFlag is one Chrome command-line switch. Value is a bool for bare
// switches and a string for key=value switches.
type LaunchFlag struct {
	Name  string
	Value interface{}
}

// baseFlags keep Chrome alive inside containers without a user namespace
// or a large /dev/shm.
var baseFlags = []LaunchFlag{
	{"no-sandbox", true},
	{"disable-setuid-sandbox", true},
	{"disable-dev-shm-usage", true},
	{"disable-gpu", true},
	{"disable-extensions", true},
	{"disable-background-networking", true},
	{"no-first-run", true},
	{"no-default-browser-check", true},
	{"mute-audio", true},
}

// LaunchFlags returns the switches a run's browser is started with.
// User-supplied args are appended last and may override earlier ones.
func LaunchFlags(cfg config.BrowserConfig) []LaunchFlag {
	flags := make([]LaunchFlag, 0, len(baseFlags)+len(cfg.Args)+3)
	flags = append(flags, baseFlags...)

	if cfg.Headless {
		flags = append(flags, LaunchFlag{"headless", true}, LaunchFlag{"hide-scrollbars", true})
	}

	width, height := defaultWindowWidth, defaultWindowHeight
	if w := cfg.Viewport["width"]; w > 0 {
		width = w
	}
	if h := cfg.Viewport["height"]; h > 0 {
		height = h
	}
	flags = append(flags, LaunchFlag{"window-size", fmt.Sprintf("%d,%d", width, height)})

	for _, arg := range cfg.Args {
		key, value, found := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if key == "" {
			continue
		}
		if found {
			flags = append(flags, LaunchFlag{key, value})
		} else {
			flags = append(flags, LaunchFlag{key, true})
		}
	}
	return flags
}

// DefaultAllocatorOptions converts the launch configuration into chromedp
// allocator options.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	flags := LaunchFlags(cfg)
	opts := make([]chromedp.ExecAllocatorOption, 0, len(flags)+2)
	for _, f := range flags {
		opts = append(opts, chromedp.Flag(f.Name, f.Value))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
