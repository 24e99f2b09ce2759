// internal/browser/options_test.go
package browser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/xkilldash9x/promptprobe/internal/config"
)

func flagValue(flags []LaunchFlag, name string) (interface{}, bool) {
	var (
		value interface{}
		found bool
	)
	// Later flags override earlier ones, as on the Chrome command line.
	for _, f := range flags {
		if f.Name == name {
			value, found = f.Value, true
		}
	}
	return value, found
}

func TestLaunchFlags(t *testing.T) {
	t.Run("ContainerSafeDefaults", func(t *testing.T) {
		flags := LaunchFlags(config.BrowserConfig{Headless: true})
		for _, name := range []string{"no-sandbox", "disable-setuid-sandbox", "disable-dev-shm-usage", "disable-gpu", "headless"} {
			v, ok := flagValue(flags, name)
			assert.True(t, ok, name)
			assert.Equal(t, true, v, name)
		}
		v, _ := flagValue(flags, "window-size")
		assert.Equal(t, "1280,800", v)
	})

	t.Run("HeadlessDisabled", func(t *testing.T) {
		flags := LaunchFlags(config.BrowserConfig{Headless: false})
		_, ok := flagValue(flags, "headless")
		assert.False(t, ok)
	})

	t.Run("WithViewport", func(t *testing.T) {
		flags := LaunchFlags(config.BrowserConfig{Viewport: map[string]int{"width": 1920, "height": 1080}})
		v, _ := flagValue(flags, "window-size")
		assert.Equal(t, "1920,1080", v)
	})

	t.Run("WithCustomArgs", func(t *testing.T) {
		flags := LaunchFlags(config.BrowserConfig{Args: []string{"--lang=en-US", "--custom-arg", "--", "proxy-server=http://p:3128"}})
		v, _ := flagValue(flags, "lang")
		assert.Equal(t, "en-US", v)
		v, _ = flagValue(flags, "custom-arg")
		assert.Equal(t, true, v)
		v, _ = flagValue(flags, "proxy-server")
		assert.Equal(t, "http://p:3128", v)
		_, ok := flagValue(flags, "")
		assert.False(t, ok)
	})

	t.Run("ArgsOverrideDefaults", func(t *testing.T) {
		flags := LaunchFlags(config.BrowserConfig{Args: []string{"--window-size=800,600"}})
		v, _ := flagValue(flags, "window-size")
		assert.Equal(t, "800,600", v)
	})
}

func TestDefaultAllocatorOptions(t *testing.T) {
	base := DefaultAllocatorOptions(config.BrowserConfig{Headless: true})
	withExtras := DefaultAllocatorOptions(config.BrowserConfig{Headless: true, UserAgent: "probe/1.0", ExecPath: "/usr/bin/chromium"})

	assert.Len(t, base, len(LaunchFlags(config.BrowserConfig{Headless: true})))
	assert.Len(t, withExtras, len(base)+2)
}
