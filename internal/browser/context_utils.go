// internal/browser/context_utils.go
package browser

import (
	"context"
)

// CombineContext returns a context carrying primary's values (the chromedp
// target) that is canceled when either primary or secondary is done.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)
	if secondary.Done() == nil {
		return combined, cancel
	}
	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()
	return combined, cancel
}

// Detach returns a context with ctx's values but without its deadline or
// cancellation. The browser process is rooted in one so that it lives until
// Close rather than until the launching request's context ends.
func Detach(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
