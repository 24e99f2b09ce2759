// internal/probe/interaction.go
package probe

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/promptprobe/api/schemas"
	"github.com/xkilldash9x/promptprobe/internal/config"
	"github.com/xkilldash9x/promptprobe/internal/observability"
)

// ErrFillInput is returned when the prompt input cannot be filled. It is the
// only interaction failure that aborts a run.
var ErrFillInput = errors.New(schemas.ErrMsgFillInput)

// InteractionOutcome is what the interaction sequence observed.
type InteractionOutcome struct {
	// Request is nil when no trigger request arrived in time.
	Request *schemas.CapturedRequest
	// CaptureError is set when waiting for the request failed for a reason
	// other than the timeout.
	CaptureError string
}

// Interactor drives the chat UI: pick a model, type the prompt, submit it
// and capture the request the submission produces.
type Interactor struct {
	target      config.TargetConfig
	interaction config.InteractionConfig
	capture     config.CaptureConfig
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// NewInteractor creates an interactor. metrics may be nil.
func NewInteractor(cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) *Interactor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interactor{
		target:      cfg.Target,
		interaction: cfg.Interaction,
		capture:     cfg.Capture,
		logger:      logger.Named("interactor"),
		metrics:     metrics,
	}
}

func (i *Interactor) matcher() schemas.RequestMatcher {
	return schemas.RequestMatcher{URLSubstring: i.target.TriggerURLSubstring, Method: i.target.TriggerMethod}
}

// Run performs the sequence on a loaded page. The returned error is non-nil
// only when the input could not be filled, and then wraps ErrFillInput.
func (i *Interactor) Run(ctx context.Context, page schemas.PageSession, message string) (*InteractionOutcome, error) {
	i.selectModel(ctx, page)

	input := schemas.CSS(i.target.InputSelector)
	if err := page.Fill(ctx, input, message); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFillInput, err)
	}
	_ = page.Pause(ctx, i.interaction.FillSettle)

	// The expectation must be armed before submitting, or a fast request
	// would be sent before anything is listening for it.
	expectation, err := page.ExpectRequest(ctx, i.matcher())
	if err != nil {
		i.metrics.RequestCapture("error")
		return &InteractionOutcome{CaptureError: err.Error()}, nil
	}
	defer expectation.Cancel()

	i.submit(ctx, page, input)

	req, err := expectation.Wait(ctx, i.capture.Timeout)
	switch {
	case err == nil:
		i.metrics.RequestCapture("captured")
		i.logger.Info("Captured trigger request.", zap.String("url", req.URL), zap.Int("body_bytes", len(req.PostData)))
		return &InteractionOutcome{Request: req}, nil
	case errors.Is(err, schemas.ErrNoRequestCaptured):
		i.metrics.RequestCapture("timeout")
		i.logger.Info("No trigger request seen before the capture timeout.", zap.Duration("timeout", i.capture.Timeout))
		return &InteractionOutcome{}, nil
	default:
		i.metrics.RequestCapture("error")
		i.logger.Warn("Waiting for trigger request failed.", zap.Error(err))
		return &InteractionOutcome{CaptureError: err.Error()}, nil
	}
}

// selectModel clicks the model option when it is on the page. Every failure
// here is ignored.
func (i *Interactor) selectModel(ctx context.Context, page schemas.PageSession) {
	if i.target.ModelOptionText == "" {
		return
	}
	option := schemas.Text(i.target.ModelOptionText)
	present, err := page.Exists(ctx, option)
	if err != nil || !present {
		i.logger.Debug("Model option not present; skipping.", zap.String("option", i.target.ModelOptionText), zap.Error(err))
		return
	}
	if err := page.Click(ctx, option, i.interaction.ModelClickTimeout); err != nil {
		i.logger.Debug("Model option click failed; continuing.", zap.Error(err))
		return
	}
	_ = page.Pause(ctx, i.interaction.ModelSettle)
}

// submit clicks the send button when present and otherwise presses Enter in
// the input. A failed click also falls back to Enter. Errors are ignored: a
// submission that did not happen shows up as a capture timeout.
func (i *Interactor) submit(ctx context.Context, page schemas.PageSession, input schemas.Selector) {
	if i.target.SubmitSelector != "" {
		button := schemas.CSS(i.target.SubmitSelector)
		present, err := page.Exists(ctx, button)
		if err == nil && present {
			if err := page.Click(ctx, button, i.interaction.SubmitTimeout); err == nil {
				return
			}
			i.logger.Debug("Send button click failed; falling back to Enter.")
		}
	}
	if err := page.Press(ctx, input, "Enter"); err != nil {
		i.logger.Debug("Enter key fallback failed.", zap.Error(err))
	}
}
