package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/envelope"
	"github.com/telhawk-systems/telhawk-beacon/internal/linkederrors"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
	"github.com/telhawk-systems/telhawk-beacon/internal/outcome"
)

// mechanismPanic marks exceptions recovered from a panic.
const mechanismPanic = "panic"

// CaptureEvent processes and sends event. It returns the event ID, or "" when
// the event was dropped. Delivery failures are logged, never returned.
func (c *Client) CaptureEvent(ctx context.Context, event *models.Event, hint *models.EventHint) string {
	if event == nil {
		return ""
	}
	if hint == nil {
		hint = &models.EventHint{}
	}

	c.prepareEvent(ctx, event, hint)
	ctx = logging.ContextWithEventID(ctx, event.EventID)

	if event.Type != models.EventTypeTransaction && c.opts.SampleRate < 1 && c.sample() >= c.opts.SampleRate {
		c.RecordDroppedEvent(outcome.ReasonSampleRate, event.Category(), 1)
		c.logger.DebugContext(ctx, "event dropped by sample rate")
		return ""
	}

	if c.opts.BeforeSend != nil {
		category := event.Category()
		event = c.opts.BeforeSend(event, hint)
		if event == nil {
			c.RecordDroppedEvent(outcome.ReasonBeforeSend, category, 1)
			c.logger.DebugContext(ctx, "event dropped by before_send")
			return ""
		}
	}

	env := envelope.NewEventEnvelope(event, c.sdk, c.now())
	for _, attachment := range hint.Attachments {
		env.AppendItem(envelope.NewAttachmentItem(attachment))
	}
	if _, err := c.SendEnvelope(ctx, env); err != nil {
		c.logger.ErrorContext(ctx, "failed to send event", logging.Error(err))
	}
	return event.EventID
}

// CaptureException captures err as a handled exception.
func (c *Client) CaptureException(ctx context.Context, err error) string {
	if err == nil {
		return ""
	}
	event := models.NewEvent()
	event.Level = models.LevelError
	exception := linkederrors.ExceptionFromError(err)
	exception.Mechanism = &models.Mechanism{Type: models.MechanismGeneric, Handled: models.Bool(true)}
	event.Exception = &models.ExceptionList{Values: []models.Exception{exception}}
	return c.CaptureEvent(ctx, event, &models.EventHint{OriginalException: err})
}

// CaptureMessage captures a plain message. With AttachStacktrace set, the
// caller's stack is recorded as the event's thread.
func (c *Client) CaptureMessage(ctx context.Context, message string, level models.Level) string {
	event := models.NewEvent()
	event.Message = message
	event.Level = level
	if event.Level == "" {
		event.Level = models.LevelInfo
	}
	if c.opts.AttachStacktrace {
		event.Threads = &models.ThreadList{Values: []models.Thread{{Stacktrace: linkederrors.CallerStacktrace(1)}}}
	}
	return c.CaptureEvent(ctx, event, &models.EventHint{OriginalException: message})
}

// RecoverPanic reports a recovered panic value as an unhandled crash. Use it
// from a deferred function: defer func() { c.RecoverPanic(ctx, recover()) }().
func (c *Client) RecoverPanic(ctx context.Context, recovered any) string {
	if recovered == nil {
		return ""
	}
	err, ok := recovered.(error)
	if !ok {
		err = errors.New(fmt.Sprint(recovered))
	}

	event := models.NewEvent()
	event.Level = models.LevelFatal
	exception := linkederrors.ExceptionFromError(err)
	exception.Mechanism = &models.Mechanism{Type: mechanismPanic, Handled: models.Bool(false)}
	event.Exception = &models.ExceptionList{Values: []models.Exception{exception}}

	id := c.CaptureEvent(ctx, event, &models.EventHint{OriginalException: err})
	if err := c.Flush(ctx); err != nil {
		c.logger.WarnContext(ctx, "failed to flush after panic", logging.Error(err))
	}
	return id
}

// CaptureUserFeedback sends a user report for a previously captured event.
func (c *Client) CaptureUserFeedback(ctx context.Context, feedback models.UserFeedback) error {
	if feedback.EventID == "" {
		return errors.New("user feedback requires an event id")
	}
	env := envelope.NewUserFeedbackEnvelope(feedback, c.sdk, c.now())
	_, err := c.SendEnvelope(ctx, env)
	return err
}

// prepareEvent fills defaults, applies the scope and resolves linked errors.
func (c *Client) prepareEvent(ctx context.Context, event *models.Event, hint *models.EventHint) {
	if event.EventID == "" {
		event.EventID = models.NewEventID()
	}
	if event.Timestamp == 0 {
		event.Timestamp = models.TimestampSeconds(c.now())
	}
	if event.Platform == "" {
		event.Platform = defaultPlatform
	}
	if event.Release == "" {
		event.Release = c.opts.Release
	}
	if event.Dist == "" {
		event.Dist = c.opts.Dist
	}
	if event.Environment == "" {
		event.Environment = c.opts.Environment
	}
	if event.Sdk == nil {
		event.Sdk = c.sdk
	}

	c.scope.apply(event)
	c.applyDeviceContexts(ctx, event)
	c.linkedErrors.Preprocess(ctx, event, hint)
}

// applyDeviceContexts merges device contexts collected natively. Contexts
// already on the event win.
func (c *Client) applyDeviceContexts(ctx context.Context, event *models.Event) {
	if !c.gate.State().Ready {
		return
	}
	native, err := c.gate.FetchNativeDeviceContexts(ctx)
	if err != nil {
		c.logger.DebugContext(ctx, "failed to fetch native device contexts", logging.Error(err))
		return
	}
	for key, value := range native {
		m, ok := value.(map[string]any)
		if !ok {
			continue
		}
		if event.Contexts == nil {
			event.Contexts = map[string]map[string]any{}
		}
		if _, exists := event.Contexts[key]; !exists {
			event.Contexts[key] = m
		}
	}
}
