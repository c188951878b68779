// Package client owns one telemetry client: its native bridge, transport,
// outcome accounting and scope.
package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/bridge"
	"github.com/telhawk-systems/telhawk-beacon/internal/envelope"
	"github.com/telhawk-systems/telhawk-beacon/internal/linkederrors"
	"github.com/telhawk-systems/telhawk-beacon/internal/metrics"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
	"github.com/telhawk-systems/telhawk-beacon/internal/outcome"
	"github.com/telhawk-systems/telhawk-beacon/internal/transport"
)

// Client captures events and delivers them through the native layer.
type Client struct {
	opts   Options
	logger *logging.Logger
	sdk    *models.SdkInfo

	gate         *bridge.Gate
	transport    *transport.Transport
	recorder     *outcome.Recorder
	buffer       *outcome.Buffer
	linkedErrors *linkederrors.Integration
	scope        *scope

	clock  func() time.Time
	sample func() float64

	closeOnce sync.Once
	closeErr  error
}

// New builds a client around module. A nil module leaves the native layer
// unavailable; events are then rejected by the transport.
func New(module bridge.Module, opts Options, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	logger = logger.With(logging.Component("client"))

	c := &Client{
		opts:     opts,
		logger:   logger,
		sdk:      &models.SdkInfo{Name: SDKName, Version: SDKVersion},
		recorder: outcome.NewRecorder(),
		buffer:   outcome.NewBuffer(),
		scope:    newScope(),
		sample:   rand.Float64,
	}

	c.gate = bridge.NewGate(module,
		bridge.WithLogger(logger.With(logging.Component("bridge"))),
		bridge.WithPlatform(opts.Platform),
		bridge.WithRemediation(c.onNativeInitFailure),
	)
	c.transport = transport.New(c.gate, opts.QueueSize, logger, transport.WithRejectHook(func(category string, _ error) {
		c.RecordDroppedEvent(outcome.ReasonNetworkError, category, 1)
	}))
	walker := linkederrors.NewWalker(c.gate, nil, logger.With(logging.Component("linked_errors")))
	c.linkedErrors = linkederrors.NewIntegration(walker, opts.LinkedErrorsKey, opts.LinkedErrorsLimit)

	return c
}

// Gate exposes the native bridge gate.
func (c *Client) Gate() *bridge.Gate {
	return c.gate
}

// Init starts the native layer and fills in release information it knows
// about. It reports whether the native layer started; failures never escape.
func (c *Client) Init(ctx context.Context) bool {
	started := c.gate.InitNativeSdk(ctx, c.opts.nativeOptions())

	if started {
		if c.opts.Release == "" {
			if release, err := c.gate.FetchNativeRelease(ctx); err == nil && release != nil {
				c.opts.Release = fmt.Sprintf("%s@%s+%s", release.ID, release.Version, release.Build)
				if c.opts.Dist == "" {
					c.opts.Dist = release.Build
				}
			}
		}
		if pkg, err := c.gate.FetchNativeSdkInfo(ctx); err == nil && pkg != nil {
			c.sdk.Packages = append(c.sdk.Packages, *pkg)
		}
	}

	if c.opts.OnReady != nil {
		c.opts.OnReady(started)
	}
	return started
}

func (c *Client) onNativeInitFailure(err error) {
	if c.opts.OnNativeInitFailure != nil {
		c.opts.OnNativeInitFailure(err)
	}
}

// RecordDroppedEvent counts events discarded before they reached the transport.
func (c *Client) RecordDroppedEvent(reason, category string, quantity int64) {
	if !c.opts.SendClientReports {
		return
	}
	c.recorder.Record(reason, category, quantity)
	metrics.OutcomesRecorded.WithLabelValues(reason, category).Add(float64(quantity))
	c.logger.Debug("event dropped", logging.Reason(reason), logging.Category(category), logging.Quantity(quantity))
}

// PendingOutcomes returns the outcomes waiting for the next client report.
func (c *Client) PendingOutcomes() []outcome.Outcome {
	return c.buffer.Snapshot()
}

// SendEnvelope dispatches env, attaching a client report with every outcome
// recorded since the last attempt. The outcomes are considered sent as soon as
// the envelope is queued; only a synchronous construction fault puts them back.
// Asynchronous rejections arrive through the returned Delivery and do not.
// The report is attached to a copy, so env itself is never modified.
func (c *Client) SendEnvelope(ctx context.Context, env *envelope.Envelope) (*transport.Delivery, error) {
	c.buffer.Add(c.recorder.Drain())

	attempt := c.buffer.Take()
	sent := env
	if c.opts.SendClientReports && len(attempt) > 0 {
		sent = env.Clone()
		sent.AppendItem(envelope.NewClientReportItem(attempt, c.now()))
		metrics.ClientReportsAttached.Inc()
		c.logger.DebugContext(ctx, "client report attached",
			logging.ItemType(envelope.ItemTypeClientReport), logging.Quantity(outcome.Total(attempt)))
	}

	delivery, err := c.transport.Send(ctx, sent)
	if err != nil {
		if transport.IsConstructionFault(err) {
			c.buffer.Restore(attempt)
			metrics.OutcomesRestored.Inc()
			c.logger.WarnContext(ctx, "envelope not queued; outcomes kept for the next attempt",
				logging.Category(env.Category()), logging.Quantity(outcome.Total(attempt)), logging.Error(err))
			c.RecordDroppedEvent(outcome.ReasonQueueOverflow, env.Category(), 1)
		}
		return nil, err
	}
	return delivery, nil
}

// Flush waits for queued envelopes, bounded by FlushTimeout.
func (c *Client) Flush(ctx context.Context) error {
	if c.opts.FlushTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.FlushTimeout)
		defer cancel()
	}
	return c.transport.Flush(ctx)
}

// Close flushes pending envelopes and shuts the native layer down. Only the
// first call does any work.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		flushCtx := ctx
		if c.opts.FlushTimeout > 0 {
			var cancel context.CancelFunc
			flushCtx, cancel = context.WithTimeout(ctx, c.opts.FlushTimeout)
			defer cancel()
		}
		if err := c.transport.Close(flushCtx); err != nil {
			c.logger.WarnContext(ctx, "failed to flush transport", logging.Error(err))
		}
		c.closeErr = c.gate.CloseNativeSdk(ctx)
	})
	return c.closeErr
}

// CrashedLastRun reports whether the previous run ended in a native crash.
func (c *Client) CrashedLastRun(ctx context.Context) bool {
	return c.gate.CrashedLastRun(ctx)
}

// NativeCrash crashes the native layer. Intended for verifying crash reporting.
func (c *Client) NativeCrash() {
	c.gate.NativeCrash()
}
