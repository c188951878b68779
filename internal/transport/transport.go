// Package transport serializes envelopes and hands them to the native layer
// from a single background worker.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/bridge"
	"github.com/telhawk-systems/telhawk-beacon/internal/envelope"
	"github.com/telhawk-systems/telhawk-beacon/internal/metrics"
)

const DefaultQueueSize = 30

// Native is the part of the bridge gate the transport drives.
type Native interface {
	ProcessEnvelope(env *envelope.Envelope) *envelope.Envelope
	CaptureEnvelope(ctx context.Context, envelope []byte, opts bridge.CaptureOptions) error
}

// Delivery is the pending result of one queued envelope.
type Delivery struct {
	done chan struct{}
	err  error
}

func newDelivery() *Delivery {
	return &Delivery{done: make(chan struct{})}
}

func (d *Delivery) finish(err error) {
	d.err = err
	close(d.done)
}

// Done is closed once the native layer has answered.
func (d *Delivery) Done() <-chan struct{} {
	return d.done
}

// Wait blocks until the envelope was delivered or rejected, or ctx ends.
// Rejections are returned as asynchronous *DeliveryError values.
func (d *Delivery) Wait(ctx context.Context) error {
	select {
	case <-d.done:
		return d.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type job struct {
	ctx      context.Context
	encoded  *envelope.Encoded
	category string
	delivery *Delivery
	barrier  chan struct{}
}

// Transport queues envelopes for delivery. The queue is bounded and enqueue
// never blocks; one worker drains it in order, so at most one native call is
// in flight.
type Transport struct {
	native   Native
	logger   *logging.Logger
	onReject func(category string, err error)

	queue    chan job
	stopChan chan struct{}
	stopped  chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithRejectHook sets a function called from the worker for every envelope the
// native layer rejects. Envelopes skipped because native is disabled are not
// rejections.
func WithRejectHook(fn func(category string, err error)) Option {
	return func(t *Transport) { t.onReject = fn }
}

// New starts a transport with a queue of queueSize envelopes.
func New(native Native, queueSize int, logger *logging.Logger, opts ...Option) *Transport {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if logger == nil {
		logger = logging.Default()
	}
	t := &Transport{
		native:   native,
		logger:   logger.With(logging.Component("transport")),
		queue:    make(chan job, queueSize),
		stopChan: make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	metrics.QueueCapacity.Set(float64(queueSize))

	go t.processEnvelopes()

	return t
}

// Send encodes env and queues it. Encoding faults are returned as is; a full
// queue or a closed transport is a synchronous *DeliveryError. Anything the
// native layer reports later arrives through the returned Delivery.
func (t *Transport) Send(ctx context.Context, env *envelope.Envelope) (*Delivery, error) {
	start := time.Now()
	encoded, err := envelope.Encode(t.native.ProcessEnvelope(env))
	metrics.EncodeDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.EnvelopesTotal.WithLabelValues(env.Category(), "encoding_error").Inc()
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, &DeliveryError{Synchronous: true, Err: ErrClosed}
	}

	j := job{
		ctx:      context.WithoutCancel(ctx),
		encoded:  encoded,
		category: env.Category(),
		delivery: newDelivery(),
	}

	select {
	case t.queue <- j:
		metrics.QueueDepth.Set(float64(len(t.queue)))
		return j.delivery, nil
	default:
		metrics.EnvelopesTotal.WithLabelValues(j.category, "queue_full").Inc()
		return nil, &DeliveryError{Synchronous: true, Err: ErrQueueFull}
	}
}

func (t *Transport) processEnvelopes() {
	defer close(t.stopped)
	for {
		select {
		case j := <-t.queue:
			metrics.QueueDepth.Set(float64(len(t.queue)))
			if j.barrier != nil {
				close(j.barrier)
				continue
			}
			j.delivery.finish(t.deliver(j))

		case <-t.stopChan:
			t.drain()
			return
		}
	}
}

// drain rejects whatever was queued after the final flush.
func (t *Transport) drain() {
	for {
		select {
		case j := <-t.queue:
			if j.barrier != nil {
				close(j.barrier)
				continue
			}
			metrics.EnvelopesTotal.WithLabelValues(j.category, "dropped").Inc()
			j.delivery.finish(&DeliveryError{Synchronous: false, Err: ErrClosed})
		default:
			metrics.QueueDepth.Set(0)
			return
		}
	}
}

func (t *Transport) deliver(j job) error {
	opts := bridge.CaptureOptions{HardCrashed: j.encoded.HardCrashed}
	if err := t.native.CaptureEnvelope(j.ctx, j.encoded.Bytes, opts); err != nil {
		if errors.Is(err, bridge.ErrNativeDisabled) {
			// Native was turned off on purpose.
			metrics.EnvelopesTotal.WithLabelValues(j.category, "skipped").Inc()
			t.logger.DebugContext(j.ctx, "envelope skipped; native is disabled")
			return &DeliveryError{Synchronous: false, Err: err}
		}
		metrics.EnvelopesTotal.WithLabelValues(j.category, "rejected").Inc()
		t.logger.WarnContext(j.ctx, "envelope rejected by native layer", logging.Error(err))
		if t.onReject != nil {
			t.onReject(j.category, err)
		}
		return &DeliveryError{Synchronous: false, Err: err}
	}

	metrics.EnvelopesTotal.WithLabelValues(j.category, "sent").Inc()
	metrics.EnvelopeBytesTotal.Add(float64(len(j.encoded.Bytes)))
	if opts.HardCrashed {
		metrics.HardCrashesTotal.Inc()
	}
	t.logger.DebugContext(j.ctx, "envelope delivered", logging.Bytes(len(j.encoded.Bytes)))
	return nil
}

// Flush waits until every envelope queued before the call has been handed to
// the native layer, or ctx ends.
func (t *Transport) Flush(ctx context.Context) error {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return nil
	}

	barrier := make(chan struct{})
	select {
	case t.queue <- job{barrier: barrier}:
	case <-t.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-barrier:
		return nil
	case <-t.stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close flushes the queue and stops the worker. Further sends fail with
// ErrClosed. Calling Close more than once is safe.
func (t *Transport) Close(ctx context.Context) error {
	err := t.Flush(ctx)

	t.mu.Lock()
	if !t.closed {
		t.closed = true
		close(t.stopChan)
	}
	t.mu.Unlock()

	<-t.stopped
	return err
}
