package bridge

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/metrics"
)

var (
	// ErrNativeDisabled is returned by hard operations after native support was turned off.
	ErrNativeDisabled = errors.New("native is disabled")
	// ErrNativeUnavailable is returned by hard operations when no native module is loaded.
	ErrNativeUnavailable = errors.New("native module is not available")
	// ErrNativeRejected is returned when the native layer refuses an envelope.
	ErrNativeRejected = errors.New("native layer rejected the envelope")
)

// State is a point-in-time view of the gate.
type State struct {
	Enabled      bool
	ModuleLoaded bool
	Ready        bool
}

// Gate guards every native call. It starts enabled and not ready; InitNativeSdk
// decides the rest.
type Gate struct {
	initMu  sync.Mutex
	mu      sync.RWMutex
	module  Module
	enabled bool
	ready   bool

	platform  string
	logger    *logging.Logger
	remediate func(error)
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate's logger.
func WithLogger(logger *logging.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

// WithPlatform sets the host platform ("android", "ios").
func WithPlatform(platform string) Option {
	return func(g *Gate) { g.platform = platform }
}

// WithRemediation sets the hook invoked when native initialization fails.
func WithRemediation(fn func(error)) Option {
	return func(g *Gate) { g.remediate = fn }
}

// NewGate wraps module. A nil module means the native layer is not loaded.
func NewGate(module Module, opts ...Option) *Gate {
	g := &Gate{
		module:  module,
		enabled: true,
		logger:  logging.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current gate state.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return State{Enabled: g.enabled, ModuleLoaded: g.module != nil, Ready: g.ready}
}

// check returns the module when a call may proceed.
func (g *Gate) check() (Module, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.enabled {
		return nil, ErrNativeDisabled
	}
	if g.module == nil {
		return nil, ErrNativeUnavailable
	}
	return g.module, nil
}

// soft returns the module for calls that no-op when native is off.
func (g *Gate) soft() (Module, bool) {
	m, err := g.check()
	return m, err == nil
}

// InitNativeSdk starts the native layer. Failures never escape: the gate is left
// not ready, the remediation hook runs, and false is returned. The state lock
// is only held to commit the outcome, so the module call and the hook may
// use the gate freely.
func (g *Gate) InitNativeSdk(ctx context.Context, opts InitOptions) bool {
	started, err := g.initNative(ctx, opts)
	if err != nil {
		g.fail(ctx, err)
	}
	return started
}

// initNative serializes initialization attempts without holding the state lock.
func (g *Gate) initNative(ctx context.Context, opts InitOptions) (bool, error) {
	g.initMu.Lock()
	defer g.initMu.Unlock()

	if !opts.EnableNative {
		if opts.EnableNativeNagger {
			g.logger.WarnContext(ctx, "native is disabled; native crashes will not be reported")
		}
		g.setEnabled(false)
		return false, nil
	}

	if !opts.AutoInitializeNativeSdk {
		g.setEnabled(true)
		return false, nil
	}

	if opts.DSN == "" {
		g.logger.WarnContext(ctx, "no dsn configured; native layer will not be initialized")
		g.setEnabled(false)
		return false, nil
	}

	if g.module == nil {
		g.setReady(false)
		return false, ErrNativeUnavailable
	}

	filtered, err := opts.toNative()
	if err != nil {
		g.setReady(false)
		return false, err
	}

	ready, err := g.module.InitNativeSdk(ctx, filtered)
	if err != nil {
		g.setReady(false)
		return false, err
	}

	g.mu.Lock()
	g.ready = ready
	g.enabled = true
	g.mu.Unlock()

	g.logger.DebugContext(ctx, "native layer initialized", "ready", ready)
	return ready, nil
}

func (g *Gate) setEnabled(enabled bool) {
	g.mu.Lock()
	g.enabled = enabled
	g.mu.Unlock()
}

func (g *Gate) setReady(ready bool) {
	g.mu.Lock()
	g.ready = ready
	g.mu.Unlock()
}

func (g *Gate) fail(ctx context.Context, err error) {
	metrics.NativeInitFailures.Inc()
	g.logger.ErrorContext(ctx, "failed to initialize native layer", logging.Error(err))
	if g.remediate != nil {
		g.remediate(err)
	}
}

// CloseNativeSdk shuts the native layer down and disables the gate. Calling it
// again, or on a disabled or unloaded gate, does nothing.
func (g *Gate) CloseNativeSdk(ctx context.Context) error {
	g.mu.Lock()
	if !g.enabled || g.module == nil {
		g.mu.Unlock()
		return nil
	}
	g.enabled = false
	g.ready = false
	g.mu.Unlock()

	if err := g.module.CloseNativeSdk(ctx); err != nil {
		return fmt.Errorf("failed to close native layer: %w", err)
	}
	return nil
}

// CaptureEnvelope hands serialized envelope bytes to the native layer. The
// hard-crash flag is computed by the encoder and passed through untouched.
func (g *Gate) CaptureEnvelope(ctx context.Context, envelope []byte, opts CaptureOptions) error {
	m, err := g.check()
	if err != nil {
		return err
	}

	accepted, err := m.CaptureEnvelope(ctx, base64.StdEncoding.EncodeToString(envelope), opts)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNativeRejected, err)
	}
	if !accepted {
		return ErrNativeRejected
	}
	return nil
}
