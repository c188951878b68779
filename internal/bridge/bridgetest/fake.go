// Package bridgetest provides an in-memory native module for tests.
package bridgetest

import (
	"context"
	"sync"

	"github.com/telhawk-systems/telhawk-beacon/internal/bridge"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// Captured is one envelope received by the fake module.
type Captured struct {
	Envelope string
	Options  bridge.CaptureOptions
}

// Module records calls and answers from its func fields. Unset funcs return
// zero values and nil errors; CaptureEnvelope accepts by default.
type Module struct {
	mu sync.Mutex

	InitFunc        func(ctx context.Context, options map[string]any) (bool, error)
	CaptureFunc     func(ctx context.Context, envelope string, opts bridge.CaptureOptions) (bool, error)
	StackFramesFunc func(ctx context.Context, addrs []uint64) (*models.NativeStackFrames, error)
	PackageName     string
	PackageNameErr  error
	Crashed         bool

	InitOptions []map[string]any
	Envelopes   []Captured
	Closes      int
	Crashes     int
	Tags        map[string]string
	Extras      map[string]string
	Contexts    map[string]map[string]any
	User        map[string]string
	UserData    map[string]string
	Breadcrumbs []map[string]any
	FramesOn    bool
}

var _ bridge.Module = (*Module)(nil)

// New returns an empty fake module.
func New() *Module {
	return &Module{
		Tags:     map[string]string{},
		Extras:   map[string]string{},
		Contexts: map[string]map[string]any{},
	}
}

func (m *Module) InitNativeSdk(ctx context.Context, options map[string]any) (bool, error) {
	m.mu.Lock()
	m.InitOptions = append(m.InitOptions, options)
	fn := m.InitFunc
	m.mu.Unlock()
	if fn != nil {
		return fn(ctx, options)
	}
	return true, nil
}

func (m *Module) CloseNativeSdk(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closes++
	return nil
}

func (m *Module) CaptureEnvelope(ctx context.Context, envelope string, opts bridge.CaptureOptions) (bool, error) {
	m.mu.Lock()
	fn := m.CaptureFunc
	m.mu.Unlock()
	if fn != nil {
		accepted, err := fn(ctx, envelope, opts)
		if err != nil || !accepted {
			return accepted, err
		}
	}
	m.mu.Lock()
	m.Envelopes = append(m.Envelopes, Captured{Envelope: envelope, Options: opts})
	m.mu.Unlock()
	return true, nil
}

// Captured returns a copy of every accepted envelope.
func (m *Module) Captured() []Captured {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Captured(nil), m.Envelopes...)
}

func (m *Module) FetchNativeRelease(ctx context.Context) (*bridge.Release, error) {
	return &bridge.Release{Build: "42", ID: "com.example.app", Version: "1.2.3"}, nil
}

func (m *Module) FetchNativeSdkInfo(ctx context.Context) (*models.Package, error) {
	return &models.Package{Name: "beacon.native", Version: "1.0.0"}, nil
}

func (m *Module) FetchNativeDeviceContexts(ctx context.Context) (map[string]any, error) {
	return map[string]any{"device": map[string]any{"model": "test"}}, nil
}

func (m *Module) FetchModules(ctx context.Context) (string, error) {
	return `{"app":"1.0.0"}`, nil
}

func (m *Module) FetchNativeFrames(ctx context.Context) (*bridge.FramesResponse, error) {
	return &bridge.FramesResponse{TotalFrames: 100, SlowFrames: 2, FrozenFrames: 1}, nil
}

func (m *Module) FetchNativeAppStart(ctx context.Context) (*bridge.AppStartResponse, error) {
	return &bridge.AppStartResponse{Type: "cold", HasFetched: false}, nil
}

func (m *Module) FetchNativePackageName(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.PackageName, m.PackageNameErr
}

func (m *Module) FetchNativeStackFramesBy(ctx context.Context, addrs []uint64) (*models.NativeStackFrames, error) {
	if m.StackFramesFunc != nil {
		return m.StackFramesFunc(ctx, addrs)
	}
	return nil, nil
}

func (m *Module) CrashedLastRun(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Crashed, nil
}

func (m *Module) Crash() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Crashes++
}

func (m *Module) SetUser(ctx context.Context, user, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.User, m.UserData = user, data
	return nil
}

func (m *Module) SetTag(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tags[key] = value
	return nil
}

func (m *Module) SetExtra(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Extras[key] = value
	return nil
}

func (m *Module) SetContext(ctx context.Context, key string, value map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if value == nil {
		delete(m.Contexts, key)
		return nil
	}
	m.Contexts[key] = value
	return nil
}

func (m *Module) AddBreadcrumb(ctx context.Context, breadcrumb map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Breadcrumbs = append(m.Breadcrumbs, breadcrumb)
	return nil
}

func (m *Module) ClearBreadcrumbs(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Breadcrumbs = nil
	return nil
}

func (m *Module) EnableNativeFramesTracking(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FramesOn = true
	return nil
}

func (m *Module) DisableNativeFramesTracking(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FramesOn = false
	return nil
}
