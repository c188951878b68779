// Package relay is a native module for hosts without a platform SDK. Envelopes
// are published to NATS JetStream; native state lives in Redis.
package relay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/common/messaging"
	"github.com/telhawk-systems/telhawk-beacon/internal/bridge"
	"github.com/telhawk-systems/telhawk-beacon/internal/envelope"
	"github.com/telhawk-systems/telhawk-beacon/internal/metrics"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

const (
	// DefaultKeyPrefix prefixes every Redis key the relay writes.
	DefaultKeyPrefix = "beacon"

	// SdkName identifies the relay as the native SDK.
	SdkName    = "telhawk.beacon.relay"
	SdkVersion = "0.4.0"

	scopeTags     = "tags"
	scopeExtra    = "extra"
	scopeUser     = "user"
	scopeContexts = "contexts"
)

var (
	// ErrInvalidDSN is returned by InitNativeSdk for a DSN it cannot parse.
	ErrInvalidDSN = errors.New("invalid dsn")

	// ErrNotInitialized is returned for operations that need InitNativeSdk first.
	ErrNotInitialized = errors.New("relay not initialized")

	// ErrNoRelease is returned when no application version is configured.
	ErrNoRelease = errors.New("no release configured")

	// ErrCrashRequested is the panic value raised by Crash.
	ErrCrashRequested = errors.New("native crash requested")
)

// Config configures a relay module.
type Config struct {
	// SubjectPrefix roots the envelope subjects.
	SubjectPrefix string

	// PackageName is the application package; frames in it are in-app.
	PackageName string

	// AppVersion and AppBuild describe the running application.
	AppVersion string
	AppBuild   string

	// Timeout bounds every Redis and broker call. Zero means no bound.
	Timeout time.Duration
}

// Module implements bridge.Module on Redis and JetStream.
type Module struct {
	cfg       Config
	store     *Store
	publisher Publisher
	logger    *logging.Logger

	mu             sync.RWMutex
	initialized    bool
	maxBreadcrumbs int
}

var _ bridge.Module = (*Module)(nil)

// New returns a relay module. The caller owns store and publisher.
func New(cfg Config, store *Store, publisher Publisher, logger *logging.Logger) *Module {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = messaging.DefaultSubjectPrefix
	}
	return &Module{
		cfg:       cfg,
		store:     store,
		publisher: publisher,
		logger:    logger.With(logging.Component("relay")),
	}
}

func (m *Module) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, m.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (m *Module) ready() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return ErrNotInitialized
	}
	return nil
}

// InitNativeSdk validates the DSN, stores options and makes sure the
// envelope stream exists.
func (m *Module) InitNativeSdk(ctx context.Context, options map[string]any) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	dsn, _ := options["dsn"].(string)
	if err := validateDSN(dsn); err != nil {
		return false, err
	}
	if err := m.store.SaveOptions(ctx, options); err != nil {
		return false, err
	}
	if err := m.publisher.EnsureStream(ctx); err != nil {
		return false, fmt.Errorf("failed to ensure envelope stream: %w", err)
	}

	m.mu.Lock()
	m.initialized = true
	m.maxBreadcrumbs = intOption(options["max_breadcrumbs"])
	m.mu.Unlock()

	m.logger.InfoContext(ctx, "relay initialized", "subject_prefix", m.cfg.SubjectPrefix)
	return true, nil
}

// CloseNativeSdk stops accepting envelopes. Store and publisher stay open.
func (m *Module) CloseNativeSdk(ctx context.Context) error {
	m.mu.Lock()
	m.initialized = false
	m.mu.Unlock()
	return nil
}

// CaptureEnvelope publishes a base64 encoded envelope. Hard crashes go to
// the crash subject and set the crashed-last-run flag.
func (m *Module) CaptureEnvelope(ctx context.Context, payload string, opts bridge.CaptureOptions) (bool, error) {
	kind := "event"
	if opts.HardCrashed {
		kind = "crash"
	}

	if err := m.ready(); err != nil {
		metrics.RelayPublishTotal.WithLabelValues(kind, "rejected").Inc()
		return false, err
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		metrics.RelayPublishTotal.WithLabelValues(kind, "rejected").Inc()
		return false, fmt.Errorf("failed to decode envelope payload: %w", err)
	}
	env, err := envelope.Decode(data)
	if err != nil {
		metrics.RelayPublishTotal.WithLabelValues(kind, "rejected").Inc()
		return false, err
	}

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()

	msg := &messaging.Message{
		Subject: messaging.EnvelopeSubject(m.cfg.SubjectPrefix, opts.HardCrashed),
		Data:    data,
		Metadata: map[string]string{
			messaging.HeaderHardCrashed: strconv.FormatBool(opts.HardCrashed),
		},
		Timestamp: time.Now(),
	}
	if id := env.EventID(); id != "" {
		msg.Metadata[messaging.HeaderEventID] = id
	}
	if sdk, ok := env.Header["sdk"].(map[string]any); ok {
		if name, ok := sdk["name"].(string); ok {
			msg.Metadata[messaging.HeaderSdk] = name
		}
	}

	start := time.Now()
	err = m.publisher.PublishEnvelope(ctx, msg)
	metrics.RelayPublishDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RelayPublishTotal.WithLabelValues(kind, "error").Inc()
		return false, fmt.Errorf("failed to publish envelope: %w", err)
	}
	metrics.RelayPublishTotal.WithLabelValues(kind, "success").Inc()

	if opts.HardCrashed {
		if err := m.store.MarkCrashed(ctx); err != nil {
			m.logger.WarnContext(ctx, "failed to record crash", logging.Error(err))
		}
	}
	return true, nil
}

func (m *Module) FetchNativeRelease(ctx context.Context) (*bridge.Release, error) {
	if m.cfg.PackageName == "" || m.cfg.AppVersion == "" {
		return nil, ErrNoRelease
	}
	return &bridge.Release{
		ID:      m.cfg.PackageName,
		Version: m.cfg.AppVersion,
		Build:   m.cfg.AppBuild,
	}, nil
}

func (m *Module) FetchNativeSdkInfo(ctx context.Context) (*models.Package, error) {
	return &models.Package{Name: SdkName, Version: SdkVersion}, nil
}

// FetchNativeDeviceContexts describes the host process.
func (m *Module) FetchNativeDeviceContexts(ctx context.Context) (map[string]any, error) {
	return map[string]any{
		"device": map[string]any{
			"arch":            runtime.GOARCH,
			"processor_count": runtime.NumCPU(),
			"simulator":       false,
		},
		"os": map[string]any{
			"name": runtime.GOOS,
		},
		"runtime": map[string]any{
			"name":    "go",
			"version": runtime.Version(),
		},
	}, nil
}

// FetchModules lists the modules linked into the binary as a JSON object
// of path to version.
func (m *Module) FetchModules(ctx context.Context) (string, error) {
	modules := map[string]string{}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range info.Deps {
			if dep.Replace != nil {
				dep = dep.Replace
			}
			modules[dep.Path] = dep.Version
		}
	}
	data, err := json.Marshal(modules)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (m *Module) FetchNativeFrames(ctx context.Context) (*bridge.FramesResponse, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.Frames(ctx)
}

// FetchNativeAppStart reports a cold start measured from process start.
// HasFetched is true on every fetch after the first.
func (m *Module) FetchNativeAppStart(ctx context.Context) (*bridge.AppStartResponse, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	first, err := m.store.FirstAppStartFetch(ctx)
	if err != nil {
		return nil, err
	}
	return &bridge.AppStartResponse{
		Type:                "cold",
		HasFetched:          !first,
		AppStartTimestampMs: float64(processStart.UnixMilli()),
		Spans:               []bridge.AppStartSpan{},
	}, nil
}

func (m *Module) FetchNativePackageName(ctx context.Context) (string, error) {
	return m.cfg.PackageName, nil
}

// FetchNativeStackFramesBy renders addresses as instruction addresses. The
// relay has no symbolicator, so no debug images are returned.
func (m *Module) FetchNativeStackFramesBy(ctx context.Context, addrs []uint64) (*models.NativeStackFrames, error) {
	frames := make([]models.Frame, 0, len(addrs))
	for _, addr := range addrs {
		frames = append(frames, models.Frame{
			InstructionAddr: "0x" + strconv.FormatUint(addr, 16),
			Platform:        models.PlatformNative,
		})
	}
	return &models.NativeStackFrames{Frames: frames}, nil
}

func (m *Module) CrashedLastRun(ctx context.Context) (bool, error) {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.TakeCrashed(ctx)
}

// Crash records a crash and panics.
func (m *Module) Crash() {
	ctx, cancel := m.withTimeout(context.Background())
	defer cancel()
	if err := m.store.MarkCrashed(ctx); err != nil {
		m.logger.Warn("failed to record crash", logging.Error(err))
	}
	panic(ErrCrashRequested)
}

func (m *Module) SetUser(ctx context.Context, user, data map[string]string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.ReplaceUser(ctx, user, data)
}

func (m *Module) SetTag(ctx context.Context, key, value string) error {
	return m.setScope(ctx, scopeTags, key, value)
}

func (m *Module) SetExtra(ctx context.Context, key, value string) error {
	return m.setScope(ctx, scopeExtra, key, value)
}

// SetContext stores value as JSON. A nil value removes the context.
func (m *Module) SetContext(ctx context.Context, key string, value map[string]any) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if value == nil {
		return m.store.DeleteScopeValue(ctx, scopeContexts, key)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal context %s: %w", key, err)
	}
	return m.store.SetScopeValue(ctx, scopeContexts, key, string(data))
}

func (m *Module) AddBreadcrumb(ctx context.Context, breadcrumb map[string]any) error {
	m.mu.RLock()
	max := m.maxBreadcrumbs
	m.mu.RUnlock()

	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.PushBreadcrumb(ctx, breadcrumb, max)
}

func (m *Module) ClearBreadcrumbs(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.ClearBreadcrumbs(ctx)
}

func (m *Module) EnableNativeFramesTracking(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.SetFramesTracking(ctx, true)
}

func (m *Module) DisableNativeFramesTracking(ctx context.Context) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return m.store.SetFramesTracking(ctx, false)
}

func (m *Module) setScope(ctx context.Context, scope, key, value string) error {
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	if value == "" {
		return m.store.DeleteScopeValue(ctx, scope, key)
	}
	return m.store.SetScopeValue(ctx, scope, key, value)
}

var processStart = time.Now()

// validateDSN accepts DSNs of the form scheme://public_key@host/project_id.
func validateDSN(dsn string) error {
	if dsn == "" {
		return fmt.Errorf("%w: empty", ErrInvalidDSN)
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidDSN, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidDSN, u.Scheme)
	}
	if u.User == nil || u.User.Username() == "" {
		return fmt.Errorf("%w: missing public key", ErrInvalidDSN)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: missing host", ErrInvalidDSN)
	}
	if strings.Trim(u.Path, "/") == "" {
		return fmt.Errorf("%w: missing project id", ErrInvalidDSN)
	}
	return nil
}

func intOption(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}
