package relay

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/common/messaging"
	"github.com/telhawk-systems/telhawk-beacon/internal/bridge"
	"github.com/telhawk-systems/telhawk-beacon/internal/envelope"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

const testDSN = "https://public@o1.ingest.example.com/42"

type fakePublisher struct {
	mu         sync.Mutex
	streamErr  error
	publishErr error
	ensured    int
	messages   []*messaging.Message
}

func (p *fakePublisher) EnsureStream(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ensured++
	return p.streamErr
}

func (p *fakePublisher) PublishEnvelope(ctx context.Context, msg *messaging.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.messages = append(p.messages, msg)
	return nil
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newTestModule(t *testing.T, cfg Config) (*Module, *miniredis.Miniredis, *fakePublisher) {
	t.Helper()
	mr, client := setupTestRedis(t)
	pub := &fakePublisher{}
	return New(cfg, NewStoreWithClient(client, ""), pub, logging.Discard()), mr, pub
}

func initModule(t *testing.T, m *Module, options map[string]any) {
	t.Helper()
	if options == nil {
		options = map[string]any{}
	}
	if _, ok := options["dsn"]; !ok {
		options["dsn"] = testDSN
	}
	ok, err := m.InitNativeSdk(context.Background(), options)
	require.NoError(t, err)
	require.True(t, ok)
}

func encodedEvent(t *testing.T, event *models.Event) (string, string) {
	t.Helper()
	env := envelope.NewEventEnvelope(event, &models.SdkInfo{Name: "telhawk.beacon.go", Version: "0.4.0"}, time.Now())
	enc, err := envelope.Encode(env)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(enc.Bytes), string(enc.Bytes)
}

func TestValidateDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		wantErr bool
	}{
		{"valid", testDSN, false},
		{"valid http", "http://key@localhost:9000/1", false},
		{"empty", "", true},
		{"missing key", "https://o1.ingest.example.com/42", true},
		{"missing project", "https://public@o1.ingest.example.com/", true},
		{"bad scheme", "ftp://public@host/1", true},
		{"unparseable", "https://public@host/%zz", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateDSN(tt.dsn)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDSN)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestInitNativeSdk(t *testing.T) {
	m, mr, pub := newTestModule(t, Config{})

	initModule(t, m, map[string]any{
		"environment":     "staging",
		"max_breadcrumbs": 2,
		"debug":           true,
		"tags":            map[string]any{"team": "mobile"},
	})

	assert.Equal(t, 1, pub.ensured)
	assert.Equal(t, testDSN, mr.HGet("beacon:options", "dsn"))
	assert.Equal(t, "staging", mr.HGet("beacon:options", "environment"))
	assert.Equal(t, "2", mr.HGet("beacon:options", "max_breadcrumbs"))
	assert.Equal(t, `{"team":"mobile"}`, mr.HGet("beacon:options", "tags"))
}

func TestInitNativeSdk_Failures(t *testing.T) {
	t.Run("invalid dsn", func(t *testing.T) {
		m, mr, pub := newTestModule(t, Config{})
		ok, err := m.InitNativeSdk(context.Background(), map[string]any{"dsn": "not a dsn"})
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrInvalidDSN)
		assert.Zero(t, pub.ensured)
		assert.False(t, mr.Exists("beacon:options"))
	})

	t.Run("stream unavailable", func(t *testing.T) {
		m, _, pub := newTestModule(t, Config{})
		pub.streamErr = errors.New("no responders")
		ok, err := m.InitNativeSdk(context.Background(), map[string]any{"dsn": testDSN})
		assert.False(t, ok)
		assert.ErrorContains(t, err, "no responders")

		_, err = m.CaptureEnvelope(context.Background(), "", bridge.CaptureOptions{})
		assert.ErrorIs(t, err, ErrNotInitialized)
	})
}

func TestCaptureEnvelope(t *testing.T) {
	m, mr, pub := newTestModule(t, Config{SubjectPrefix: "mobile"})
	initModule(t, m, nil)

	event := models.NewEvent()
	event.Message = "hello"
	payload, raw := encodedEvent(t, event)

	ok, err := m.CaptureEnvelope(context.Background(), payload, bridge.CaptureOptions{})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, pub.messages, 1)
	msg := pub.messages[0]
	assert.Equal(t, "mobile.envelopes.event", msg.Subject)
	assert.Equal(t, raw, string(msg.Data))
	assert.Equal(t, event.EventID, msg.Metadata[messaging.HeaderEventID])
	assert.Equal(t, "false", msg.Metadata[messaging.HeaderHardCrashed])
	assert.Equal(t, "telhawk.beacon.go", msg.Metadata[messaging.HeaderSdk])
	assert.False(t, mr.Exists("beacon:crashed_last_run"))
}

func TestCaptureEnvelope_HardCrash(t *testing.T) {
	m, mr, pub := newTestModule(t, Config{})
	initModule(t, m, nil)

	payload, _ := encodedEvent(t, models.NewEvent())
	ok, err := m.CaptureEnvelope(context.Background(), payload, bridge.CaptureOptions{HardCrashed: true})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, pub.messages, 1)
	assert.Equal(t, messaging.SubjectEnvelopesCrash, pub.messages[0].Subject)
	assert.Equal(t, "true", pub.messages[0].Metadata[messaging.HeaderHardCrashed])
	assert.True(t, mr.Exists("beacon:crashed_last_run"))

	crashed, err := m.CrashedLastRun(context.Background())
	require.NoError(t, err)
	assert.True(t, crashed)

	crashed, err = m.CrashedLastRun(context.Background())
	require.NoError(t, err)
	assert.False(t, crashed, "flag is cleared once read")
}

func TestCaptureEnvelope_Rejections(t *testing.T) {
	payload, _ := encodedEvent(t, models.NewEvent())

	tests := []struct {
		name    string
		payload string
		setup   func(*Module, *fakePublisher)
		wantErr error
	}{
		{
			name:    "not initialized",
			payload: payload,
			wantErr: ErrNotInitialized,
		},
		{
			name:    "bad base64",
			payload: "!!!",
			setup:   func(m *Module, _ *fakePublisher) { initModule(t, m, nil) },
		},
		{
			name:    "malformed envelope",
			payload: base64.StdEncoding.EncodeToString([]byte("not json\n")),
			setup:   func(m *Module, _ *fakePublisher) { initModule(t, m, nil) },
			wantErr: envelope.ErrMalformed,
		},
		{
			name:    "publish failure",
			payload: payload,
			setup: func(m *Module, p *fakePublisher) {
				initModule(t, m, nil)
				p.publishErr = errors.New("stream full")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _, pub := newTestModule(t, Config{})
			if tt.setup != nil {
				tt.setup(m, pub)
			}

			ok, err := m.CaptureEnvelope(context.Background(), tt.payload, bridge.CaptureOptions{})
			assert.False(t, ok)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Empty(t, pub.messages)
		})
	}
}

func TestCloseNativeSdk_StopsCapture(t *testing.T) {
	m, _, _ := newTestModule(t, Config{})
	initModule(t, m, nil)

	require.NoError(t, m.CloseNativeSdk(context.Background()))

	payload, _ := encodedEvent(t, models.NewEvent())
	_, err := m.CaptureEnvelope(context.Background(), payload, bridge.CaptureOptions{})
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestScopeMirroring(t *testing.T) {
	m, mr, _ := newTestModule(t, Config{})
	initModule(t, m, map[string]any{"max_breadcrumbs": 2})
	ctx := context.Background()

	require.NoError(t, m.SetTag(ctx, "screen", "checkout"))
	require.NoError(t, m.SetExtra(ctx, "cart", `{"items":3}`))
	require.NoError(t, m.SetContext(ctx, "app", map[string]any{"build": "42"}))
	require.NoError(t, m.SetUser(ctx, map[string]string{"id": "u1"}, map[string]string{"plan": "pro"}))

	assert.Equal(t, "checkout", mr.HGet("beacon:scope:tags", "screen"))
	assert.Equal(t, `{"items":3}`, mr.HGet("beacon:scope:extra", "cart"))
	assert.Equal(t, `{"build":"42"}`, mr.HGet("beacon:scope:contexts", "app"))
	assert.Equal(t, "u1", mr.HGet("beacon:scope:user", "id"))
	assert.Equal(t, "pro", mr.HGet("beacon:scope:user:data", "plan"))

	// Empty values and nil contexts remove entries.
	require.NoError(t, m.SetTag(ctx, "screen", ""))
	require.NoError(t, m.SetContext(ctx, "app", nil))
	require.NoError(t, m.SetUser(ctx, nil, nil))
	assert.Empty(t, mr.HGet("beacon:scope:tags", "screen"))
	assert.Empty(t, mr.HGet("beacon:scope:contexts", "app"))
	assert.False(t, mr.Exists("beacon:scope:user"))
	assert.False(t, mr.Exists("beacon:scope:user:data"))
}

func TestBreadcrumbs_TrimmedToMax(t *testing.T) {
	m, _, _ := newTestModule(t, Config{})
	initModule(t, m, map[string]any{"max_breadcrumbs": 2})
	ctx := context.Background()

	for _, msg := range []string{"one", "two", "three"} {
		require.NoError(t, m.AddBreadcrumb(ctx, map[string]any{"message": msg, "level": "debug"}))
	}

	crumbs, err := m.store.Breadcrumbs(ctx)
	require.NoError(t, err)
	require.Len(t, crumbs, 2)
	assert.Equal(t, "two", crumbs[0]["message"])
	assert.Equal(t, "three", crumbs[1]["message"])

	require.NoError(t, m.ClearBreadcrumbs(ctx))
	crumbs, err = m.store.Breadcrumbs(ctx)
	require.NoError(t, err)
	assert.Empty(t, crumbs)
}

func TestFramesTracking(t *testing.T) {
	m, _, _ := newTestModule(t, Config{})
	ctx := context.Background()

	// Counters ignore samples while tracking is off.
	require.NoError(t, m.store.RecordFrames(ctx, 10, 1, 0))
	frames, err := m.FetchNativeFrames(ctx)
	require.NoError(t, err)
	assert.Equal(t, &bridge.FramesResponse{}, frames)

	require.NoError(t, m.EnableNativeFramesTracking(ctx))
	require.NoError(t, m.store.RecordFrames(ctx, 120, 4, 1))
	frames, err = m.FetchNativeFrames(ctx)
	require.NoError(t, err)
	assert.Equal(t, &bridge.FramesResponse{TotalFrames: 120, SlowFrames: 4, FrozenFrames: 1}, frames)

	require.NoError(t, m.DisableNativeFramesTracking(ctx))
	on, err := m.store.FramesTracking(ctx)
	require.NoError(t, err)
	assert.False(t, on)
}

func TestFetchNativeAppStart(t *testing.T) {
	m, _, _ := newTestModule(t, Config{})
	ctx := context.Background()

	first, err := m.FetchNativeAppStart(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cold", first.Type)
	assert.False(t, first.HasFetched)
	assert.Positive(t, first.AppStartTimestampMs)

	second, err := m.FetchNativeAppStart(ctx)
	require.NoError(t, err)
	assert.True(t, second.HasFetched)
}

func TestFetchNativeRelease(t *testing.T) {
	m, _, _ := newTestModule(t, Config{})
	_, err := m.FetchNativeRelease(context.Background())
	assert.ErrorIs(t, err, ErrNoRelease)

	m, _, _ = newTestModule(t, Config{PackageName: "com.example.app", AppVersion: "1.2.3", AppBuild: "7"})
	release, err := m.FetchNativeRelease(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &bridge.Release{ID: "com.example.app", Version: "1.2.3", Build: "7"}, release)
}

func TestFetchNativeStackFramesBy(t *testing.T) {
	m, _, _ := newTestModule(t, Config{})

	frames, err := m.FetchNativeStackFramesBy(context.Background(), []uint64{0x1000, 0xdeadbeef})
	require.NoError(t, err)
	require.Len(t, frames.Frames, 2)
	assert.Equal(t, "0x1000", frames.Frames[0].InstructionAddr)
	assert.Equal(t, "0xdeadbeef", frames.Frames[1].InstructionAddr)
	assert.Equal(t, models.PlatformNative, frames.Frames[0].Platform)
	assert.Empty(t, frames.DebugMetaImages)
}

func TestHostInfo(t *testing.T) {
	m, _, _ := newTestModule(t, Config{PackageName: "com.example.app"})
	ctx := context.Background()

	contexts, err := m.FetchNativeDeviceContexts(ctx)
	require.NoError(t, err)
	assert.Contains(t, contexts, "device")
	assert.Contains(t, contexts, "os")

	sdk, err := m.FetchNativeSdkInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, SdkName, sdk.Name)

	pkg, err := m.FetchNativePackageName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "com.example.app", pkg)

	modules, err := m.FetchModules(ctx)
	require.NoError(t, err)
	assert.True(t, len(modules) >= 2 && modules[0] == '{')
}

func TestCrash_Panics(t *testing.T) {
	m, mr, _ := newTestModule(t, Config{})

	assert.PanicsWithValue(t, ErrCrashRequested, m.Crash)
	assert.True(t, mr.Exists("beacon:crashed_last_run"))
}

func TestThroughGate(t *testing.T) {
	m, _, pub := newTestModule(t, Config{})
	gate := bridge.NewGate(m, bridge.WithLogger(logging.Discard()))

	opts := bridge.DefaultInitOptions()
	opts.DSN = testDSN
	require.True(t, gate.InitNativeSdk(context.Background(), opts))

	_, raw := encodedEvent(t, models.NewEvent())
	require.NoError(t, gate.CaptureEnvelope(context.Background(), []byte(raw), bridge.CaptureOptions{}))
	require.Len(t, pub.messages, 1)
	assert.Equal(t, raw, string(pub.messages[0].Data))
}
