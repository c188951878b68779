// Package bridge gates every call that crosses into the native delivery layer.
package bridge

import (
	"context"

	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// CaptureOptions travels with every envelope handed to the native layer.
type CaptureOptions struct {
	HardCrashed bool `json:"hardCrashed"`
}

type Release struct {
	Build   string `json:"build"`
	ID      string `json:"id"`
	Version string `json:"version"`
}

type FramesResponse struct {
	TotalFrames  int64 `json:"totalFrames"`
	SlowFrames   int64 `json:"slowFrames"`
	FrozenFrames int64 `json:"frozenFrames"`
}

type AppStartSpan struct {
	Description      string  `json:"description"`
	StartTimestampMs float64 `json:"start_timestamp_ms"`
	EndTimestampMs   float64 `json:"end_timestamp_ms"`
}

type AppStartResponse struct {
	Type                string         `json:"type"`
	HasFetched          bool           `json:"has_fetched"`
	AppStartTimestampMs float64        `json:"app_start_timestamp_ms,omitempty"`
	Spans               []AppStartSpan `json:"spans"`
}

// Module is the native counterpart. Implementations receive only plain data:
// options never carry callbacks and envelopes arrive base64 encoded.
type Module interface {
	InitNativeSdk(ctx context.Context, options map[string]any) (bool, error)
	CloseNativeSdk(ctx context.Context) error
	CaptureEnvelope(ctx context.Context, envelope string, opts CaptureOptions) (bool, error)

	FetchNativeRelease(ctx context.Context) (*Release, error)
	FetchNativeSdkInfo(ctx context.Context) (*models.Package, error)
	FetchNativeDeviceContexts(ctx context.Context) (map[string]any, error)
	FetchModules(ctx context.Context) (string, error)
	FetchNativeFrames(ctx context.Context) (*FramesResponse, error)
	FetchNativeAppStart(ctx context.Context) (*AppStartResponse, error)
	FetchNativePackageName(ctx context.Context) (string, error)
	FetchNativeStackFramesBy(ctx context.Context, addrs []uint64) (*models.NativeStackFrames, error)
	CrashedLastRun(ctx context.Context) (bool, error)
	Crash()

	SetUser(ctx context.Context, user, data map[string]string) error
	SetTag(ctx context.Context, key, value string) error
	SetExtra(ctx context.Context, key, value string) error
	SetContext(ctx context.Context, key string, value map[string]any) error
	AddBreadcrumb(ctx context.Context, breadcrumb map[string]any) error
	ClearBreadcrumbs(ctx context.Context) error
	EnableNativeFramesTracking(ctx context.Context) error
	DisableNativeFramesTracking(ctx context.Context) error
}
