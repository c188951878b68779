package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/telhawk-systems/telhawk-beacon/common/logging"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// FetchNativeRelease returns the release information of the host application.
func (g *Gate) FetchNativeRelease(ctx context.Context) (*Release, error) {
	m, err := g.check()
	if err != nil {
		return nil, err
	}
	return m.FetchNativeRelease(ctx)
}

// FetchNativeSdkInfo returns the name and version of the native SDK.
func (g *Gate) FetchNativeSdkInfo(ctx context.Context) (*models.Package, error) {
	m, err := g.check()
	if err != nil {
		return nil, err
	}
	return m.FetchNativeSdkInfo(ctx)
}

// FetchNativeDeviceContexts returns device, os and app contexts collected natively.
func (g *Gate) FetchNativeDeviceContexts(ctx context.Context) (map[string]any, error) {
	m, err := g.check()
	if err != nil {
		return nil, err
	}
	return m.FetchNativeDeviceContexts(ctx)
}

// FetchModules returns the JSON encoded list of loaded script modules.
func (g *Gate) FetchModules(ctx context.Context) (map[string]string, error) {
	m, err := g.check()
	if err != nil {
		return nil, err
	}
	raw, err := m.FetchModules(ctx)
	if err != nil {
		return nil, err
	}
	if raw == "" {
		return nil, nil
	}
	var modules map[string]string
	if err := json.Unmarshal([]byte(raw), &modules); err != nil {
		return nil, fmt.Errorf("failed to decode native modules: %w", err)
	}
	return modules, nil
}

// FetchNativeFrames returns slow and frozen frame counters.
func (g *Gate) FetchNativeFrames(ctx context.Context) (*FramesResponse, error) {
	m, err := g.check()
	if err != nil {
		return nil, err
	}
	return m.FetchNativeFrames(ctx)
}

// FetchNativeAppStart returns app start timings, or nil when native is off.
func (g *Gate) FetchNativeAppStart(ctx context.Context) *AppStartResponse {
	m, ok := g.soft()
	if !ok {
		return nil
	}
	resp, err := m.FetchNativeAppStart(ctx)
	if err != nil {
		g.logSoft(ctx, "fetch_native_app_start", err)
		return nil
	}
	return resp
}

// FetchNativePackageName returns the host application's package name, or ""
// when it cannot be determined.
func (g *Gate) FetchNativePackageName(ctx context.Context) string {
	m, ok := g.soft()
	if !ok {
		return ""
	}
	name, err := m.FetchNativePackageName(ctx)
	if err != nil {
		g.logSoft(ctx, "fetch_native_package_name", err)
		return ""
	}
	return name
}

// FetchNativeStackFramesBy symbolicates return addresses. It returns nil when
// native is off or the addresses cannot be resolved.
func (g *Gate) FetchNativeStackFramesBy(ctx context.Context, addrs []uint64) *models.NativeStackFrames {
	m, ok := g.soft()
	if !ok || len(addrs) == 0 {
		return nil
	}
	frames, err := m.FetchNativeStackFramesBy(ctx, addrs)
	if err != nil {
		g.logSoft(ctx, "fetch_native_stack_frames_by", err)
		return nil
	}
	return frames
}

// CrashedLastRun reports whether the previous run ended in a native crash.
func (g *Gate) CrashedLastRun(ctx context.Context) bool {
	m, ok := g.soft()
	if !ok {
		return false
	}
	crashed, err := m.CrashedLastRun(ctx)
	if err != nil {
		g.logSoft(ctx, "crashed_last_run", err)
		return false
	}
	return crashed
}

// NativeCrash triggers a crash in the native layer.
func (g *Gate) NativeCrash() {
	if m, ok := g.soft(); ok {
		m.Crash()
	}
}

// well-known user keys mirrored as plain fields; everything else goes to data.
var userKeys = map[string]struct{}{
	"id":         {},
	"ip_address": {},
	"email":      {},
	"username":   {},
	"segment":    {},
}

// SetUser mirrors the scope user natively. A nil user clears it.
func (g *Gate) SetUser(ctx context.Context, user map[string]any) {
	m, ok := g.soft()
	if !ok {
		return
	}

	var defaults, data map[string]string
	if user != nil {
		defaults = map[string]string{}
		data = map[string]string{}
		for k, v := range user {
			if _, known := userKeys[k]; known {
				defaults[k] = serialize(v)
			} else {
				data[k] = serialize(v)
			}
		}
	}

	if err := m.SetUser(ctx, defaults, data); err != nil {
		g.logSoft(ctx, "set_user", err)
	}
}

// SetTag mirrors a scope tag natively.
func (g *Gate) SetTag(ctx context.Context, key string, value any) {
	m, ok := g.soft()
	if !ok {
		return
	}
	if err := m.SetTag(ctx, key, serialize(value)); err != nil {
		g.logSoft(ctx, "set_tag", err)
	}
}

// SetExtra mirrors a scope extra natively.
func (g *Gate) SetExtra(ctx context.Context, key string, value any) {
	m, ok := g.soft()
	if !ok {
		return
	}
	if err := m.SetExtra(ctx, key, serialize(value)); err != nil {
		g.logSoft(ctx, "set_extra", err)
	}
}

// SetContext mirrors a scope context natively. A nil value removes it.
func (g *Gate) SetContext(ctx context.Context, key string, value map[string]any) {
	m, ok := g.soft()
	if !ok {
		return
	}
	if err := m.SetContext(ctx, key, value); err != nil {
		g.logSoft(ctx, "set_context", err)
	}
}

// AddBreadcrumb mirrors a breadcrumb natively. Level "log" becomes "debug".
func (g *Gate) AddBreadcrumb(ctx context.Context, crumb models.Breadcrumb) {
	m, ok := g.soft()
	if !ok {
		return
	}
	crumb.Level = nativeLevel(crumb.Level)

	var plain map[string]any
	if err := roundTrip(crumb, &plain); err != nil {
		g.logSoft(ctx, "add_breadcrumb", err)
		return
	}
	if err := m.AddBreadcrumb(ctx, plain); err != nil {
		g.logSoft(ctx, "add_breadcrumb", err)
	}
}

// ClearBreadcrumbs clears natively stored breadcrumbs.
func (g *Gate) ClearBreadcrumbs(ctx context.Context) {
	if m, ok := g.soft(); ok {
		if err := m.ClearBreadcrumbs(ctx); err != nil {
			g.logSoft(ctx, "clear_breadcrumbs", err)
		}
	}
}

// EnableNativeFramesTracking starts slow and frozen frame tracking.
func (g *Gate) EnableNativeFramesTracking(ctx context.Context) {
	if m, ok := g.soft(); ok {
		if err := m.EnableNativeFramesTracking(ctx); err != nil {
			g.logSoft(ctx, "enable_native_frames_tracking", err)
		}
	}
}

// DisableNativeFramesTracking stops slow and frozen frame tracking.
func (g *Gate) DisableNativeFramesTracking(ctx context.Context) {
	if m, ok := g.soft(); ok {
		if err := m.DisableNativeFramesTracking(ctx); err != nil {
			g.logSoft(ctx, "disable_native_frames_tracking", err)
		}
	}
}

func (g *Gate) logSoft(ctx context.Context, op string, err error) {
	g.logger.DebugContext(ctx, "native call failed", logging.Operation(op), logging.Error(err))
}

// serialize renders v as a native string: strings pass through, everything
// else is JSON encoded.
func serialize(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func roundTrip(in any, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
