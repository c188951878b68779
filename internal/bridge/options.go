package bridge

import (
	"encoding"
	"fmt"
	"reflect"

	"github.com/go-viper/mapstructure/v2"

	"github.com/telhawk-systems/telhawk-beacon/internal/models"
)

// InitOptions are the client options relevant to the native layer. Callback
// fields never cross the bridge.
type InitOptions struct {
	DSN                     string  `mapstructure:"dsn"`
	Release                 string  `mapstructure:"release,omitempty"`
	Dist                    string  `mapstructure:"dist,omitempty"`
	Environment             string  `mapstructure:"environment,omitempty"`
	Debug                   bool    `mapstructure:"debug"`
	SampleRate              float64 `mapstructure:"sample_rate"`
	MaxBreadcrumbs          int     `mapstructure:"max_breadcrumbs"`
	AttachStacktrace        bool    `mapstructure:"attach_stacktrace"`
	SendClientReports       bool    `mapstructure:"send_client_reports"`
	EnableNative            bool    `mapstructure:"enable_native"`
	AutoInitializeNativeSdk bool    `mapstructure:"auto_initialize_native_sdk"`
	EnableNativeNagger      bool    `mapstructure:"enable_native_nagger"`

	BeforeSend            func(*models.Event) *models.Event           `mapstructure:"-"`
	BeforeSendTransaction func(*models.Event) *models.Event           `mapstructure:"-"`
	BeforeBreadcrumb      func(models.Breadcrumb) *models.Breadcrumb `mapstructure:"-"`
	Integrations          []any                                       `mapstructure:"-"`

	// Extra carries platform specific options through to the native layer.
	Extra map[string]any `mapstructure:"-"`
}

// DefaultInitOptions returns options with native support on and automatic
// initialization enabled.
func DefaultInitOptions() InitOptions {
	return InitOptions{
		SampleRate:              1.0,
		MaxBreadcrumbs:          100,
		EnableNative:            true,
		AutoInitializeNativeSdk: true,
		EnableNativeNagger:      true,
	}
}

// callbackKeys are dropped from Extra regardless of their value.
var callbackKeys = map[string]struct{}{
	"before_send":             {},
	"before_send_transaction": {},
	"before_breadcrumb":       {},
	"integrations":            {},
	"beforeSend":              {},
	"beforeSendTransaction":   {},
	"beforeBreadcrumb":        {},
}

// toNative flattens the options into plain data for the native module.
func (o InitOptions) toNative() (map[string]any, error) {
	out := map[string]any{}
	if err := mapstructure.Decode(o, &out); err != nil {
		return nil, fmt.Errorf("failed to flatten native options: %w", err)
	}
	for k, v := range o.Extra {
		if _, isCallback := callbackKeys[k]; isCallback {
			continue
		}
		if _, reserved := out[k]; reserved {
			continue
		}
		if plain, ok := plainValue(reflect.ValueOf(v)); ok {
			out[k] = plain
		}
	}
	return out, nil
}

// plainValue strips functions and channels, descending into maps, slices and
// structs. Structs are flattened to maps keyed by field name.
func plainValue(v reflect.Value) (any, bool) {
	if !v.IsValid() {
		return nil, true
	}
	switch v.Kind() {
	case reflect.Func, reflect.Chan, reflect.UnsafePointer:
		return nil, false
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil, true
		}
		return plainValue(v.Elem())
	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return v.Interface(), true
		}
		m := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			if plain, ok := plainValue(iter.Value()); ok {
				m[iter.Key().String()] = plain
			}
		}
		return m, true
	case reflect.Struct:
		if tm, ok := v.Interface().(encoding.TextMarshaler); ok {
			text, err := tm.MarshalText()
			if err != nil {
				return nil, false
			}
			return string(text), true
		}
		fields := map[string]any{}
		if err := mapstructure.Decode(v.Interface(), &fields); err != nil {
			return nil, false
		}
		return plainValue(reflect.ValueOf(fields))
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.Type().Elem().Kind() == reflect.Uint8 {
			return v.Interface(), true
		}
		s := make([]any, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if plain, ok := plainValue(v.Index(i)); ok {
				s = append(s, plain)
			}
		}
		return s, true
	}
	return v.Interface(), true
}
