package client

import (
	"time"

	"github.com/telhawk-systems/telhawk-beacon/internal/bridge"
	"github.com/telhawk-systems/telhawk-beacon/internal/linkederrors"
	"github.com/telhawk-systems/telhawk-beacon/internal/models"
	"github.com/telhawk-systems/telhawk-beacon/internal/transport"
)

const (
	SDKName    = "telhawk.beacon.go"
	SDKVersion = "0.4.0"

	defaultEnvironment = "production"
	defaultPlatform    = "go"
)

// Options configure a Client.
type Options struct {
	DSN         string
	Release     string
	Dist        string
	Environment string
	// Platform is the host platform reported to the native layer ("android", "ios").
	Platform string
	Debug    bool

	// SampleRate is the fraction of error events sent, between 0 and 1.
	SampleRate        float64
	SendClientReports bool
	MaxBreadcrumbs    int
	AttachStacktrace  bool

	EnableNative            bool
	AutoInitializeNativeSdk bool
	EnableNativeNagger      bool

	LinkedErrorsKey   string
	LinkedErrorsLimit int

	QueueSize    int
	FlushTimeout time.Duration

	// BeforeSend may modify the event or return nil to drop it.
	BeforeSend func(event *models.Event, hint *models.EventHint) *models.Event
	// BeforeBreadcrumb may modify the breadcrumb or return nil to drop it.
	BeforeBreadcrumb func(crumb models.Breadcrumb) *models.Breadcrumb
	// OnReady runs after native initialization with whether the native layer started.
	OnReady func(started bool)
	// OnNativeInitFailure runs when the native layer could not be initialized.
	OnNativeInitFailure func(err error)

	// Extra options passed through to the native layer.
	Extra map[string]any
}

// DefaultOptions returns the client defaults.
func DefaultOptions() Options {
	return Options{
		Environment:             defaultEnvironment,
		SampleRate:              1.0,
		SendClientReports:       true,
		MaxBreadcrumbs:          100,
		EnableNative:            true,
		AutoInitializeNativeSdk: true,
		EnableNativeNagger:      true,
		LinkedErrorsKey:         linkederrors.DefaultKey,
		LinkedErrorsLimit:       linkederrors.DefaultLimit,
		QueueSize:               transport.DefaultQueueSize,
		FlushTimeout:            2 * time.Second,
	}
}

func (o Options) nativeOptions() bridge.InitOptions {
	return bridge.InitOptions{
		DSN:                     o.DSN,
		Release:                 o.Release,
		Dist:                    o.Dist,
		Environment:             o.Environment,
		Debug:                   o.Debug,
		SampleRate:              o.SampleRate,
		MaxBreadcrumbs:          o.MaxBreadcrumbs,
		AttachStacktrace:        o.AttachStacktrace,
		SendClientReports:       o.SendClientReports,
		EnableNative:            o.EnableNative,
		AutoInitializeNativeSdk: o.AutoInitializeNativeSdk,
		EnableNativeNagger:      o.EnableNativeNagger,
		BeforeBreadcrumb:        o.BeforeBreadcrumb,
		Extra:                   o.Extra,
	}
}
