package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/telhawk-systems/telhawk-beacon/internal/client"
	"github.com/telhawk-systems/telhawk-beacon/internal/relay"
)

type Config struct {
	Client       ClientConfig       `mapstructure:"client"`
	LinkedErrors LinkedErrorsConfig `mapstructure:"linked_errors"`
	Transport    TransportConfig    `mapstructure:"transport"`
	Relay        RelayConfig        `mapstructure:"relay"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

type ClientConfig struct {
	DSN                     string  `mapstructure:"dsn"`
	Release                 string  `mapstructure:"release"`
	Dist                    string  `mapstructure:"dist"`
	Environment             string  `mapstructure:"environment"`
	Platform                string  `mapstructure:"platform"`
	Debug                   bool    `mapstructure:"debug"`
	SampleRate              float64 `mapstructure:"sample_rate"`
	SendClientReports       bool    `mapstructure:"send_client_reports"`
	EnableNative            bool    `mapstructure:"enable_native"`
	AutoInitializeNativeSdk bool    `mapstructure:"auto_initialize_native_sdk"`
	EnableNativeNagger      bool    `mapstructure:"enable_native_nagger"`
	MaxBreadcrumbs          int     `mapstructure:"max_breadcrumbs"`
	AttachStacktrace        bool    `mapstructure:"attach_stacktrace"`
}

type LinkedErrorsConfig struct {
	Key   string `mapstructure:"key"`
	Limit int    `mapstructure:"limit"`
}

type TransportConfig struct {
	QueueSize    int           `mapstructure:"queue_size"`
	FlushTimeout time.Duration `mapstructure:"flush_timeout"`
}

type RelayConfig struct {
	NATSURL       string        `mapstructure:"nats_url"`
	Stream        string        `mapstructure:"stream"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	RedisURL      string        `mapstructure:"redis_url"`
	PackageName   string        `mapstructure:"package_name"`
	AppVersion    string        `mapstructure:"app_version"`
	AppBuild      string        `mapstructure:"app_build"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults. Keys without a default are invisible to AutomaticEnv on Unmarshal.
	v.SetDefault("client.dsn", "")
	v.SetDefault("client.release", "")
	v.SetDefault("client.dist", "")
	v.SetDefault("client.debug", false)
	v.SetDefault("client.attach_stacktrace", false)
	v.SetDefault("client.environment", "production")
	v.SetDefault("client.platform", "android")
	v.SetDefault("client.sample_rate", 1.0)
	v.SetDefault("client.send_client_reports", true)
	v.SetDefault("client.enable_native", true)
	v.SetDefault("client.auto_initialize_native_sdk", true)
	v.SetDefault("client.enable_native_nagger", true)
	v.SetDefault("client.max_breadcrumbs", 100)
	v.SetDefault("linked_errors.key", "cause")
	v.SetDefault("linked_errors.limit", 5)
	v.SetDefault("transport.queue_size", 30)
	v.SetDefault("transport.flush_timeout", "2s")
	v.SetDefault("relay.nats_url", "nats://localhost:4222")
	v.SetDefault("relay.stream", "BEACON")
	v.SetDefault("relay.subject_prefix", "beacon")
	v.SetDefault("relay.redis_url", "redis://localhost:6379/0")
	v.SetDefault("relay.package_name", "")
	v.SetDefault("relay.app_version", "")
	v.SetDefault("relay.app_build", "")
	v.SetDefault("relay.timeout", "5s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	// Read config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("beacon")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/telhawk/beacon")
	}

	// Environment variables override, e.g. BEACON_CLIENT_DSN
	v.SetEnvPrefix("BEACON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found; use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Client.SampleRate < 0 || cfg.Client.SampleRate > 1 {
		return nil, fmt.Errorf("client.sample_rate must be between 0 and 1, got %v", cfg.Client.SampleRate)
	}

	return &cfg, nil
}

// ClientOptions projects the configuration onto client options.
func (c *Config) ClientOptions() client.Options {
	opts := client.DefaultOptions()
	opts.DSN = c.Client.DSN
	opts.Release = c.Client.Release
	opts.Dist = c.Client.Dist
	opts.Environment = c.Client.Environment
	opts.Platform = c.Client.Platform
	opts.Debug = c.Client.Debug
	opts.SampleRate = c.Client.SampleRate
	opts.SendClientReports = c.Client.SendClientReports
	opts.EnableNative = c.Client.EnableNative
	opts.AutoInitializeNativeSdk = c.Client.AutoInitializeNativeSdk
	opts.EnableNativeNagger = c.Client.EnableNativeNagger
	opts.MaxBreadcrumbs = c.Client.MaxBreadcrumbs
	opts.AttachStacktrace = c.Client.AttachStacktrace
	opts.LinkedErrorsKey = c.LinkedErrors.Key
	opts.LinkedErrorsLimit = c.LinkedErrors.Limit
	opts.QueueSize = c.Transport.QueueSize
	opts.FlushTimeout = c.Transport.FlushTimeout
	return opts
}

// RelayOptions projects the relay section onto a relay module config.
func (c *Config) RelayOptions() relay.Config {
	return relay.Config{
		SubjectPrefix: c.Relay.SubjectPrefix,
		PackageName:   c.Relay.PackageName,
		AppVersion:    c.Relay.AppVersion,
		AppBuild:      c.Relay.AppBuild,
		Timeout:       c.Relay.Timeout,
	}
}
