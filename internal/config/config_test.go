package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_WithDefaults(t *testing.T) {
	// Load config without a config file (use defaults)
	cfg, err := Load("")
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, "production", cfg.Client.Environment)
	assert.Equal(t, "android", cfg.Client.Platform)
	assert.Equal(t, 1.0, cfg.Client.SampleRate)
	assert.True(t, cfg.Client.SendClientReports)
	assert.True(t, cfg.Client.EnableNative)
	assert.True(t, cfg.Client.AutoInitializeNativeSdk)
	assert.Equal(t, 100, cfg.Client.MaxBreadcrumbs)
	assert.Equal(t, "cause", cfg.LinkedErrors.Key)
	assert.Equal(t, 5, cfg.LinkedErrors.Limit)
	assert.Equal(t, 30, cfg.Transport.QueueSize)
	assert.Equal(t, 2*time.Second, cfg.Transport.FlushTimeout)
	assert.Equal(t, "nats://localhost:4222", cfg.Relay.NATSURL)
	assert.Equal(t, "BEACON", cfg.Relay.Stream)
	assert.Equal(t, "beacon", cfg.Relay.SubjectPrefix)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Relay.RedisURL)
	assert.Equal(t, 5*time.Second, cfg.Relay.Timeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	content := []byte(`
client:
  dsn: https://key@o1.ingest.example.com/1
  release: app@2.0.0
  platform: ios
  sample_rate: 0.25
  send_client_reports: false
linked_errors:
  limit: 8
transport:
  queue_size: 64
  flush_timeout: 500ms
relay:
  package_name: com.example.app
  app_version: 2.0.0
  subject_prefix: mobile
logging:
  level: debug
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://key@o1.ingest.example.com/1", cfg.Client.DSN)
	assert.Equal(t, "ios", cfg.Client.Platform)
	assert.Equal(t, 0.25, cfg.Client.SampleRate)
	assert.False(t, cfg.Client.SendClientReports)
	assert.Equal(t, 8, cfg.LinkedErrors.Limit)
	assert.Equal(t, "cause", cfg.LinkedErrors.Key)
	assert.Equal(t, 64, cfg.Transport.QueueSize)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.FlushTimeout)
	assert.Equal(t, "com.example.app", cfg.Relay.PackageName)
	assert.Equal(t, "debug", cfg.Logging.Level)

	opts := cfg.ClientOptions()
	assert.Equal(t, cfg.Client.DSN, opts.DSN)
	assert.Equal(t, "app@2.0.0", opts.Release)
	assert.Equal(t, 0.25, opts.SampleRate)
	assert.False(t, opts.SendClientReports)
	assert.Equal(t, 8, opts.LinkedErrorsLimit)
	assert.Equal(t, 64, opts.QueueSize)
	assert.Equal(t, 500*time.Millisecond, opts.FlushTimeout)
	assert.True(t, opts.EnableNative)

	relayCfg := cfg.RelayOptions()
	assert.Equal(t, "mobile", relayCfg.SubjectPrefix)
	assert.Equal(t, "com.example.app", relayCfg.PackageName)
	assert.Equal(t, "2.0.0", relayCfg.AppVersion)
	assert.Equal(t, 5*time.Second, relayCfg.Timeout)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("BEACON_CLIENT_DSN", "https://env@o1.ingest.example.com/2")
	t.Setenv("BEACON_TRANSPORT_QUEUE_SIZE", "12")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "https://env@o1.ingest.example.com/2", cfg.Client.DSN)
	assert.Equal(t, 12, cfg.Transport.QueueSize)
}

func TestLoad_NonExistentFile(t *testing.T) {
	// When a specific file path is given and doesn't exist, it should error
	_, err := Load("/nonexistent/path/beacon.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(path, []byte("invalid: yaml: : :"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidSampleRate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "beacon.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client:\n  sample_rate: 1.5\n"), 0o600))

	_, err := Load(path)
	assert.ErrorContains(t, err, "sample_rate")
}
