package core

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "pathforge", cfg.ServiceName)
	assert.Equal(t, 3, cfg.Resilience.Retry.MaxRetries)
	assert.Equal(t, time.Second, cfg.Resilience.Retry.BaseDelay)
	assert.Equal(t, 60*time.Second, cfg.Resilience.Retry.MaxDelay)
	assert.Equal(t, 2.0, cfg.Resilience.Retry.ExponentialBase)
	assert.Equal(t, 5, cfg.Resilience.CircuitBreaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.CircuitBreaker.RecoveryTimeout)
	assert.Equal(t, 30, cfg.Pipeline.AverageMinutesPerResource)
	assert.Equal(t, 10, cfg.Pipeline.WeeklyHours)
	assert.Equal(t, "log", cfg.Telemetry.Sink)
	require.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PATHFORGE_MAX_PARALLELISM", "12")
	t.Setenv("PATHFORGE_PIPELINE_TIMEOUT", "90s")
	t.Setenv("PATHFORGE_CB_THRESHOLD", "2")
	t.Setenv("PATHFORGE_RETRY_BASE_DELAY", "not-a-duration")
	t.Setenv("PATHFORGE_TELEMETRY_SINK", "REDIS")
	t.Setenv("PATHFORGE_REDIS_URL", "redis://localhost:6379/1")
	t.Setenv("PATHFORGE_SUMMARIZE", "off")

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, 12, cfg.Pipeline.MaxParallelism)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.Timeout)
	assert.Equal(t, 2, cfg.Resilience.CircuitBreaker.FailureThreshold)
	assert.Equal(t, time.Second, cfg.Resilience.Retry.BaseDelay, "invalid duration keeps default")
	assert.Equal(t, "redis", cfg.Telemetry.Sink)
	assert.Equal(t, "redis://localhost:6379/1", cfg.Telemetry.RedisURL)
	assert.False(t, cfg.Pipeline.Summarize)
}

func TestLoadFromFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pathforge.yaml")
	content := `
service_name: guide-builder
pipeline:
  max_parallelism: 8
  timeout: 2m
resilience:
  retry:
    max_retries: 1
    base_delay: 250ms
    max_delay: 5s
telemetry:
  sink: disabled
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "guide-builder", cfg.ServiceName)
	assert.Equal(t, 8, cfg.Pipeline.MaxParallelism)
	assert.Equal(t, 2*time.Minute, cfg.Pipeline.Timeout)
	assert.Equal(t, 1, cfg.Resilience.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Resilience.Retry.BaseDelay)
	assert.Equal(t, "disabled", cfg.Telemetry.Sink)
	// untouched sections keep defaults
	assert.Equal(t, 5, cfg.Resilience.CircuitBreaker.FailureThreshold)
}

func TestLoadFromFileJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pathforge.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"pipeline":{"max_resources":7}}`), 0o600))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(path))
	assert.Equal(t, 7, cfg.Pipeline.MaxResources)
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := DefaultConfig()

	err := cfg.LoadFromFile("config.toml")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("pipeline: [unterminated"), 0o600))
	err = cfg.LoadFromFile(bad)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidConfiguration))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"zero parallelism", func(c *Config) { c.Pipeline.MaxParallelism = 0 }, ErrInvalidConfiguration},
		{"max below base", func(c *Config) { c.Resilience.Retry.MaxDelay = time.Millisecond }, ErrInvalidConfiguration},
		{"zero threshold", func(c *Config) { c.Resilience.CircuitBreaker.FailureThreshold = 0 }, ErrInvalidConfiguration},
		{"redis without url", func(c *Config) { c.Telemetry.Sink = "redis" }, ErrMissingConfiguration},
		{"unknown sink", func(c *Config) { c.Telemetry.Sink = "kafka" }, ErrInvalidConfiguration},
		{"anthropic without key", func(c *Config) { c.AI.Provider = "anthropic" }, ErrMissingConfiguration},
		{"unknown provider", func(c *Config) { c.AI.Provider = "cohere" }, ErrInvalidConfiguration},
		{"bedrock key without secret", func(c *Config) {
			c.AI.Provider = "bedrock"
			c.AI.AccessKeyID = "AKIA"
		}, ErrMissingConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)

			var fe *FrameworkError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, "Config.Validate", fe.Op)
		})
	}
}

func TestValidateBedrockUsesDefaultChain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.Provider = "bedrock"
	assert.NoError(t, cfg.Validate())
}

func TestNewConfigOptionsOverrideEnv(t *testing.T) {
	t.Setenv("PATHFORGE_MAX_PARALLELISM", "2")

	cfg, err := NewConfig(
		WithMaxParallelism(6),
		WithCircuitBreaker(3, 10*time.Second),
		WithTelemetrySink("disabled"),
		WithDevelopmentMode(true),
	)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Pipeline.MaxParallelism)
	assert.Equal(t, 3, cfg.Resilience.CircuitBreaker.FailureThreshold)
	assert.True(t, cfg.Development.Enabled)
	assert.True(t, cfg.Development.PrettyLogs)
}

func TestNewConfigInvalid(t *testing.T) {
	_, err := NewConfig(WithMaxParallelism(-1))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))

	_, err = NewConfig(WithServiceName(""))
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
}
