package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for pathforge.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithConfigFile("pathforge.yaml"),
//	    WithMaxParallelism(8),
//	    WithTelemetrySink("redis"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	ServiceName string `json:"service_name" yaml:"service_name" env:"PATHFORGE_SERVICE_NAME" default:"pathforge"`

	Pipeline    PipelineConfig    `json:"pipeline" yaml:"pipeline"`
	Resilience  ResilienceConfig  `json:"resilience" yaml:"resilience"`
	Telemetry   TelemetryConfig   `json:"telemetry" yaml:"telemetry"`
	Logging     LoggingConfig     `json:"logging" yaml:"logging"`
	AI          AIConfig          `json:"ai" yaml:"ai"`
	MCP         MCPConfig         `json:"mcp" yaml:"mcp"`
	HTTP        HTTPConfig        `json:"http" yaml:"http"`
	Tools       ToolsConfig       `json:"tools" yaml:"tools"`
	Development DevelopmentConfig `json:"development" yaml:"development"`
}

// PipelineConfig controls a single orchestrator run.
type PipelineConfig struct {
	MaxParallelism            int           `json:"max_parallelism" yaml:"max_parallelism" env:"PATHFORGE_MAX_PARALLELISM" default:"4"`
	Timeout                   time.Duration `json:"timeout" yaml:"timeout" env:"PATHFORGE_PIPELINE_TIMEOUT" default:"5m"`
	MaxResources              int           `json:"max_resources" yaml:"max_resources" env:"PATHFORGE_MAX_RESOURCES" default:"50"`
	AverageMinutesPerResource int           `json:"average_minutes_per_resource" yaml:"average_minutes_per_resource" default:"30"`
	WeeklyHours               int           `json:"weekly_hours" yaml:"weekly_hours" default:"10"`
	Enrich                    bool          `json:"enrich" yaml:"enrich" env:"PATHFORGE_ENRICH" default:"true"`
	Summarize                 bool          `json:"summarize" yaml:"summarize" env:"PATHFORGE_SUMMARIZE" default:"true"`
}

// ResilienceConfig contains retry, circuit breaker and rate limit defaults
// applied to every outbound target.
type ResilienceConfig struct {
	Retry          RetryConfig          `json:"retry" yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker" yaml:"circuit_breaker"`
	RateLimit      RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
}

// RetryConfig configures exponential backoff with jitter.
type RetryConfig struct {
	MaxRetries      int           `json:"max_retries" yaml:"max_retries" env:"PATHFORGE_RETRY_MAX" default:"3"`
	BaseDelay       time.Duration `json:"base_delay" yaml:"base_delay" env:"PATHFORGE_RETRY_BASE_DELAY" default:"1s"`
	MaxDelay        time.Duration `json:"max_delay" yaml:"max_delay" env:"PATHFORGE_RETRY_MAX_DELAY" default:"60s"`
	ExponentialBase float64       `json:"exponential_base" yaml:"exponential_base" default:"2.0"`
}

// CircuitBreakerConfig configures the per-target breaker.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" yaml:"enabled" env:"PATHFORGE_CB_ENABLED" default:"true"`
	FailureThreshold int           `json:"failure_threshold" yaml:"failure_threshold" env:"PATHFORGE_CB_THRESHOLD" default:"5"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout" yaml:"recovery_timeout" env:"PATHFORGE_CB_RECOVERY" default:"60s"`
}

// RateLimitConfig caps outbound calls per target. Zero disables limiting.
type RateLimitConfig struct {
	RatePerSecond float64 `json:"rate_per_second" yaml:"rate_per_second" env:"PATHFORGE_RATE_LIMIT"`
	Burst         int     `json:"burst" yaml:"burst" default:"1"`
}

// TelemetryConfig selects the trace sink. Sink is one of
// "disabled", "log", "redis" or "otel"; the otel sink exports with
// "otlp" (gRPC), "otlphttp" or "stdout".
type TelemetryConfig struct {
	Sink        string        `json:"sink" yaml:"sink" env:"PATHFORGE_TELEMETRY_SINK" default:"log"`
	Exporter    string        `json:"exporter" yaml:"exporter" env:"PATHFORGE_TELEMETRY_EXPORTER" default:"otlp"`
	Endpoint    string        `json:"endpoint" yaml:"endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	RedisURL    string        `json:"redis_url" yaml:"redis_url" env:"PATHFORGE_REDIS_URL"`
	Key         string        `json:"key" yaml:"key" default:"pathforge:traces"`
	MaxEntries  int64         `json:"max_entries" yaml:"max_entries" default:"1000"`
	TTL         time.Duration `json:"ttl" yaml:"ttl" default:"24h"`
	MaxPayload  int           `json:"max_payload" yaml:"max_payload" default:"2048"`
	MetricsName string        `json:"metrics_name" yaml:"metrics_name" default:"pathforge"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `json:"level" yaml:"level" env:"PATHFORGE_LOG_LEVEL" default:"info"`
	Format string `json:"format" yaml:"format" env:"PATHFORGE_LOG_FORMAT" default:"json"`
	Output string `json:"output" yaml:"output" env:"PATHFORGE_LOG_OUTPUT" default:"stderr"`
}

// AIConfig selects the summarizer. Provider is one of "anthropic",
// "openai", "bedrock", "extractive" or "none".
type AIConfig struct {
	Provider    string  `json:"provider" yaml:"provider" env:"PATHFORGE_AI_PROVIDER" default:"extractive"`
	Model       string  `json:"model" yaml:"model" env:"PATHFORGE_AI_MODEL"`
	APIKey      string  `json:"-" yaml:"-" env:"PATHFORGE_AI_API_KEY"`
	BaseURL     string  `json:"base_url" yaml:"base_url" env:"PATHFORGE_AI_BASE_URL"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" default:"1024"`
	Temperature float64 `json:"temperature" yaml:"temperature" default:"0.3"`

	// Bedrock only. Without an access key the default AWS credential
	// chain is used.
	Region          string `json:"region" yaml:"region" env:"PATHFORGE_AI_REGION"`
	AccessKeyID     string `json:"-" yaml:"-" env:"PATHFORGE_AI_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"-" yaml:"-" env:"PATHFORGE_AI_SECRET_ACCESS_KEY"`
	SessionToken    string `json:"-" yaml:"-" env:"PATHFORGE_AI_SESSION_TOKEN"`
}

// MCPConfig points at the external JSON-RPC tool endpoint. An empty
// endpoint disables MCP-proxied tools.
type MCPConfig struct {
	Endpoint string            `json:"endpoint" yaml:"endpoint" env:"PATHFORGE_MCP_ENDPOINT"`
	Headers  map[string]string `json:"headers" yaml:"headers"`
}

// HTTPConfig configures the inbound HTTP surface.
type HTTPConfig struct {
	Addr            string        `json:"addr" yaml:"addr" env:"PATHFORGE_HTTP_ADDR" default:":8080"`
	ReadTimeout     time.Duration `json:"read_timeout" yaml:"read_timeout" default:"30s"`
	WriteTimeout    time.Duration `json:"write_timeout" yaml:"write_timeout" default:"6m"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" yaml:"shutdown_timeout" default:"10s"`
}

// ToolsConfig configures the built-in reference tools.
type ToolsConfig struct {
	UserAgent      string `json:"user_agent" yaml:"user_agent" default:"pathforge/1.0"`
	VideoOEmbedURL string `json:"video_oembed_url" yaml:"video_oembed_url" default:"https://www.youtube.com/oembed"`
	MaxBodyBytes   int64  `json:"max_body_bytes" yaml:"max_body_bytes" default:"2097152"`
	WordsPerMinute int    `json:"words_per_minute" yaml:"words_per_minute" default:"200"`
}

// DevelopmentConfig contains development mode settings. Enabled lowers the
// log level to debug; PrettyLogs forces the text log format.
type DevelopmentConfig struct {
	Enabled    bool `json:"enabled" yaml:"enabled" env:"PATHFORGE_DEV_MODE"`
	PrettyLogs bool `json:"pretty_logs" yaml:"pretty_logs"`
}

// Option is a functional option for configuring pathforge.
type Option func(*Config) error

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig() *Config {
	return &Config{
		ServiceName: "pathforge",
		Pipeline: PipelineConfig{
			MaxParallelism:            4,
			Timeout:                   5 * time.Minute,
			MaxResources:              50,
			AverageMinutesPerResource: 30,
			WeeklyHours:               10,
			Enrich:                    true,
			Summarize:                 true,
		},
		Resilience: ResilienceConfig{
			Retry: RetryConfig{
				MaxRetries:      3,
				BaseDelay:       time.Second,
				MaxDelay:        60 * time.Second,
				ExponentialBase: 2.0,
			},
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				RecoveryTimeout:  60 * time.Second,
			},
			RateLimit: RateLimitConfig{Burst: 1},
		},
		Telemetry: TelemetryConfig{
			Sink:        "log",
			Exporter:    "otlp",
			Key:         "pathforge:traces",
			MaxEntries:  1000,
			TTL:         24 * time.Hour,
			MaxPayload:  2048,
			MetricsName: "pathforge",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stderr",
		},
		AI: AIConfig{
			Provider:    "extractive",
			MaxTokens:   1024,
			Temperature: 0.3,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    6 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
		},
		Tools: ToolsConfig{
			UserAgent:      "pathforge/1.0",
			VideoOEmbedURL: "https://www.youtube.com/oembed",
			MaxBodyBytes:   2 << 20,
			WordsPerMinute: 200,
		},
	}
}

// LoadFromEnv loads configuration from PATHFORGE_* environment variables.
// Unparseable numeric or duration values are ignored and the previous value
// kept.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PATHFORGE_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}

	// Pipeline settings
	if v := os.Getenv("PATHFORGE_MAX_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxParallelism = n
		}
	}
	if v := os.Getenv("PATHFORGE_PIPELINE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Pipeline.Timeout = d
		}
	}
	if v := os.Getenv("PATHFORGE_MAX_RESOURCES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxResources = n
		}
	}
	if v := os.Getenv("PATHFORGE_ENRICH"); v != "" {
		c.Pipeline.Enrich = parseBool(v)
	}
	if v := os.Getenv("PATHFORGE_SUMMARIZE"); v != "" {
		c.Pipeline.Summarize = parseBool(v)
	}

	// Resilience settings
	if v := os.Getenv("PATHFORGE_RETRY_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("PATHFORGE_RETRY_BASE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.Retry.BaseDelay = d
		}
	}
	if v := os.Getenv("PATHFORGE_RETRY_MAX_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.Retry.MaxDelay = d
		}
	}
	if v := os.Getenv("PATHFORGE_CB_ENABLED"); v != "" {
		c.Resilience.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("PATHFORGE_CB_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.CircuitBreaker.FailureThreshold = n
		}
	}
	if v := os.Getenv("PATHFORGE_CB_RECOVERY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Resilience.CircuitBreaker.RecoveryTimeout = d
		}
	}
	if v := os.Getenv("PATHFORGE_RATE_LIMIT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Resilience.RateLimit.RatePerSecond = f
		}
	}

	// Telemetry settings
	if v := os.Getenv("PATHFORGE_TELEMETRY_SINK"); v != "" {
		c.Telemetry.Sink = strings.ToLower(v)
	}
	if v := os.Getenv("PATHFORGE_TELEMETRY_EXPORTER"); v != "" {
		c.Telemetry.Exporter = strings.ToLower(v)
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("PATHFORGE_REDIS_URL"); v != "" {
		c.Telemetry.RedisURL = v
	} else if v := os.Getenv("REDIS_URL"); v != "" {
		c.Telemetry.RedisURL = v
	}

	// Logging settings
	if v := os.Getenv("PATHFORGE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("PATHFORGE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("PATHFORGE_LOG_OUTPUT"); v != "" {
		c.Logging.Output = v
	}

	// AI settings
	if v := os.Getenv("PATHFORGE_AI_PROVIDER"); v != "" {
		c.AI.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("PATHFORGE_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("PATHFORGE_AI_BASE_URL"); v != "" {
		c.AI.BaseURL = v
	}
	if v := os.Getenv("PATHFORGE_AI_REGION"); v != "" {
		c.AI.Region = v
	} else if v := os.Getenv("AWS_REGION"); v != "" {
		c.AI.Region = v
	}
	if v := os.Getenv("PATHFORGE_AI_ACCESS_KEY_ID"); v != "" {
		c.AI.AccessKeyID = v
		c.AI.SecretAccessKey = os.Getenv("PATHFORGE_AI_SECRET_ACCESS_KEY")
		c.AI.SessionToken = os.Getenv("PATHFORGE_AI_SESSION_TOKEN")
	}
	if v := os.Getenv("PATHFORGE_AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	} else {
		switch c.AI.Provider {
		case "anthropic":
			c.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case "openai":
			c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}

	// MCP and HTTP settings
	if v := os.Getenv("PATHFORGE_MCP_ENDPOINT"); v != "" {
		c.MCP.Endpoint = v
	}
	if v := os.Getenv("PATHFORGE_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}

	if v := os.Getenv("PATHFORGE_DEV_MODE"); v != "" && parseBool(v) {
		c.Development.Enabled = true
		c.Development.PrettyLogs = true
	}

	return nil
}

// LoadFromFile loads configuration from a JSON or YAML file. Durations in
// YAML files are written as Go duration strings ("30s", "5m").
//
// Example pathforge.yaml:
//
//	pipeline:
//	  max_parallelism: 8
//	  timeout: 2m
//	telemetry:
//	  sink: redis
//	  redis_url: redis://localhost:6379/0
func (c *Config) LoadFromFile(path string) error {
	cleanPath := filepath.Clean(path)

	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config file extension %s: %w", ext, ErrInvalidConfiguration)
	}

	data, err := os.ReadFile(cleanPath) // nosec G304 -- operator supplied config path
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", cleanPath, err)
	}

	switch ext {
	case ".json":
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse JSON config file: %v: %w", err, ErrInvalidConfiguration)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse YAML config file: %v: %w", err, ErrInvalidConfiguration)
		}
	}

	return nil
}

// Validate checks if the configuration is valid and returns an error if not.
func (c *Config) Validate() error {
	invalid := func(msg string, err error) error {
		return &FrameworkError{Op: "Config.Validate", Kind: "config", Message: msg, Err: err}
	}

	if c.Pipeline.MaxParallelism < 1 {
		return invalid(fmt.Sprintf("max_parallelism must be at least 1, got %d", c.Pipeline.MaxParallelism), ErrInvalidConfiguration)
	}
	if c.Pipeline.Timeout <= 0 {
		return invalid("pipeline timeout must be positive", ErrInvalidConfiguration)
	}
	if c.Pipeline.AverageMinutesPerResource < 1 {
		return invalid("average_minutes_per_resource must be at least 1", ErrInvalidConfiguration)
	}
	if c.Pipeline.WeeklyHours < 1 {
		return invalid("weekly_hours must be at least 1", ErrInvalidConfiguration)
	}

	r := c.Resilience
	if r.Retry.MaxRetries < 0 {
		return invalid("max_retries must not be negative", ErrInvalidConfiguration)
	}
	if r.Retry.BaseDelay < 0 || r.Retry.MaxDelay < r.Retry.BaseDelay {
		return invalid("retry delays must satisfy 0 <= base_delay <= max_delay", ErrInvalidConfiguration)
	}
	if r.Retry.ExponentialBase < 1 {
		return invalid("exponential_base must be at least 1", ErrInvalidConfiguration)
	}
	if r.CircuitBreaker.Enabled && r.CircuitBreaker.FailureThreshold < 1 {
		return invalid("failure_threshold must be at least 1", ErrInvalidConfiguration)
	}
	if r.CircuitBreaker.Enabled && r.CircuitBreaker.RecoveryTimeout <= 0 {
		return invalid("recovery_timeout must be positive", ErrInvalidConfiguration)
	}
	if r.RateLimit.RatePerSecond < 0 {
		return invalid("rate_per_second must not be negative", ErrInvalidConfiguration)
	}

	switch c.Telemetry.Sink {
	case "disabled", "log", "otel":
	case "redis":
		if c.Telemetry.RedisURL == "" {
			return invalid("redis_url is required for the redis telemetry sink", ErrMissingConfiguration)
		}
	default:
		return invalid(fmt.Sprintf("unknown telemetry sink %q", c.Telemetry.Sink), ErrInvalidConfiguration)
	}
	if c.Telemetry.Sink == "otel" && c.Telemetry.Exporter != "otlp" && c.Telemetry.Exporter != "otlphttp" && c.Telemetry.Exporter != "stdout" {
		return invalid(fmt.Sprintf("unknown telemetry exporter %q", c.Telemetry.Exporter), ErrInvalidConfiguration)
	}

	switch c.AI.Provider {
	case "extractive", "none", "":
	case "bedrock":
		if c.AI.AccessKeyID != "" && c.AI.SecretAccessKey == "" {
			return invalid("secret access key is required with an access key ID", ErrMissingConfiguration)
		}
	case "anthropic", "openai":
		if c.AI.APIKey == "" {
			return invalid(fmt.Sprintf("API key is required for the %s provider", c.AI.Provider), ErrMissingConfiguration)
		}
	default:
		return invalid(fmt.Sprintf("unknown AI provider %q", c.AI.Provider), ErrInvalidConfiguration)
	}

	return nil
}

// Helper functions

// parseBool converts a string to a boolean value.
// Accepts: "true", "1", "yes", "on" (case-insensitive) as true.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// Functional Options

// WithConfigFile loads a JSON or YAML file. Place it first so later
// options override file settings.
func WithConfigFile(path string) Option {
	return func(c *Config) error {
		return c.LoadFromFile(path)
	}
}

// WithServiceName sets the service name used in logs and traces.
func WithServiceName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("service name cannot be empty: %w", ErrInvalidConfiguration)
		}
		c.ServiceName = name
		return nil
	}
}

// WithMaxParallelism bounds concurrent enrichment calls.
func WithMaxParallelism(n int) Option {
	return func(c *Config) error {
		c.Pipeline.MaxParallelism = n
		return nil
	}
}

// WithPipelineTimeout sets the deadline for a whole pipeline run.
func WithPipelineTimeout(d time.Duration) Option {
	return func(c *Config) error {
		c.Pipeline.Timeout = d
		return nil
	}
}

// WithStages toggles the optional enrich and summarize stages.
func WithStages(enrich, summarize bool) Option {
	return func(c *Config) error {
		c.Pipeline.Enrich = enrich
		c.Pipeline.Summarize = summarize
		return nil
	}
}

// WithRetry configures retry behavior.
func WithRetry(maxRetries int, baseDelay, maxDelay time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxRetries = maxRetries
		c.Resilience.Retry.BaseDelay = baseDelay
		c.Resilience.Retry.MaxDelay = maxDelay
		return nil
	}
}

// WithCircuitBreaker configures circuit breaker settings.
func WithCircuitBreaker(threshold int, recovery time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.Enabled = true
		c.Resilience.CircuitBreaker.FailureThreshold = threshold
		c.Resilience.CircuitBreaker.RecoveryTimeout = recovery
		return nil
	}
}

// WithRateLimit caps outbound calls per target.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Config) error {
		c.Resilience.RateLimit.RatePerSecond = perSecond
		c.Resilience.RateLimit.Burst = burst
		return nil
	}
}

// WithTelemetrySink selects where sealed traces are exported.
func WithTelemetrySink(sink string) Option {
	return func(c *Config) error {
		c.Telemetry.Sink = strings.ToLower(sink)
		return nil
	}
}

// WithRedisURL sets the redis URL used by the redis telemetry sink.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		c.Telemetry.RedisURL = url
		return nil
	}
}

// WithOTELEndpoint sets the OTLP collector endpoint.
func WithOTELEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Endpoint = endpoint
		return nil
	}
}

// WithLogLevel sets the logging level (debug, info, warn, error).
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat sets the log output format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithAI selects the summarizer provider.
func WithAI(provider, apiKey, model string) Option {
	return func(c *Config) error {
		c.AI.Provider = strings.ToLower(provider)
		c.AI.APIKey = apiKey
		c.AI.Model = model
		return nil
	}
}

// WithMCPEndpoint enables MCP-proxied tools against endpoint.
func WithMCPEndpoint(endpoint string) Option {
	return func(c *Config) error {
		c.MCP.Endpoint = endpoint
		return nil
	}
}

// WithHTTPAddr sets the listen address for `pathforge serve`.
func WithHTTPAddr(addr string) Option {
	return func(c *Config) error {
		c.HTTP.Addr = addr
		return nil
	}
}

// WithDevelopmentMode enables text logs at debug level. See NewLogger.
//
// WARNING: Never enable in production!
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		c.Development.PrettyLogs = enabled
		return nil
	}
}

// NewConfig creates a new configuration with the provided options.
// Configuration is applied in the following order:
//  1. Default values from DefaultConfig()
//  2. Environment variables via LoadFromEnv()
//  3. Functional options (highest priority)
//  4. Validation via Validate()
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
