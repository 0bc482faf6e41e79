package config

import (
	"time"

	"bte-graphql/internal/schemafilter"
)

// Config holds the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Catalog       CatalogConfig       `mapstructure:"catalog"`
	Resolver      ResolverConfig      `mapstructure:"resolver"`
	Execution     ExecutionConfig     `mapstructure:"execution"`
	Correlation   CorrelationConfig   `mapstructure:"correlation"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// CatalogConfig points at the operation catalog and narrows it.
type CatalogConfig struct {
	Path    string              `mapstructure:"path"`
	Filters schemafilter.Config `mapstructure:"filters"`
}

// ResolverConfig configures the identifier resolver client.
type ResolverConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	CacheSize    int           `mapstructure:"cache_size"`
	EnrichLabels bool          `mapstructure:"enrich_labels"` // look up labels of output ids the provider left unnamed
}

// ExecutionConfig bounds outbound provider API calls.
type ExecutionConfig struct {
	MaxConcurrency    int           `mapstructure:"max_concurrency"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"` // per API, 0 = unlimited
	Burst             int           `mapstructure:"burst"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MaxRetries        int           `mapstructure:"max_retries"`
	MaxResponseBytes  int64         `mapstructure:"max_response_bytes"`
}

// CorrelationConfig toggles the correlation arguments and field.
type CorrelationConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port                 int           `mapstructure:"port"`
	GraphQLMaxDepth      int           `mapstructure:"graphql_max_depth"`
	GraphiQLEnabled      bool          `mapstructure:"graphiql_enabled"`
	HealthPath           string        `mapstructure:"health_path"`
	RateLimitEnabled     bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRPS         float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst       int           `mapstructure:"rate_limit_burst"`
	CORSEnabled          bool          `mapstructure:"cors_enabled"`
	CORSAllowedOrigins   []string      `mapstructure:"cors_allowed_origins"`
	CORSAllowedMethods   []string      `mapstructure:"cors_allowed_methods"`
	CORSAllowedHeaders   []string      `mapstructure:"cors_allowed_headers"`
	CORSExposeHeaders    []string      `mapstructure:"cors_expose_headers"`
	CORSAllowCredentials bool          `mapstructure:"cors_allow_credentials"`
	CORSMaxAge           int           `mapstructure:"cors_max_age"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout"`
	IdleTimeout          time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout"`
}

// LoggingConfig holds logging parameters.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`           // debug, info, warn, error
	Format         string `mapstructure:"format"`          // json, text
	ExportsEnabled bool   `mapstructure:"exports_enabled"` // Enable OTLP log export
}

// ObservabilityConfig holds observability parameters.
type ObservabilityConfig struct {
	ServiceName      string        `mapstructure:"service_name"`
	ServiceVersion   string        `mapstructure:"service_version"`
	Environment      string        `mapstructure:"environment"`
	MetricsEnabled   bool          `mapstructure:"metrics_enabled"`
	TracingEnabled   bool          `mapstructure:"tracing_enabled"`
	TraceSampleRatio float64       `mapstructure:"trace_sample_ratio"`
	Logging          LoggingConfig `mapstructure:"logging"`

	// Global OTLP settings (defaults for all signals)
	OTLP OTLPConfig `mapstructure:"otlp"`

	// Signal-specific overrides (optional)
	Traces *OTLPConfig `mapstructure:"traces,omitempty"`
	Logs   *OTLPConfig `mapstructure:"logs,omitempty"`
}

// OTLPConfig holds OTLP exporter configuration
type OTLPConfig struct {
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"` // "grpc", "http/protobuf"
	Insecure    bool              `mapstructure:"insecure"`
	TLSCertFile string            `mapstructure:"tls_cert_file"`
	Headers     map[string]string `mapstructure:"headers"`
	Timeout     time.Duration     `mapstructure:"timeout"`
	Compression string            `mapstructure:"compression"` // "none", "gzip"
}

// TracesOTLP returns the effective OTLP config for traces.
func (c *ObservabilityConfig) TracesOTLP() OTLPConfig {
	if c.Traces != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Traces)
	}
	return c.OTLP
}

// LogsOTLP returns the effective OTLP config for logs.
func (c *ObservabilityConfig) LogsOTLP() OTLPConfig {
	if c.Logs != nil {
		return mergeOTLPConfigs(c.OTLP, *c.Logs)
	}
	return c.OTLP
}

// mergeOTLPConfigs lays the non-empty values of a signal override over the
// global settings. Insecure always comes from the override.
func mergeOTLPConfigs(base OTLPConfig, override OTLPConfig) OTLPConfig {
	result := base

	if override.Endpoint != "" {
		result.Endpoint = override.Endpoint
	}
	if override.Protocol != "" {
		result.Protocol = override.Protocol
	}
	result.Insecure = override.Insecure
	if override.TLSCertFile != "" {
		result.TLSCertFile = override.TLSCertFile
	}

	if override.Headers != nil {
		result.Headers = make(map[string]string, len(base.Headers)+len(override.Headers))
		for k, v := range base.Headers {
			result.Headers[k] = v
		}
		for k, v := range override.Headers {
			result.Headers[k] = v
		}
	}

	if override.Timeout != 0 {
		result.Timeout = override.Timeout
	}
	if override.Compression != "" {
		result.Compression = override.Compression
	}
	return result
}
