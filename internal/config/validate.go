package config

import (
	"fmt"
	"net"
	"net/url"
	"path"
	"strings"
)

// ValidationError represents a configuration validation error with context.
type ValidationError struct {
	Field   string
	Message string
	Hint    string
}

func (e ValidationError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s (hint: %s)", e.Field, e.Message, e.Hint)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationWarning represents a non-fatal configuration issue.
type ValidationWarning struct {
	Field   string
	Message string
	Hint    string
}

// ValidationResult contains the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationWarning
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Error returns a combined error message if there are validation errors.
func (r *ValidationResult) Error() string {
	if !r.HasErrors() {
		return ""
	}
	var msgs []string
	for _, e := range r.Errors {
		msgs = append(msgs, e.Error())
	}
	return strings.Join(msgs, "; ")
}

func (r *ValidationResult) fail(field, message, hint string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message, Hint: hint})
}

func (r *ValidationResult) warn(field, message, hint string) {
	r.Warnings = append(r.Warnings, ValidationWarning{Field: field, Message: message, Hint: hint})
}

// Validate checks the configuration for errors and returns validation results.
// It returns both errors (fatal) and warnings (non-fatal issues).
func (c *Config) Validate() *ValidationResult {
	result := &ValidationResult{}

	c.Server.validate(result)
	c.Catalog.validate(result)
	c.Resolver.validate(result)
	c.Execution.validate(result)
	c.Observability.validate(result)

	return result
}

func (c *CatalogConfig) validate(result *ValidationResult) {
	if strings.TrimSpace(c.Path) == "" {
		result.fail("catalog.path", "operation catalog path is required", "set catalog.path or BTEGQL_CATALOG_PATH")
	}
	validateGlobList(result, "catalog.filters.allow_apis", c.Filters.AllowAPIs)
	validateGlobList(result, "catalog.filters.deny_apis", c.Filters.DenyAPIs)
	validateGlobList(result, "catalog.filters.allow_types", c.Filters.AllowTypes)
	validateGlobList(result, "catalog.filters.deny_types", c.Filters.DenyTypes)
}

func (r *ResolverConfig) validate(result *ValidationResult) {
	if !validHTTPURL(r.BaseURL) {
		result.fail("resolver.base_url", fmt.Sprintf("invalid resolver URL %q", r.BaseURL), "use a full http:// or https:// URL")
	}
	if r.Timeout < 0 {
		result.fail("resolver.timeout", "timeout cannot be negative", "")
	}
	if r.MaxRetries < 0 {
		result.fail("resolver.max_retries", "max_retries cannot be negative", "")
	}
	if r.CacheSize < 0 {
		result.fail("resolver.cache_size", "cache_size cannot be negative", "")
	}
	if r.CacheSize == 0 {
		result.warn("resolver.cache_size", "identifier resolution cache is disabled",
			"every edge resolves its ids upstream; set cache_size to reuse resolutions")
	}
}

func (e *ExecutionConfig) validate(result *ValidationResult) {
	if e.MaxConcurrency < 1 {
		result.fail("execution.max_concurrency", "max_concurrency must be at least 1", "")
	}
	if e.RequestsPerSecond < 0 {
		result.fail("execution.requests_per_second", "requests_per_second cannot be negative", "use 0 for unlimited")
	}
	if e.RequestsPerSecond > 0 && e.Burst < 1 {
		result.fail("execution.burst", "burst must be at least 1 when requests_per_second is set", "")
	}
	if e.Timeout < 0 {
		result.fail("execution.timeout", "timeout cannot be negative", "")
	}
	if e.MaxRetries < 0 {
		result.fail("execution.max_retries", "max_retries cannot be negative", "")
	}
	if e.MaxResponseBytes < 0 {
		result.fail("execution.max_response_bytes", "max_response_bytes cannot be negative", "")
	}
}

func (s *ServerConfig) validate(result *ValidationResult) {
	if s.Port < 1 || s.Port > 65535 {
		result.fail("server.port", fmt.Sprintf("port %d is out of valid range (1-65535)", s.Port), "")
	}

	if s.GraphQLMaxDepth < 0 {
		result.fail("server.graphql_max_depth", "graphql_max_depth cannot be negative", "")
	}
	if s.GraphQLMaxDepth == 0 {
		result.warn("server.graphql_max_depth", "query depth is unlimited",
			"nested relationship fields fan out to provider APIs at every level")
	}

	if !strings.HasPrefix(s.HealthPath, "/") {
		result.fail("server.health_path", fmt.Sprintf("health path %q must start with /", s.HealthPath), "")
	}
	switch s.HealthPath {
	case "/graphql", "/metrics":
		result.fail("server.health_path", fmt.Sprintf("health path %q collides with a built-in route", s.HealthPath), "")
	}

	if s.RateLimitEnabled {
		if s.RateLimitRPS <= 0 {
			result.fail("server.rate_limit_rps", "rate_limit_rps must be greater than 0 when rate limiting is enabled", "")
		}
		if s.RateLimitBurst <= 0 {
			result.fail("server.rate_limit_burst", "rate_limit_burst must be greater than 0 when rate limiting is enabled", "")
		}
	}
	if !s.RateLimitEnabled && (s.RateLimitRPS > 0 || s.RateLimitBurst > 0) {
		result.warn("server.rate_limit_enabled", "rate limit values are set but rate limiting is disabled",
			"enable server.rate_limit_enabled to apply rate limits")
	}

	if s.CORSEnabled {
		if len(s.CORSAllowedOrigins) == 0 {
			result.fail("server.cors_allowed_origins", "CORS enabled but no allowed origins configured",
				"set cors_allowed_origins or disable CORS")
		}

		hasWildcard := false
		for _, origin := range s.CORSAllowedOrigins {
			if strings.TrimSpace(origin) == "*" {
				hasWildcard = true
				break
			}
		}
		if hasWildcard && s.CORSAllowCredentials {
			result.fail("server.cors_allowed_origins", "wildcard origin (*) cannot be used with credentials",
				"use specific origins with credentials, or wildcard without credentials")
		}
		if hasWildcard {
			result.warn("server.cors_allowed_origins", "CORS wildcard origin enabled",
				"use specific origins in production")
		}
	}

	if s.ShutdownTimeout < 0 {
		result.fail("server.shutdown_timeout", "shutdown_timeout cannot be negative", "")
	}
}

func validateGlobList(result *ValidationResult, field string, patterns []string) {
	for _, pattern := range patterns {
		if strings.TrimSpace(pattern) == "" {
			result.fail(field, "glob pattern cannot be empty", "")
			continue
		}
		if _, err := path.Match(strings.ToLower(pattern), "probe"); err != nil {
			result.fail(field, fmt.Sprintf("invalid glob pattern %q: %v", pattern, err), "")
		}
	}
}

func (o *ObservabilityConfig) validate(result *ValidationResult) {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[o.Logging.Level] {
		result.fail("observability.logging.level", fmt.Sprintf("invalid log level %q", o.Logging.Level),
			"valid values are: debug, info, warn, error")
	}

	validLogFormats := map[string]bool{"json": true, "text": true}
	if !validLogFormats[o.Logging.Format] {
		result.fail("observability.logging.format", fmt.Sprintf("invalid log format %q", o.Logging.Format),
			"valid values are: json, text")
	}

	if o.TraceSampleRatio < 0 || o.TraceSampleRatio > 1 {
		result.fail("observability.trace_sample_ratio",
			fmt.Sprintf("trace_sample_ratio %v is outside 0.0-1.0", o.TraceSampleRatio), "")
	}

	o.OTLP.validate("observability.otlp", result)
	if o.Traces != nil {
		o.Traces.validate("observability.traces", result)
	}
	if o.Logs != nil {
		o.Logs.validate("observability.logs", result)
	}
}

func (o *OTLPConfig) validate(prefix string, result *ValidationResult) {
	validProtocols := map[string]bool{"": true, "grpc": true, "http/protobuf": true}
	if !validProtocols[o.Protocol] {
		result.fail(prefix+".protocol", fmt.Sprintf("invalid OTLP protocol %q", o.Protocol),
			"valid values are: grpc, http/protobuf")
	}

	if o.Protocol == "http/protobuf" && !validOTLPEndpoint(o.Endpoint) {
		result.fail(prefix+".endpoint", fmt.Sprintf("invalid OTLP endpoint %q for http/protobuf", o.Endpoint),
			"use host:port or a full URL")
	}

	validCompressions := map[string]bool{"": true, "none": true, "gzip": true}
	if !validCompressions[o.Compression] {
		result.fail(prefix+".compression", fmt.Sprintf("invalid OTLP compression %q", o.Compression),
			"valid values are: none, gzip")
	}
}

func validOTLPEndpoint(endpoint string) bool {
	if endpoint == "" {
		return false
	}
	if strings.Contains(endpoint, "://") {
		parsed, err := url.Parse(endpoint)
		if err != nil {
			return false
		}
		return parsed.Host != ""
	}
	_, _, err := net.SplitHostPort(endpoint)
	return err == nil
}

func validHTTPURL(raw string) bool {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}
