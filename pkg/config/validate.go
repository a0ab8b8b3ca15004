package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration. All errors are collected and
// returned together as a ValidationError.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateUpstream(&cfg.Upstream)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validateCache(&cfg.Cache)...)
	errs = append(errs, validateCompletion(&cfg.Completion)...)
	errs = append(errs, validateJobs(&cfg.Jobs)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Auth.AdminPassword == "" {
		errs = append(errs, FieldError{Field: "auth.admin_password", Message: "admin password is required"})
	}
	if cfg.Channel.AckTimeout < 0 {
		errs = append(errs, FieldError{Field: "channel.ack_timeout", Message: "ack timeout must be positive"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout must be positive"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout must be positive"})
	}
	if cfg.MaxHeaderBytes < 0 || cfg.MaxHeaderBytes > 10*1024*1024 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "max header bytes must be between 0 and 10MB"})
	}

	return errs
}

func validateUpstream(cfg *UpstreamConfig) []FieldError {
	var errs []FieldError

	for field, raw := range map[string]string{
		"upstream.base_url":      cfg.BaseURL,
		"upstream.auth_url":      cfg.AuthURL,
		"upstream.websocket_url": cfg.WebsocketURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("invalid URL %q", raw)})
		}
	}

	if cfg.ProxyURL != "" {
		u, err := url.Parse(cfg.ProxyURL)
		if err != nil {
			errs = append(errs, FieldError{Field: "upstream.proxy_url", Message: fmt.Sprintf("invalid URL %q", cfg.ProxyURL)})
		} else {
			switch u.Scheme {
			case "http", "https", "socks5", "socks5h":
			default:
				errs = append(errs, FieldError{
					Field:   "upstream.proxy_url",
					Message: fmt.Sprintf("unsupported proxy scheme %q (use http, https or socks5)", u.Scheme),
				})
			}
		}
	}

	if cfg.RequestTimeout < 0 {
		errs = append(errs, FieldError{Field: "upstream.request_timeout", Message: "request timeout must be positive"})
	}

	return errs
}

func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Driver {
	case "sqlite", "sqlite3":
	default:
		errs = append(errs, FieldError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("unsupported driver %q (use sqlite or sqlite3)", cfg.Driver),
		})
	}
	if cfg.Path == "" {
		errs = append(errs, FieldError{Field: "storage.path", Message: "database path is required"})
	}

	return errs
}

func validateCache(cfg *CacheConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory", "none":
	case "redis":
		if cfg.Redis.Host == "" {
			errs = append(errs, FieldError{Field: "cache.redis.host", Message: "redis host is required for the redis backend"})
		}
		if cfg.Redis.Port <= 0 || cfg.Redis.Port > 65535 {
			errs = append(errs, FieldError{Field: "cache.redis.port", Message: "port must be between 1 and 65535"})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("unsupported backend %q (use memory, redis or none)", cfg.Backend),
		})
	}
	if cfg.TTL < 0 {
		errs = append(errs, FieldError{Field: "cache.ttl", Message: "ttl must be positive"})
	}

	return errs
}

func validateCompletion(cfg *CompletionConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxAttempts < 1 {
		errs = append(errs, FieldError{Field: "completion.max_attempts", Message: "at least one attempt is required"})
	}
	if cfg.ElevatedThreshold < 0 {
		errs = append(errs, FieldError{Field: "completion.elevated_threshold", Message: "threshold must be non-negative"})
	}
	switch cfg.Tokenizer {
	case "tiktoken", "simple":
	default:
		errs = append(errs, FieldError{
			Field:   "completion.tokenizer",
			Message: fmt.Sprintf("unsupported tokenizer %q (use tiktoken or simple)", cfg.Tokenizer),
		})
	}

	return errs
}

func validateJobs(cfg *JobsConfig) []FieldError {
	var errs []FieldError

	if cfg.Disabled {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	for field, spec := range map[string]string{
		"jobs.refresh_schedule": cfg.RefreshSchedule,
		"jobs.reset_schedule":   cfg.ResetSchedule,
		"jobs.cache_schedule":   cfg.CacheSchedule,
		"jobs.models_schedule":  cfg.ModelsSchedule,
	} {
		if _, err := parser.Parse(spec); err != nil {
			errs = append(errs, FieldError{Field: field, Message: fmt.Sprintf("invalid schedule %q: %v", spec, err)})
		}
	}
	if cfg.RefreshWorkers < 1 {
		errs = append(errs, FieldError{Field: "jobs.refresh_workers", Message: "at least one worker is required"})
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	switch strings.ToLower(cfg.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json, text, or console)", cfg.Logging.Format),
		})
	}

	if !cfg.Metrics.Disabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{Field: "telemetry.metrics.path", Message: "metrics path must start with /"})
	}

	return errs
}
