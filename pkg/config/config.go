package config

import "time"

// Config is the root configuration structure for chatbetter2api.
type Config struct {
	// Server contains the client-facing HTTP server configuration.
	Server ServerConfig `yaml:"server"`

	// Auth contains the credentials clients and operators present.
	Auth AuthConfig `yaml:"auth"`

	// Upstream describes the ChatBetter endpoints and outbound HTTP behavior.
	Upstream UpstreamConfig `yaml:"upstream"`

	// Storage configures the persistent account store.
	Storage StorageConfig `yaml:"storage"`

	// Cache configures the account cache mirror.
	Cache CacheConfig `yaml:"cache"`

	// Channel configures the upstream real-time channels.
	Channel ChannelConfig `yaml:"channel"`

	// Completion configures the completion orchestrator.
	Completion CompletionConfig `yaml:"completion"`

	// Files configures local storage of images produced upstream.
	Files FilesConfig `yaml:"files"`

	// Models configures the cached upstream model catalog.
	Models ModelsConfig `yaml:"models"`

	// Jobs configures the background schedules.
	Jobs JobsConfig `yaml:"jobs"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "0.0.0.0:8055"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout bounds a whole response, including streamed ones, so it
	// must be longer than the slowest expected completion.
	// Default: 10m
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for in-flight requests.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes limits request header size.
	// Default: 1048576 (1MB)
	MaxHeaderBytes int `yaml:"max_header_bytes"`

	// CORS contains Cross-Origin Resource Sharing configuration.
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	// Enabled controls whether CORS headers are emitted.
	Enabled bool `yaml:"enabled"`

	// AllowedOrigins lists allowed origins. ["*"] allows every origin.
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AllowedMethods lists allowed methods.
	AllowedMethods []string `yaml:"allowed_methods"`

	// AllowedHeaders lists allowed request headers.
	AllowedHeaders []string `yaml:"allowed_headers"`

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `yaml:"max_age"`
}

// AuthConfig contains client authentication configuration.
type AuthConfig struct {
	// AdminPassword is the bearer secret required on every API route.
	// Default: "123456"
	AdminPassword string `yaml:"admin_password"`
}

// UpstreamConfig describes the ChatBetter service.
type UpstreamConfig struct {
	// BaseURL is the application origin.
	// Default: "https://app.chatbetter.com"
	BaseURL string `yaml:"base_url"`

	// AuthURL is the identity provider origin used for silent refresh.
	// Default: "https://auth.chatbetter.com"
	AuthURL string `yaml:"auth_url"`

	// WebsocketURL is the real-time endpoint.
	// Default: "wss://app.chatbetter.com/ws/socket.io/?EIO=4&transport=websocket"
	WebsocketURL string `yaml:"websocket_url"`

	// UserAgent is sent on every upstream request.
	UserAgent string `yaml:"user_agent"`

	// ProxyURL routes upstream traffic through an http, https or socks5 proxy.
	ProxyURL string `yaml:"proxy_url"`

	// RequestTimeout caps chat creation and submission calls.
	// Default: 60s
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Breaker configures circuit breaking on upstream HTTP calls.
	Breaker BreakerConfig `yaml:"breaker"`
}

// BreakerConfig configures the upstream circuit breakers.
type BreakerConfig struct {
	// Disabled turns circuit breaking off.
	Disabled bool `yaml:"disabled"`

	// FailureThreshold is the number of consecutive failures that opens a breaker.
	// Default: 20
	FailureThreshold uint32 `yaml:"failure_threshold"`

	// OpenTimeout is how long an open breaker rejects calls.
	// Default: 30s
	OpenTimeout time.Duration `yaml:"open_timeout"`

	// HalfOpenRequests is the number of trial calls allowed when half-open.
	// Default: 1
	HalfOpenRequests uint32 `yaml:"half_open_requests"`
}

// StorageConfig configures the SQLite account store.
type StorageConfig struct {
	// Driver selects the database/sql driver: "sqlite" (pure Go) or
	// "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// Path is the database file. ":memory:" keeps everything in process.
	// Default: "data/chatbetter2api.db"
	Path string `yaml:"path"`

	// BusyTimeout is the SQLite busy timeout.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// DisableWAL turns write-ahead logging off.
	DisableWAL bool `yaml:"disable_wal"`
}

// CacheConfig configures the account cache mirror.
type CacheConfig struct {
	// Backend is "memory", "redis" or "none".
	// Default: "memory"
	Backend string `yaml:"backend"`

	// TTL is the lifetime of a cached account entry.
	// Default: 30s
	TTL time.Duration `yaml:"ttl"`

	// KeyPrefix namespaces every cache key.
	// Default: "chatbetter2api:"
	KeyPrefix string `yaml:"key_prefix"`

	// Redis contains connection settings for the redis backend.
	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"password"`
}

// ChannelConfig configures upstream real-time channels.
type ChannelConfig struct {
	// AckTimeout bounds the wait for the authentication acknowledgement.
	// Default: 5s
	AckTimeout time.Duration `yaml:"ack_timeout"`

	// DialTimeout bounds the websocket handshake.
	// Default: 60s
	DialTimeout time.Duration `yaml:"dial_timeout"`

	// WriteTimeout bounds a single frame write.
	// Default: 10s
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// CompletionConfig configures the completion orchestrator.
type CompletionConfig struct {
	// MaxAttempts bounds conversation establishment attempts.
	// Default: 5
	MaxAttempts int `yaml:"max_attempts"`

	// ElevatedThreshold is the estimated prompt size above which an
	// elevated account is requested.
	// Default: 8192
	ElevatedThreshold int `yaml:"elevated_threshold"`

	// DefaultModel is used when a request omits the model.
	// Default: "gpt-5"
	DefaultModel string `yaml:"default_model"`

	// IdleTimeout fails a delivery when no fragment arrives for this long.
	// Default: 5m
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// Tokenizer selects the size estimator: "tiktoken" or "simple".
	// Default: "tiktoken"
	Tokenizer string `yaml:"tokenizer"`
}

// FilesConfig configures localized image storage.
type FilesConfig struct {
	// Dir is where downloaded files are stored and served from.
	// Default: "static/files"
	Dir string `yaml:"dir"`

	// Domain is the public origin used in rewritten links.
	// Default: "https://127.0.0.1:8055"
	Domain string `yaml:"domain"`

	// DownloadTimeout bounds a single file download.
	// Default: 30s
	DownloadTimeout time.Duration `yaml:"download_timeout"`
}

// ModelsConfig configures the model catalog.
type ModelsConfig struct {
	// Path is the models.json location.
	// Default: "data/models.json"
	Path string `yaml:"path"`

	// DisableWatch stops the catalog from reloading on file changes.
	DisableWatch bool `yaml:"disable_watch"`
}

// JobsConfig configures the background schedules. Schedules use cron
// syntax, including the @every descriptor.
type JobsConfig struct {
	// Disabled turns every background job off.
	Disabled bool `yaml:"disabled"`

	// RefreshSchedule drives the bulk credential refresh.
	// Default: "@every 10m"
	RefreshSchedule string `yaml:"refresh_schedule"`

	// RefreshWorkers bounds concurrent refreshes.
	// Default: 20
	RefreshWorkers int `yaml:"refresh_workers"`

	// ResetSchedule drives the daily usage counter reset.
	// Default: "0 0 * * *"
	ResetSchedule string `yaml:"reset_schedule"`

	// CacheSchedule drives the cache mirror refresh.
	// Default: "@every 60s"
	CacheSchedule string `yaml:"cache_schedule"`

	// ModelsSchedule drives the model catalog refresh.
	// Default: "@every 6h"
	ModelsSchedule string `yaml:"models_schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	// Default: "info"
	Level string `yaml:"level"`

	// Format is one of json, text, console.
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in records.
	AddSource bool `yaml:"add_source"`

	// DisableRedaction stops masking of tokens and cookies in log attributes.
	DisableRedaction bool `yaml:"disable_redaction"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Disabled turns metric recording and the endpoint off.
	Disabled bool `yaml:"disabled"`

	// Path is the scrape endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace prefixes every metric.
	// Default: "chatbetter2api"
	Namespace string `yaml:"namespace"`

	// Subsystem is the second metric name component.
	// Default: "proxy"
	Subsystem string `yaml:"subsystem"`
}
