package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "0.0.0.0:8055"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 10 * time.Minute
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB
	DefaultCORSMaxAge      = 3600

	// Auth defaults
	DefaultAdminPassword = "123456"

	// Upstream defaults
	DefaultUpstreamBaseURL      = "https://app.chatbetter.com"
	DefaultUpstreamAuthURL      = "https://auth.chatbetter.com"
	DefaultUpstreamWebsocketURL = "wss://app.chatbetter.com/ws/socket.io/?EIO=4&transport=websocket"
	DefaultUpstreamUserAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/139.0.0.0 Safari/537.36"
	DefaultUpstreamTimeout      = 60 * time.Second
	DefaultBreakerFailures      = uint32(20)
	DefaultBreakerOpenTimeout   = 30 * time.Second
	DefaultBreakerHalfOpen      = uint32(1)

	// Storage defaults
	DefaultStorageDriver      = "sqlite"
	DefaultStoragePath        = "data/chatbetter2api.db"
	DefaultStorageBusyTimeout = 5 * time.Second

	// Cache defaults
	DefaultCacheBackend   = "memory"
	DefaultCacheTTL       = 30 * time.Second
	DefaultCacheKeyPrefix = "chatbetter2api:"
	DefaultRedisPort      = 6379

	// Channel defaults
	DefaultAckTimeout          = 5 * time.Second
	DefaultDialTimeout         = 60 * time.Second
	DefaultChannelWriteTimeout = 10 * time.Second

	// Completion defaults
	DefaultMaxAttempts       = 5
	DefaultElevatedThreshold = 8192
	DefaultModel             = "gpt-5"
	DefaultCompletionIdle    = 5 * time.Minute
	DefaultTokenizer         = "tiktoken"

	// Files defaults
	DefaultFilesDir        = "static/files"
	DefaultFilesDomain     = "https://127.0.0.1:8055"
	DefaultFilesDownloadTO = 30 * time.Second

	// Models defaults
	DefaultModelsPath = "data/models.json"

	// Jobs defaults
	DefaultRefreshSchedule = "@every 10m"
	DefaultRefreshWorkers  = 20
	DefaultResetSchedule   = "0 0 * * *"
	DefaultCacheSchedule   = "@every 60s"
	DefaultModelsSchedule  = "@every 6h"

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "chatbetter2api"
	DefaultMetricsSubsystem = "proxy"
)

// ApplyDefaults fills zero-valued fields with their defaults.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	applyServerDefaults(&cfg.Server)

	if cfg.Auth.AdminPassword == "" {
		cfg.Auth.AdminPassword = DefaultAdminPassword
	}

	applyUpstreamDefaults(&cfg.Upstream)

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DefaultStorageDriver
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.BusyTimeout == 0 {
		cfg.Storage.BusyTimeout = DefaultStorageBusyTimeout
	}

	if cfg.Cache.Backend == "" {
		cfg.Cache.Backend = DefaultCacheBackend
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = DefaultCacheKeyPrefix
	}
	if cfg.Cache.Redis.Port == 0 {
		cfg.Cache.Redis.Port = DefaultRedisPort
	}

	if cfg.Channel.AckTimeout == 0 {
		cfg.Channel.AckTimeout = DefaultAckTimeout
	}
	if cfg.Channel.DialTimeout == 0 {
		cfg.Channel.DialTimeout = DefaultDialTimeout
	}
	if cfg.Channel.WriteTimeout == 0 {
		cfg.Channel.WriteTimeout = DefaultChannelWriteTimeout
	}

	if cfg.Completion.MaxAttempts == 0 {
		cfg.Completion.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.Completion.ElevatedThreshold == 0 {
		cfg.Completion.ElevatedThreshold = DefaultElevatedThreshold
	}
	if cfg.Completion.DefaultModel == "" {
		cfg.Completion.DefaultModel = DefaultModel
	}
	if cfg.Completion.IdleTimeout == 0 {
		cfg.Completion.IdleTimeout = DefaultCompletionIdle
	}
	if cfg.Completion.Tokenizer == "" {
		cfg.Completion.Tokenizer = DefaultTokenizer
	}

	if cfg.Files.Dir == "" {
		cfg.Files.Dir = DefaultFilesDir
	}
	if cfg.Files.Domain == "" {
		cfg.Files.Domain = DefaultFilesDomain
	}
	if cfg.Files.DownloadTimeout == 0 {
		cfg.Files.DownloadTimeout = DefaultFilesDownloadTO
	}

	if cfg.Models.Path == "" {
		cfg.Models.Path = DefaultModelsPath
	}

	applyJobsDefaults(&cfg.Jobs)

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
}

func applyServerDefaults(s *ServerConfig) {
	if s.ListenAddress == "" {
		s.ListenAddress = DefaultListenAddress
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = DefaultReadTimeout
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = DefaultWriteTimeout
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = DefaultIdleTimeout
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}
	if s.MaxHeaderBytes == 0 {
		s.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// CORS defaults only matter once CORS is switched on
	if s.CORS.Enabled {
		if len(s.CORS.AllowedOrigins) == 0 {
			s.CORS.AllowedOrigins = []string{"*"}
		}
		if len(s.CORS.AllowedMethods) == 0 {
			s.CORS.AllowedMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
		}
		if len(s.CORS.AllowedHeaders) == 0 {
			s.CORS.AllowedHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
		}
		if s.CORS.MaxAge == 0 {
			s.CORS.MaxAge = DefaultCORSMaxAge
		}
	}
}

func applyUpstreamDefaults(u *UpstreamConfig) {
	if u.BaseURL == "" {
		u.BaseURL = DefaultUpstreamBaseURL
	}
	if u.AuthURL == "" {
		u.AuthURL = DefaultUpstreamAuthURL
	}
	if u.WebsocketURL == "" {
		u.WebsocketURL = DefaultUpstreamWebsocketURL
	}
	if u.UserAgent == "" {
		u.UserAgent = DefaultUpstreamUserAgent
	}
	if u.RequestTimeout == 0 {
		u.RequestTimeout = DefaultUpstreamTimeout
	}
	if u.Breaker.FailureThreshold == 0 {
		u.Breaker.FailureThreshold = DefaultBreakerFailures
	}
	if u.Breaker.OpenTimeout == 0 {
		u.Breaker.OpenTimeout = DefaultBreakerOpenTimeout
	}
	if u.Breaker.HalfOpenRequests == 0 {
		u.Breaker.HalfOpenRequests = DefaultBreakerHalfOpen
	}
}

func applyJobsDefaults(j *JobsConfig) {
	if j.RefreshSchedule == "" {
		j.RefreshSchedule = DefaultRefreshSchedule
	}
	if j.RefreshWorkers == 0 {
		j.RefreshWorkers = DefaultRefreshWorkers
	}
	if j.ResetSchedule == "" {
		j.ResetSchedule = DefaultResetSchedule
	}
	if j.CacheSchedule == "" {
		j.CacheSchedule = DefaultCacheSchedule
	}
	if j.ModelsSchedule == "" {
		j.ModelsSchedule = DefaultModelsSchedule
	}
}

// Default returns a configuration populated only with defaults.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
