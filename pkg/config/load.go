package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes structured environment overrides.
const EnvPrefix = "CHATBETTER_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values and validates the result. Environment variables
// are not consulted; use LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides on top. A missing file is tolerated and
// yields the defaults; an empty path skips the file entirely.
//
// The loading sequence is:
// 1. Load YAML from file (if present)
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path != "" {
		loaded, err := LoadConfig(path)
		switch {
		case err == nil:
			cfg = loaded
		case errors.Is(err, fs.ErrNotExist):
			cfg = Default()
		default:
			return nil, err
		}
	} else {
		cfg = Default()
	}

	applyEnvOverrides(cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped. With no arguments it loads ".env".
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat env file %q: %w", f, err)
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load env file %q: %w", f, err)
		}
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	applyLegacyEnv(cfg)

	// Server overrides
	setString(&cfg.Server.ListenAddress, "SERVER_LISTEN_ADDRESS")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.IdleTimeout, "SERVER_IDLE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	setBool(&cfg.Server.CORS.Enabled, "SERVER_CORS_ENABLED")

	setString(&cfg.Auth.AdminPassword, "AUTH_ADMIN_PASSWORD")

	// Upstream overrides
	setString(&cfg.Upstream.BaseURL, "UPSTREAM_BASE_URL")
	setString(&cfg.Upstream.AuthURL, "UPSTREAM_AUTH_URL")
	setString(&cfg.Upstream.WebsocketURL, "UPSTREAM_WEBSOCKET_URL")
	setString(&cfg.Upstream.UserAgent, "UPSTREAM_USER_AGENT")
	setString(&cfg.Upstream.ProxyURL, "UPSTREAM_PROXY_URL")
	setDuration(&cfg.Upstream.RequestTimeout, "UPSTREAM_REQUEST_TIMEOUT")
	setBool(&cfg.Upstream.Breaker.Disabled, "UPSTREAM_BREAKER_DISABLED")

	// Storage overrides
	setString(&cfg.Storage.Driver, "STORAGE_DRIVER")
	setString(&cfg.Storage.Path, "STORAGE_PATH")
	setBool(&cfg.Storage.DisableWAL, "STORAGE_DISABLE_WAL")

	// Cache overrides
	setString(&cfg.Cache.Backend, "CACHE_BACKEND")
	setDuration(&cfg.Cache.TTL, "CACHE_TTL")
	setString(&cfg.Cache.KeyPrefix, "CACHE_KEY_PREFIX")
	setString(&cfg.Cache.Redis.Host, "CACHE_REDIS_HOST")
	setInt(&cfg.Cache.Redis.Port, "CACHE_REDIS_PORT")
	setInt(&cfg.Cache.Redis.DB, "CACHE_REDIS_DB")
	setString(&cfg.Cache.Redis.Password, "CACHE_REDIS_PASSWORD")

	// Channel overrides
	setDuration(&cfg.Channel.AckTimeout, "CHANNEL_ACK_TIMEOUT")
	setDuration(&cfg.Channel.DialTimeout, "CHANNEL_DIAL_TIMEOUT")

	// Completion overrides
	setInt(&cfg.Completion.MaxAttempts, "COMPLETION_MAX_ATTEMPTS")
	setInt(&cfg.Completion.ElevatedThreshold, "COMPLETION_ELEVATED_THRESHOLD")
	setString(&cfg.Completion.DefaultModel, "COMPLETION_DEFAULT_MODEL")
	setString(&cfg.Completion.Tokenizer, "COMPLETION_TOKENIZER")

	// Files and models overrides
	setString(&cfg.Files.Dir, "FILES_DIR")
	setString(&cfg.Files.Domain, "FILES_DOMAIN")
	setString(&cfg.Models.Path, "MODELS_PATH")

	// Jobs overrides
	setBool(&cfg.Jobs.Disabled, "JOBS_DISABLED")
	setString(&cfg.Jobs.RefreshSchedule, "JOBS_REFRESH_SCHEDULE")
	setInt(&cfg.Jobs.RefreshWorkers, "JOBS_REFRESH_WORKERS")
	setString(&cfg.Jobs.ResetSchedule, "JOBS_RESET_SCHEDULE")
	setString(&cfg.Jobs.CacheSchedule, "JOBS_CACHE_SCHEDULE")
	setString(&cfg.Jobs.ModelsSchedule, "JOBS_MODELS_SCHEDULE")

	// Telemetry overrides
	setString(&cfg.Telemetry.Logging.Level, "TELEMETRY_LOGGING_LEVEL")
	setString(&cfg.Telemetry.Logging.Format, "TELEMETRY_LOGGING_FORMAT")
	setBool(&cfg.Telemetry.Metrics.Disabled, "TELEMETRY_METRICS_DISABLED")
}

// applyLegacyEnv maps the flat variables of earlier deployments. Structured
// CHATBETTER_ variables are applied afterwards and win.
func applyLegacyEnv(cfg *Config) {
	if val := os.Getenv("ADMIN_PASSWORD"); val != "" {
		cfg.Auth.AdminPassword = val
	}
	if val := os.Getenv("FILE_DOMAIN"); val != "" {
		cfg.Files.Domain = val
	}
	if val := os.Getenv("PROXY_URL"); val != "" {
		cfg.Upstream.ProxyURL = val
	}
	if val := os.Getenv("REDIS_HOST"); val != "" {
		cfg.Cache.Backend = "redis"
		cfg.Cache.Redis.Host = val
	}
	if val := os.Getenv("REDIS_PORT"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Cache.Redis.Port = i
		}
	}
	if val := os.Getenv("REDIS_DB"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Cache.Redis.DB = i
		}
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		cfg.Cache.Redis.Password = val
	}
	if val := os.Getenv("REDIS_ACCOUNT_CACHE_TTL"); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			cfg.Cache.TTL = time.Duration(i) * time.Second
		}
	}
}

func setString(dst *string, key string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if val := os.Getenv(EnvPrefix + key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
