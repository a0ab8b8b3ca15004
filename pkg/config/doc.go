// Package config provides configuration management for chatbetter2api.
//
// Configuration is read from an optional YAML file, completed with defaults,
// overridden from the environment and validated before use.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("config.yaml")
//	cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// A missing file is not an error for LoadConfigWithEnvOverrides: the
// service can run purely from defaults and environment variables, which is
// how most container deployments configure it.
//
// # Environment Variable Overrides
//
// Structured overrides follow CHATBETTER_SECTION_FIELD, for example
// CHATBETTER_SERVER_LISTEN_ADDRESS or CHATBETTER_CACHE_BACKEND. The flat
// variables understood by earlier deployments are honored as well:
//
//   - ADMIN_PASSWORD
//   - FILE_DOMAIN
//   - PROXY_URL
//   - REDIS_HOST, REDIS_PORT, REDIS_DB, REDIS_PASSWORD
//   - REDIS_ACCOUNT_CACHE_TTL (seconds)
//
// Setting REDIS_HOST switches the cache backend to redis. A .env file in the
// working directory is loaded first by LoadDotEnv.
//
// # Configuration Precedence
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Singleton Pattern
//
//	if err := config.Initialize("config.yaml"); err != nil {
//	    log.Fatal(err)
//	}
//	cfg := config.GetConfig()
//
// For testing, prefer explicit Config instances.
//
// # Example Configuration
//
//	server:
//	  listen_address: "0.0.0.0:8055"
//
//	auth:
//	  admin_password: "${ADMIN_PASSWORD}"
//
//	storage:
//	  driver: "sqlite"
//	  path: "data/chatbetter2api.db"
//
//	cache:
//	  backend: "redis"
//	  ttl: "30s"
//	  redis:
//	    host: "localhost"
//	    port: 6379
//
//	jobs:
//	  refresh_schedule: "@every 10m"
//	  reset_schedule: "0 0 * * *"
package config
