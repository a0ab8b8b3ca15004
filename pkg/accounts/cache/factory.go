package cache

import (
	"fmt"

	"github.com/hzcy/chatbetter2api/pkg/config"
)

// FromConfig builds the mirror selected by cfg.Backend. The "none" backend
// returns a nil Mirror; callers then go straight to the persistent store.
func FromConfig(cfg config.CacheConfig) (Mirror, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryMirror(), nil
	case "redis":
		return NewRedisMirror(RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			DB:       cfg.Redis.DB,
			Password: cfg.Redis.Password,
		}), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported cache backend %q", cfg.Backend)
	}
}
