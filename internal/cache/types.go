package cache

import (
	"time"

	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

// CachedVerdict is a stored analysis result for one record payload.
type CachedVerdict struct {
	Verdict  pii.Verdict `json:"verdict"`
	CachedAt time.Time   `json:"cached_at"`
	TTL      int64       `json:"ttl"`
}

// LookupResult represents a cache lookup result.
type LookupResult struct {
	Verdict  *pii.Verdict `json:"verdict"`
	CacheHit bool         `json:"cache_hit"`
}

// Stats represents cache performance statistics.
type Stats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}

// Config contains cache configuration.
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}
