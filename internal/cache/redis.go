package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/0x-b4r47h/project-guardian/internal/pii"
)

// VerdictCache is a Redis-backed cache of analysis verdicts keyed by the
// canonical record payload. Identical payloads skip re-analysis.
type VerdictCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	hits   int64
	misses int64
}

// NewVerdictCache creates a new Redis-based verdict cache.
func NewVerdictCache(config *Config, logger *zap.Logger) (*VerdictCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	cache := &VerdictCache{
		client: redis.NewClient(opts),
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := cache.ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Verdict cache initialized",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Int("max_connections", config.MaxConnections),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

func (vc *VerdictCache) ping(ctx context.Context) error {
	_, err := vc.client.Ping(ctx).Result()
	return err
}

// Lookup returns the cached verdict for a record payload, if present.
func (vc *VerdictCache) Lookup(ctx context.Context, rec pii.Record) (*LookupResult, error) {
	key, err := vc.recordKey(rec)
	if err != nil {
		return &LookupResult{}, err
	}

	data, err := vc.client.Get(ctx, key).Result()
	if err == redis.Nil {
		atomic.AddInt64(&vc.misses, 1)
		vc.logger.Debug("Cache miss", zap.String("key", key))
		return &LookupResult{}, nil
	} else if err != nil {
		vc.logger.Error("Cache lookup failed", zap.Error(err))
		return &LookupResult{}, nil
	}

	var cached CachedVerdict
	if err := json.Unmarshal([]byte(data), &cached); err != nil {
		vc.logger.Error("Failed to unmarshal cached verdict", zap.Error(err))
		// Delete corrupted cache entry
		vc.client.Del(ctx, key)
		return &LookupResult{}, nil
	}

	atomic.AddInt64(&vc.hits, 1)
	vc.logger.Debug("Cache hit", zap.String("key", key), zap.Bool("is_pii", cached.Verdict.HasPII))

	return &LookupResult{Verdict: &cached.Verdict, CacheHit: true}, nil
}

// Store caches the verdict for a record payload.
func (vc *VerdictCache) Store(ctx context.Context, rec pii.Record, verdict pii.Verdict) error {
	key, err := vc.recordKey(rec)
	if err != nil {
		return err
	}

	cached := CachedVerdict{
		Verdict:  verdict,
		CachedAt: time.Now(),
		TTL:      int64(vc.config.DefaultTTL.Seconds()),
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to marshal verdict for caching: %w", err)
	}

	if err := vc.client.Set(ctx, key, data, vc.config.DefaultTTL).Err(); err != nil {
		vc.logger.Error("Failed to cache verdict", zap.Error(err))
		return fmt.Errorf("failed to cache verdict: %w", err)
	}

	vc.logger.Debug("Verdict cached", zap.String("key", key), zap.Bool("is_pii", verdict.HasPII))
	return nil
}

// StoreBatch caches multiple verdicts using a Redis pipeline.
func (vc *VerdictCache) StoreBatch(ctx context.Context, records []pii.Record, verdicts []pii.Verdict) error {
	if len(records) != len(verdicts) {
		return fmt.Errorf("records and verdicts length mismatch")
	}
	if len(records) == 0 {
		return nil
	}

	pipe := vc.client.Pipeline()

	for i, rec := range records {
		key, err := vc.recordKey(rec)
		if err != nil {
			vc.logger.Error("Failed to derive cache key", zap.Error(err))
			continue
		}

		cached := CachedVerdict{
			Verdict:  verdicts[i],
			CachedAt: time.Now(),
			TTL:      int64(vc.config.DefaultTTL.Seconds()),
		}
		data, err := json.Marshal(cached)
		if err != nil {
			vc.logger.Error("Failed to marshal verdict for batch caching", zap.Error(err))
			continue
		}

		pipe.Set(ctx, key, data, vc.config.DefaultTTL)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		vc.logger.Error("Batch cache operation failed", zap.Error(err))
		return fmt.Errorf("batch cache operation failed: %w", err)
	}

	vc.logger.Debug("Batch cache operation completed", zap.Int("cached_verdicts", len(records)))
	return nil
}

// GetStats returns cache performance statistics.
func (vc *VerdictCache) GetStats(ctx context.Context) (*Stats, error) {
	info, err := vc.client.Info(ctx, "memory", "stats").Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get Redis info: %w", err)
	}

	stats := &Stats{
		Hits:   atomic.LoadInt64(&vc.hits),
		Misses: atomic.LoadInt64(&vc.misses),
	}

	total := stats.Hits + stats.Misses
	if total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}

	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "used_memory:") {
			if mem, err := strconv.ParseInt(strings.TrimPrefix(line, "used_memory:"), 10, 64); err == nil {
				stats.MemoryUsage = mem
			}
		}
	}

	if keys, err := vc.client.DBSize(ctx).Result(); err == nil {
		stats.TotalKeys = keys
	}

	return stats, nil
}

// Clear removes all cached verdicts under this cache's prefix.
func (vc *VerdictCache) Clear(ctx context.Context) error {
	pattern := vc.config.KeyPrefix + ":*"

	iter := vc.client.Scan(ctx, 0, pattern, 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan cache keys: %w", err)
	}

	if len(keys) == 0 {
		return nil
	}

	batchSize := 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := vc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			vc.logger.Error("Failed to delete cache keys", zap.Error(err))
			return fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	vc.logger.Info("Cache cleared", zap.Int("deleted_keys", len(keys)))
	return nil
}

// Close closes the Redis connection.
func (vc *VerdictCache) Close() error {
	if vc.client != nil {
		return vc.client.Close()
	}
	return nil
}

// recordKey derives a stable cache key from the canonical record JSON.
func (vc *VerdictCache) recordKey(rec pii.Record) (string, error) {
	canonical, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize record: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%s:rec:%s", vc.config.KeyPrefix, hex.EncodeToString(sum[:])[:16]), nil
}

// maskRedisURL masks credentials in a Redis URL for logging.
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
