package domain

import (
	"context"
	"time"
)

// Cache defines the interface for caching operations. Used for the latest
// valid prediction per instruction (soft TTL), market snapshots, and alert
// deduplication counters. Supports two-phase caching: local LRU + Redis.
type Cache interface {
	// Get retrieves a value from cache.
	// Returns nil, nil if key not found.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with expiration.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from cache.
	Delete(ctx context.Context, key string) error

	// IncrementCounter atomically increments a counter and returns new value.
	// Used for alert deduplication within a time window.
	IncrementCounter(ctx context.Context, key string, window time.Duration) (int64, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// CacheConfig holds configuration for cache initialization.
type CacheConfig struct {
	// Type is the cache type: "memory" or "redis"
	Type string

	// Local LRU cache settings
	LocalMaxSize int
	LocalTTL     time.Duration

	// Redis settings
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	EnableTwoPhase bool
}

// Cache key prefixes.
const (
	CacheKeyLatestPrediction = "prediction:latest:" // + instruction id
	CacheKeyMarketConditions = "market:conditions"
	CacheKeyAlertDedup       = "alert:dedup:" // + milestone id + severity
)
