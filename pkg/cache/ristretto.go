package cache

import (
	"errors"
	"strconv"
	"time"

	"github.com/dgraph-io/ristretto"
	"go.uber.org/zap"
)

// RistrettoCache is a Cache backed by Ristretto. Every entry costs 1, so MaxCost
// is the item capacity.
type RistrettoCache struct {
	name   string
	cache  *ristretto.Cache
	logger *zap.Logger
}

// RistrettoConfig holds configuration for a Ristretto cache.
type RistrettoConfig struct {
	// Name labels the cache's metrics.
	Name        string
	NumCounters int64 // ~10x the expected item count
	MaxCost     int64
	BufferItems int64
	Logger      *zap.Logger
}

// NewRistrettoCache creates a new Ristretto-backed cache.
func NewRistrettoCache(cfg *RistrettoConfig) (*RistrettoCache, error) {
	if cfg.Name == "" {
		return nil, errors.New("cache name cannot be empty")
	}
	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	bufferItems := cfg.BufferItems
	if bufferItems <= 0 {
		bufferItems = 64
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: bufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &RistrettoCache{
		name:   cfg.Name,
		cache:  c,
		logger: cfg.Logger.With(zap.String("cache", cfg.Name)),
	}, nil
}

// Get implements Cache.
func (r *RistrettoCache) Get(key string) (any, bool) {
	value, found := r.cache.Get(key)
	if found {
		CacheHitsTotal.WithLabelValues(r.name).Inc()
	} else {
		CacheMissesTotal.WithLabelValues(r.name).Inc()
	}
	return value, found
}

// Set implements Cache. Admission is asynchronous; call Wait to observe it.
func (r *RistrettoCache) Set(key string, value any, ttl time.Duration) bool {
	admitted := r.cache.SetWithTTL(key, value, 1, ttl)
	CacheSetsTotal.WithLabelValues(r.name, strconv.FormatBool(admitted)).Inc()
	if !admitted {
		r.logger.Debug("cache-set-dropped", zap.String("key", key))
	}
	return admitted
}

// Delete implements Cache.
func (r *RistrettoCache) Delete(key string) {
	r.cache.Del(key)
	CacheDeletesTotal.WithLabelValues(r.name).Inc()
}

// Clear implements Cache.
func (r *RistrettoCache) Clear() {
	r.cache.Clear()
	r.logger.Info("cache-cleared")
}

// Close implements Cache.
func (r *RistrettoCache) Close() {
	r.cache.Close()
}

// Wait blocks until pending writes are applied.
func (r *RistrettoCache) Wait() {
	r.cache.Wait()
}
