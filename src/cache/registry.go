package cache

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/OneOfOne/xxhash"
	"github.com/stake-plus/trustink/src/logging"
	"go.uber.org/zap"
)

const (
	keyPrefix     = "trustink:registry:"
	generationKey = keyPrefix + "gen"
)

// Registry caches public registry reads. Entries are keyed under the current
// generation; Invalidate bumps the generation so every older entry becomes
// unreachable at once and ages out by TTL. A nil *Registry is a valid no-op.
type Registry struct {
	store Store
	ttl   time.Duration
	log   *zap.Logger
}

func NewRegistry(store Store, ttl time.Duration, logger *zap.Logger) *Registry {
	return &Registry{store: store, ttl: ttl, log: logging.Component(logger, "cache")}
}

// Key derives the cache key for a query from its parts.
func (r *Registry) Key(ctx context.Context, parts ...string) string {
	gen := r.generation(ctx)
	h := xxhash.ChecksumString64(strings.Join(parts, "\x00"))
	return keyPrefix + gen + ":" + strconv.FormatUint(h, 16)
}

// Load decodes the cached value at key into dst. Misses and decode failures
// report false.
func (r *Registry) Load(ctx context.Context, key string, dst any) bool {
	if r == nil {
		return false
	}
	b, ok, err := r.store.Get(ctx, key)
	if err != nil {
		r.log.Warn("Cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(b, dst); err != nil {
		r.log.Warn("Cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (r *Registry) Save(ctx context.Context, key string, v any) {
	if r == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		r.log.Warn("Cache encode failed", zap.Error(err))
		return
	}
	if err := r.store.Set(ctx, key, b, r.ttl); err != nil {
		r.log.Warn("Cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Invalidate drops every cached registry read.
func (r *Registry) Invalidate(ctx context.Context) {
	if r == nil {
		return
	}
	if _, err := r.store.Incr(ctx, generationKey); err != nil {
		r.log.Warn("Cache invalidation failed", zap.Error(err))
	}
}

func (r *Registry) generation(ctx context.Context) string {
	if r == nil {
		return "0"
	}
	b, ok, err := r.store.Get(ctx, generationKey)
	if err != nil || !ok {
		return "0"
	}
	return string(b)
}
