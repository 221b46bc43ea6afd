package capability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"loom/internal/logging"
)

const (
	defaultCacheMaxSize = 256
	defaultCacheTTL     = 5 * time.Minute
)

// CacheConfig configures capability result caching.
type CacheConfig struct {
	// MaxSize is the maximum number of entries in the LRU cache.
	MaxSize int
	// TTL is how long a cached result remains valid.
	TTL time.Duration
	// ExcludeCapabilities lists names that must never be cached (anything
	// with side effects).
	ExcludeCapabilities []string
}

// DefaultCacheConfig returns sensible defaults, excluding the built-in
// side-effecting capabilities.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxSize: defaultCacheMaxSize,
		TTL:     defaultCacheTTL,
		ExcludeCapabilities: []string{
			"file_write",
			"think",
		},
	}
}

type cacheEntry struct {
	result   Result
	storedAt time.Time
}

// CachedRegistry wraps a Registry with an LRU+TTL result cache keyed by
// capability name and canonicalized arguments. Only Invoke is memoized;
// registration operations pass through.
type CachedRegistry struct {
	*Registry
	cache   *lru.Cache[string, cacheEntry]
	ttl     time.Duration
	exclude map[string]struct{}
	logger  logging.Logger
}

// NewCachedRegistry wraps registry with result caching.
func NewCachedRegistry(registry *Registry, config CacheConfig, logger logging.Logger) (*CachedRegistry, error) {
	if config.MaxSize <= 0 {
		config.MaxSize = defaultCacheMaxSize
	}
	if config.TTL <= 0 {
		config.TTL = defaultCacheTTL
	}
	cache, err := lru.New[string, cacheEntry](config.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	exclude := make(map[string]struct{}, len(config.ExcludeCapabilities))
	for _, name := range config.ExcludeCapabilities {
		exclude[name] = struct{}{}
	}
	return &CachedRegistry{
		Registry: registry,
		cache:    cache,
		ttl:      config.TTL,
		exclude:  exclude,
		logger:   logging.OrNop(logger),
	}, nil
}

// Invoke serves fresh cached results when possible and delegates otherwise.
// Failed invocations are never cached.
func (c *CachedRegistry) Invoke(ctx context.Context, name string, args map[string]any) (*Result, error) {
	if _, excluded := c.exclude[name]; excluded {
		return c.Registry.Invoke(ctx, name, args)
	}

	key := cacheKey(name, args)
	if entry, ok := c.cache.Get(key); ok {
		if time.Since(entry.storedAt) < c.ttl {
			c.logger.Debug("Cache hit for %q", name)
			result := entry.result
			return &result, nil
		}
		c.cache.Remove(key)
	}

	result, err := c.Registry.Invoke(ctx, name, args)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, cacheEntry{result: *result, storedAt: time.Now()})
	return result, nil
}

// cacheKey renders name plus arguments in a stable order.
func cacheKey(name string, args map[string]any) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	for _, k := range keys {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		if encoded, err := json.Marshal(args[k]); err == nil {
			b.Write(encoded)
		} else {
			fmt.Fprintf(&b, "%v", args[k])
		}
	}
	return b.String()
}
