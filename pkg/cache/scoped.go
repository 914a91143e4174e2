package cache

import (
	"context"
	"time"
)

// ScopedCache prefixes every key of an inner cache. A shared Redis instance
// serving several project roots gives each root its own scope:
//
//	c := cache.Scoped(redisCache, "plcbuild:"+cache.Hash([]byte(rootDir))[:12]+":")
type ScopedCache struct {
	inner  Cache
	prefix string
}

// Scoped wraps inner. An empty prefix returns inner unchanged.
func Scoped(inner Cache, prefix string) Cache {
	if prefix == "" {
		return inner
	}
	if s, ok := inner.(*ScopedCache); ok {
		return &ScopedCache{inner: s.inner, prefix: s.prefix + prefix}
	}
	return &ScopedCache{inner: inner, prefix: prefix}
}

// Prefix returns the full key prefix.
func (c *ScopedCache) Prefix() string { return c.prefix }

func (c *ScopedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return c.inner.Get(ctx, c.prefix+key)
}

func (c *ScopedCache) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return c.inner.Set(ctx, c.prefix+key, data, ttl)
}

func (c *ScopedCache) Delete(ctx context.Context, key string) error {
	return c.inner.Delete(ctx, c.prefix+key)
}

// Clear drops only the scope's entries when the inner cache can clear by
// prefix, otherwise the whole inner cache.
func (c *ScopedCache) Clear(ctx context.Context) error {
	if pc, ok := c.inner.(prefixClearer); ok {
		return pc.ClearPrefix(ctx, c.prefix)
	}
	_, err := Clear(ctx, c.inner)
	return err
}

func (c *ScopedCache) Close() error { return c.inner.Close() }

type prefixClearer interface {
	ClearPrefix(ctx context.Context, prefix string) error
}
