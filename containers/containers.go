// Package containers declares the collaborator contracts the
// out-of-scope higher-level container façades (RedisDict, RedisSet,
// RedisList, RedisDeque, RedisCounter, CachedOrderedDict, and the timer
// utility) are expected to satisfy. No package in this module implements
// them; they exist so a caller's own implementation can be type-checked
// against what the core primitives assume of a collection or cache.
package containers

import "context"

// Collection is the minimal shape a Redis-backed collection façade
// exposes: membership, size, and clearing. RedisDict/RedisSet/RedisList/
// RedisDeque/RedisCounter would each implement this alongside their own
// type-specific operations.
type Collection interface {
	Len(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	Key() string
}

// Cache is the minimal shape a higher-level caching façade (such as
// CachedOrderedDict) exposes on top of the memoization primitive: reading
// through to an underlying source on miss, and explicit invalidation.
type Cache interface {
	Get(ctx context.Context, key string) (value any, hit bool, err error)
	Invalidate(ctx context.Context, key string) error
	Len(ctx context.Context) (int64, error)
}
