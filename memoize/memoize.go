// Package memoize implements the memoization cache (C3): a Redis hash that
// stores fingerprint-to-encoded-result entries for one wrapped function,
// with hit/miss counters co-resident in the hash and an optional TTL that
// is refreshed on every miss.
package memoize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/robinbryce/redquorum/codec"
	"github.com/robinbryce/redquorum/redisconn"
)

const (
	hitsField   = "__hits__"
	missesField = "__misses__"
)

// Args is the canonicalized call signature a cached function is invoked
// with: positional arguments in call order, named arguments sorted by name
// before fingerprinting (order must not affect the fingerprint).
type Args struct {
	Positional []any
	Named      map[string]any
}

// Config configures one cache bound to a single Redis endpoint.
type Config struct {
	Client redisconn.Client
	// Key is the Redis hash name holding every fingerprint->result entry.
	Key string
	// Timeout, if non-zero, is the TTL applied to the whole hash; it is
	// refreshed whenever a miss writes a new entry.
	Timeout time.Duration
}

// Cache wraps a function of type T's return value, keyed by its arguments'
// canonical fingerprint. Go has no dynamic dispatch over arbitrary wrapped
// callables the way the originating design assumed, so Cache is generic
// over the cached result type instead of the function itself; callers
// supply the function to invoke on each Call.
type Cache[T any] struct {
	cfg Config
}

// New builds a Cache bound to cfg.
func New[T any](cfg Config) *Cache[T] {
	return &Cache[T]{cfg: cfg}
}

// Fingerprint canonicalizes args (sorting named arguments by key) and
// returns the SHA-256-truncated-128-bit hex digest used as the hash field.
func Fingerprint(args Args) (string, error) {
	names := make([]string, 0, len(args.Named))
	for name := range args.Named {
		names = append(names, name)
	}
	sort.Strings(names)

	named := make([]any, 0, len(names)*2)
	for _, name := range names {
		named = append(named, name, args.Named[name])
	}

	canonical := []any{args.Positional, named}
	encoded, err := codec.Encode(canonical)
	if err != nil {
		return "", err
	}

	sum := sha256.Sum256([]byte(encoded))
	return hex.EncodeToString(sum[:16]), nil
}

// Fn is the wrapped function a Call invokes on a miss.
type Fn[T any] func(ctx context.Context) (T, error)

// Call computes args' fingerprint, returning the decoded cached value on a
// hit (incrementing the hit counter), or invoking fn on a miss (writing the
// encoded result, incrementing the miss counter, and refreshing the TTL).
func (c *Cache[T]) Call(ctx context.Context, args Args, fn Fn[T]) (T, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "memoize.Call")
	span.SetTag("key", c.cfg.Key)
	defer span.Finish()

	var zero T

	f, err := Fingerprint(args)
	if err != nil {
		span.SetTag("error", true)
		return zero, err
	}

	encoded, err := c.cfg.Client.HGet(ctx, c.cfg.Key, f).Result()
	switch {
	case err == nil:
		var value T
		if err := codec.Decode(encoded, &value); err != nil {
			span.SetTag("error", true)
			return zero, err
		}
		c.cfg.Client.HIncrBy(ctx, c.cfg.Key, hitsField, 1)
		span.SetTag("hit", true)
		return value, nil
	case errors.Is(err, redis.Nil):
		// field absent: a genuine miss, fall through to fn.
	default:
		span.SetTag("error", true)
		return zero, err
	}

	value, err := fn(ctx)
	if err != nil {
		span.SetTag("error", true)
		return zero, err
	}
	if err := c.writeEntry(ctx, f, value); err != nil {
		span.SetTag("error", true)
		return zero, err
	}
	c.cfg.Client.HIncrBy(ctx, c.cfg.Key, missesField, 1)
	if c.cfg.Timeout > 0 {
		c.cfg.Client.Expire(ctx, c.cfg.Key, c.cfg.Timeout)
	}
	return value, nil
}

// Bypass always invokes fn and writes its result, without touching the
// hit/miss counters.
func (c *Cache[T]) Bypass(ctx context.Context, args Args, fn Fn[T]) (T, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "memoize.Bypass")
	span.SetTag("key", c.cfg.Key)
	defer span.Finish()

	var zero T

	f, err := Fingerprint(args)
	if err != nil {
		span.SetTag("error", true)
		return zero, err
	}
	value, err := fn(ctx)
	if err != nil {
		span.SetTag("error", true)
		return zero, err
	}
	if err := c.writeEntry(ctx, f, value); err != nil {
		span.SetTag("error", true)
		return zero, err
	}
	return value, nil
}

func (c *Cache[T]) writeEntry(ctx context.Context, fingerprint string, value any) error {
	encoded, err := codec.Encode(value)
	if err != nil {
		return err
	}
	return c.cfg.Client.HSet(ctx, c.cfg.Key, fingerprint, encoded).Err()
}

// Info holds the current state of the cache.
type Info struct {
	Hits   int64
	Misses int64
	Size   int64
}

// Info reports hit/miss counters and the cache's size, excluding the two
// counter fields from the reported cardinality.
func (c *Cache[T]) Info(ctx context.Context) (Info, error) {
	hits, err := c.intField(ctx, hitsField)
	if err != nil {
		return Info{}, err
	}
	misses, err := c.intField(ctx, missesField)
	if err != nil {
		return Info{}, err
	}

	length, err := c.cfg.Client.HLen(ctx, c.cfg.Key).Result()
	if err != nil {
		return Info{}, err
	}

	size := length
	if c.cfg.Client.HExists(ctx, c.cfg.Key, hitsField).Val() {
		size--
	}
	if c.cfg.Client.HExists(ctx, c.cfg.Key, missesField).Val() {
		size--
	}
	if size < 0 {
		size = 0
	}

	return Info{Hits: hits, Misses: misses, Size: size}, nil
}

// intField reads field as an int64, treating "field absent" as zero: the
// counters do not exist until the first hit or miss is recorded.
func (c *Cache[T]) intField(ctx context.Context, field string) (int64, error) {
	val, err := c.cfg.Client.HGet(ctx, c.cfg.Key, field).Int64()
	if err != nil {
		return 0, nil
	}
	return val, nil
}

// Clear deletes the hash in its entirety, counters included.
func (c *Cache[T]) Clear(ctx context.Context) error {
	return c.cfg.Client.Del(ctx, c.cfg.Key).Err()
}
