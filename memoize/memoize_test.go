package memoize

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestCallMissesThenHits(t *testing.T) {
	client := newClient(t)
	cache := New[int](Config{Client: client, Key: "squares"})
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) (int, error) {
		calls++
		return 49, nil
	}

	v, err := cache.Call(ctx, Args{Positional: []any{7}}, compute)
	require.NoError(t, err)
	assert.Equal(t, 49, v)
	assert.Equal(t, 1, calls)

	v, err = cache.Call(ctx, Args{Positional: []any{7}}, compute)
	require.NoError(t, err)
	assert.Equal(t, 49, v)
	assert.Equal(t, 1, calls, "second call should be served from cache")

	info, err := cache.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), info.Hits)
	assert.Equal(t, int64(1), info.Misses)
	assert.Equal(t, int64(1), info.Size)
}

func TestNamedArgOrderDoesNotAffectFingerprint(t *testing.T) {
	f1, err := Fingerprint(Args{Named: map[string]any{"a": 1, "b": 2}})
	require.NoError(t, err)
	f2, err := Fingerprint(Args{Named: map[string]any{"b": 2, "a": 1}})
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
}

func TestBypassSkipsCounters(t *testing.T) {
	client := newClient(t)
	cache := New[string](Config{Client: client, Key: "greeting"})
	ctx := context.Background()

	v, err := cache.Bypass(ctx, Args{Positional: []any{"x"}}, func(ctx context.Context) (string, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", v)

	info, err := cache.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Hits)
	assert.Equal(t, int64(0), info.Misses)
	assert.Equal(t, int64(1), info.Size)
}

func TestCallSurfacesTransportErrorsInsteadOfTreatingThemAsMisses(t *testing.T) {
	client := newClient(t)
	require.NoError(t, client.Close())

	cache := New[int](Config{Client: client, Key: "squares"})
	ctx := context.Background()

	calls := 0
	_, err := cache.Call(ctx, Args{Positional: []any{7}}, func(ctx context.Context) (int, error) {
		calls++
		return 49, nil
	})
	assert.Error(t, err)
	assert.Equal(t, 0, calls, "fn must not run when the read path failed for a reason other than a miss")
}

func TestClearRemovesEntriesAndCounters(t *testing.T) {
	client := newClient(t)
	cache := New[int](Config{Client: client, Key: "squares"})
	ctx := context.Background()

	_, err := cache.Call(ctx, Args{Positional: []any{3}}, func(ctx context.Context) (int, error) {
		return 9, nil
	})
	require.NoError(t, err)

	require.NoError(t, cache.Clear(ctx))

	info, err := cache.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Hits)
	assert.Equal(t, int64(0), info.Misses)
	assert.Equal(t, int64(0), info.Size)
}
