package redlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinbryce/redquorum/redisconn"
	"github.com/robinbryce/redquorum/rediserr"
)

func newMasters(t *testing.T, n int) []redisconn.Client {
	t.Helper()
	masters := make([]redisconn.Client, n)
	for i := 0; i < n; i++ {
		mr := miniredis.RunT(t)
		masters[i] = redis.NewClient(&redis.Options{Addr: mr.Addr()})
	}
	return masters
}

func TestAcquireSucceedsWithFullQuorum(t *testing.T) {
	masters := newMasters(t, 3)
	lock := New(Config{
		Key:             "job",
		Masters:         masters,
		AutoReleaseTime: time.Second,
	})

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAcquireFailsWhenAlreadyHeldByOther(t *testing.T) {
	masters := newMasters(t, 3)
	for _, m := range masters {
		m.Set(context.Background(), "job", "someone-else", time.Minute)
	}

	lock := New(Config{
		Key:             "job",
		Masters:         masters,
		AutoReleaseTime: time.Second,
		Blocking:        false,
	})

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReleaseThenAcquireByOtherSucceeds(t *testing.T) {
	masters := newMasters(t, 3)
	ctx := context.Background()

	first := New(Config{Key: "job", Masters: masters, AutoReleaseTime: time.Second})
	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, first.Release(ctx))

	second := New(Config{Key: "job", Masters: masters, AutoReleaseTime: time.Second})
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReleaseUnacquiredIsAnError(t *testing.T) {
	masters := newMasters(t, 1)
	lock := New(Config{Key: "job", Masters: masters})
	err := lock.Release(context.Background())
	assert.ErrorIs(t, err, rediserr.ErrReleaseUnlocked)
}

func TestAcquireAlreadyHeldIsAnError(t *testing.T) {
	masters := newMasters(t, 1)
	lock := New(Config{Key: "job", Masters: masters, AutoReleaseTime: time.Second})
	ctx := context.Background()

	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, rediserr.ErrLockAlreadyAcquired)
}

func TestExtendResetsTTLAndIsCapped(t *testing.T) {
	masters := newMasters(t, 3)
	ctx := context.Background()

	lock := New(Config{
		Key:             "job",
		Masters:         masters,
		AutoReleaseTime: time.Second,
		NumExtensions:   1,
	})
	ok, err := lock.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = lock.Extend(ctx)
	assert.NoError(t, err)

	_, err = lock.Extend(ctx)
	assert.ErrorIs(t, err, rediserr.ErrTooManyExtensions)
}

func TestWithLockRunsFnThenReleases(t *testing.T) {
	masters := newMasters(t, 3)
	ctx := context.Background()

	lock := New(Config{Key: "job", Masters: masters, AutoReleaseTime: time.Second})
	ran := false
	err := lock.WithLock(ctx, func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)

	other := New(Config{Key: "job", Masters: masters, AutoReleaseTime: time.Second})
	ok, err := other.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "lock should have been released by WithLock")
}
