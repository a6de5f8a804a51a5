package nextid

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robinbryce/redquorum/redisconn"
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

func TestNextOnFreshKeyReturnsOne(t *testing.T) {
	gen := New(Config{Key: "orders", Masters: newMasters(t, 3)})
	v, err := gen.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)
}

func TestNextIsStrictlyIncreasing(t *testing.T) {
	gen := New(Config{Key: "orders", Masters: newMasters(t, 3)})
	ctx := context.Background()

	var prev int64
	for i := 0; i < 10; i++ {
		v, err := gen.Next(ctx)
		require.NoError(t, err)
		assert.Greater(t, v, prev)
		prev = v
	}
}

func TestNextSurfacesQuorumNotAchievedWhenMajorityDown(t *testing.T) {
	masters := newMasters(t, 3)
	// Close two of three masters so only a minority remain reachable.
	require.NoError(t, masters[0].Close())
	require.NoError(t, masters[1].Close())

	gen := New(Config{Key: "orders", Masters: masters, MaxRetries: 0})
	_, err := gen.Next(context.Background())
	assert.Error(t, err)
}
