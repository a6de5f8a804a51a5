// Package bloom implements the Bloom filter (C4): a fixed-size Redis
// bitfield sized from a target population and false-positive rate, using a
// single strong hash split into two halves to derive k bit positions per
// element via enhanced double hashing.
package bloom

import (
	"context"
	"math"

	"github.com/cespare/xxhash/v2"
	"github.com/go-redis/redis/v8"

	"github.com/robinbryce/redquorum/codec"
	"github.com/robinbryce/redquorum/redisconn"
)

// Size computes the bit-array width m and hash count k for a filter sized
// to hold n elements at false-positive probability p.
func Size(n int, p float64) (m int64, k int) {
	mf := math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2))
	m = int64(mf)
	if m < 1 {
		m = 1
	}
	k = int(math.Round((float64(m) / float64(n)) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return m, k
}

// Config configures one filter.
type Config struct {
	Client redisconn.Client
	Key    string

	// N and P size the filter per Size, used only when M/K are left zero.
	N int
	P float64

	// M and K, if both set, override the sizing derived from N/P.
	M int64
	K int
}

// Filter is a Redis-backed Bloom filter over canonically-encoded elements.
type Filter struct {
	client redisconn.Client
	key    string
	m      int64
	k      int
}

// New builds a Filter, deriving m/k from cfg.N/cfg.P unless cfg.M/cfg.K are
// both already set.
func New(cfg Config) *Filter {
	m, k := cfg.M, cfg.K
	if m == 0 || k == 0 {
		m, k = Size(cfg.N, cfg.P)
	}
	return &Filter{client: cfg.Client, key: cfg.Key, m: m, k: k}
}

// positions derives the k bit offsets for x using enhanced double hashing:
// g_i(x) = (h1 + i*h2 + i^2) mod m, where (h1, h2) are the two 32-bit
// halves of a single xxhash of x's canonical encoding.
func (f *Filter) positions(x any) ([]int64, error) {
	encoded, err := codec.Encode(x)
	if err != nil {
		return nil, err
	}

	sum := xxhash.Sum64([]byte(encoded))
	h1 := int64(uint32(sum))
	h2 := int64(uint32(sum >> 32))

	positions := make([]int64, f.k)
	for i := 0; i < f.k; i++ {
		ii := int64(i)
		pos := (h1 + ii*h2 + ii*ii) % f.m
		if pos < 0 {
			pos += f.m
		}
		positions[i] = pos
	}
	return positions, nil
}

// Add sets every bit position derived from x, in a single pipelined batch.
func (f *Filter) Add(ctx context.Context, x any) error {
	positions, err := f.positions(x)
	if err != nil {
		return err
	}
	pipe := f.client.Pipeline()
	for _, pos := range positions {
		pipe.SetBit(ctx, f.key, pos, 1)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// AddMany adds every element of xs, batched across all of them in one
// pipelined round trip.
func (f *Filter) AddMany(ctx context.Context, xs []any) error {
	pipe := f.client.Pipeline()
	for _, x := range xs {
		positions, err := f.positions(x)
		if err != nil {
			return err
		}
		for _, pos := range positions {
			pipe.SetBit(ctx, f.key, pos, 1)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Contains reports whether every bit position derived from x is set. It
// returns false as soon as any position reads clear.
func (f *Filter) Contains(ctx context.Context, x any) (bool, error) {
	positions, err := f.positions(x)
	if err != nil {
		return false, err
	}
	for _, pos := range positions {
		bit, err := f.client.GetBit(ctx, f.key, pos).Result()
		if err != nil {
			return false, err
		}
		if bit == 0 {
			return false, nil
		}
	}
	return true, nil
}

// ContainsMany returns, for every element of xs, whether it is possibly a
// member, computed from a single pipelined batch of bit reads.
func (f *Filter) ContainsMany(ctx context.Context, xs []any) ([]bool, error) {
	pipe := f.client.Pipeline()
	cmds := make([][]*redis.IntCmd, len(xs))
	for i, x := range xs {
		positions, err := f.positions(x)
		if err != nil {
			return nil, err
		}
		cmds[i] = make([]*redis.IntCmd, len(positions))
		for j, pos := range positions {
			cmds[i][j] = pipe.GetBit(ctx, f.key, pos)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	results := make([]bool, len(xs))
	for i := range xs {
		present := true
		for _, cmd := range cmds[i] {
			v, err := cmd.Result()
			if err != nil {
				return nil, err
			}
			if v == 0 {
				present = false
				break
			}
		}
		results[i] = present
	}
	return results, nil
}

// ApproximateSize estimates how many distinct elements have been added,
// from the number of set bits X: n~ = -(m/k) * ln(1 - X/m), saturating at
// m/k when every bit is set.
func (f *Filter) ApproximateSize(ctx context.Context) (float64, error) {
	x, err := f.client.BitCount(ctx, f.key, &redis.BitCount{Start: 0, End: -1}).Result()
	if err != nil {
		return 0, err
	}
	if x >= f.m {
		return float64(f.m) / float64(f.k), nil
	}
	ratio := 1 - float64(x)/float64(f.m)
	return -(float64(f.m) / float64(f.k)) * math.Log(ratio), nil
}

// Clear deletes the filter's key entirely.
func (f *Filter) Clear(ctx context.Context) error {
	return f.client.Del(ctx, f.key).Err()
}
