// Package redisconn builds go-redis clients for the independent Redis
// masters that Redlock (C1) and NextId (C2) fan out to, and for the single
// endpoints that the memoization cache (C3) and Bloom filter (C4) use.
package redisconn

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/robinbryce/redquorum/logger"
)

// Scripter is the subset of the go-redis API needed to register and run
// the compare-and-delete / compare-and-reset-TTL / CAS-raise Lua scripts.
type Scripter interface {
	Eval(ctx context.Context, script string, keys []string, args ...any) *redis.Cmd
	EvalSha(ctx context.Context, sha1 string, keys []string, args ...any) *redis.Cmd
	ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd
	ScriptLoad(ctx context.Context, script string) *redis.StringCmd
}

// Client is the wire surface every redquorum primitive needs from a single
// Redis master: the commands listed in spec.md §6 plus pipelining/Watch.
type Client interface {
	Scripter

	Do(ctx context.Context, args ...any) *redis.Cmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	PExpire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	SetBit(ctx context.Context, key string, offset int64, value int) *redis.IntCmd
	GetBit(ctx context.Context, key string, offset int64) *redis.IntCmd
	BitCount(ctx context.Context, key string, bitCount *redis.BitCount) *redis.IntCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	HLen(ctx context.Context, key string) *redis.IntCmd
	HExists(ctx context.Context, key, field string) *redis.BoolCmd
	HIncrBy(ctx context.Context, key, field string, incr int64) *redis.IntCmd
	Pipeline() redis.Pipeliner
	Watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Endpoint describes one Redis master: either a single node or a cluster,
// mirroring the teacher's one-cluster-or-one-node split in cluster.go, but
// each Endpoint here is one of the N independent masters a Redlock/NextId
// handle fans out to rather than the whole deployment.
type Endpoint struct {
	Addr       string
	Password   string
	DB         int
	TLS        bool
	IsCluster  bool
	ClusterURL []string
	Namespace  string
}

// NewClient dials addr (or, if cfg.IsCluster, the cluster addresses) and
// pings it, failing fast the way the teacher's NewRedisClient does.
func NewClient(ctx context.Context, cfg Endpoint, log logger.Logger) (Client, error) {
	if log == nil {
		log = logger.Sugar
	}

	var client Client
	if cfg.IsCluster {
		opts := &redis.ClusterOptions{
			Addrs:    cfg.ClusterURL,
			Password: cfg.Password,
		}
		if cfg.TLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client = redis.NewClusterClient(opts)
	} else {
		opts := &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
		if cfg.TLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		client = redis.NewClient(opts)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Infof("redisconn: failed ping to %s: %v", cfg.Addr, err)
		return nil, err
	}
	return client, nil
}

// NewMasters dials every endpoint in cfgs, in order. The returned slice's
// indices line up with cfgs's, which is load-bearing for the quorum
// bookkeeping in redlock/nextid (per-master results must be attributable
// back to the endpoint that produced them).
func NewMasters(ctx context.Context, cfgs []Endpoint, log logger.Logger) ([]Client, error) {
	clients := make([]Client, len(cfgs))
	for i, cfg := range cfgs {
		client, err := NewClient(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		clients[i] = client
	}
	return clients, nil
}
