// Package nextid implements the NextId monotonic ID generator (C2): each
// call commits an optimistic increment independently on every master, and
// returns the highest value a quorum of them committed, forward-propagating
// that value to any master that lagged or aborted.
package nextid

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/robinbryce/redquorum/logger"
	"github.com/robinbryce/redquorum/quorum"
	"github.com/robinbryce/redquorum/redisconn"
	"github.com/robinbryce/redquorum/rediserr"
	"github.com/robinbryce/redquorum/txn"
)

// setGT raises key to value only if value is strictly greater than the
// current one; it never lowers a counter another caller already advanced.
var setGT = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
local value = tonumber(ARGV[1])
if not current then
  redis.call("SET", KEYS[1], value)
  return value
end
current = tonumber(current)
if value > current then
  redis.call("SET", KEYS[1], value)
  return value
end
return current
`)

// Config configures one sequence.
type Config struct {
	Key     string
	Masters []redisconn.Client

	// MaxRetries bounds how many full fan-out rounds Next will attempt
	// before surfacing rediserr.ErrQuorumNotAchieved. Defaults to 3.
	MaxRetries int
	Log        logger.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Log == nil {
		cfg.Log = logger.Sugar
	}
}

// Generator produces strictly increasing identifiers for one named
// sequence across cfg.Masters.
type Generator struct {
	cfg Config
}

// New builds a Generator over cfg.Masters, namespacing the Redis key as
// "nextid:<key>".
func New(cfg Config) *Generator {
	cfg.setDefaults()
	return &Generator{cfg: cfg}
}

func (g *Generator) redisKey() string {
	return fmt.Sprintf("nextid:%s", g.cfg.Key)
}

// Next runs the generation protocol: per-master optimistic commit of
// current+1, quorum collection of the committed values, and returns
// max(V), forward-propagating it asynchronously to lagging masters.
func (g *Generator) Next(ctx context.Context) (int64, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "nextid.Next")
	span.SetTag("key", g.cfg.Key)
	defer span.Finish()

	key := g.redisKey()

	var lastErr error
	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := g.backoff(ctx, attempt); err != nil {
				return 0, err
			}
		}

		results := quorum.FanOut(ctx, len(g.cfg.Masters), func(ctx context.Context, i int) (int64, error) {
			return g.commitOne(ctx, g.cfg.Masters[i], key)
		})

		succeeded := quorum.Succeeded(results)
		if len(succeeded) < quorum.Majority(len(g.cfg.Masters)) {
			lastErr = rediserr.QuorumNotAchievedError("next", key, len(succeeded), len(g.cfg.Masters))
			continue
		}

		max := succeeded[0].Value
		for _, r := range succeeded[1:] {
			if r.Value > max {
				max = r.Value
			}
		}

		g.propagate(context.WithoutCancel(ctx), key, max, results)
		return max, nil
	}

	span.SetTag("error", true)
	return 0, lastErr
}

// commitOne watches key on one master, reads its current value (absent
// means 0), and commits current+1 via a scoped optimistic transaction.
func (g *Generator) commitOne(ctx context.Context, client redisconn.Client, key string) (int64, error) {
	var next int64
	err := txn.Transact(ctx, client, []string{key}, func(ctx context.Context, tx *redis.Tx, pipe redis.Pipeliner) error {
		current, err := readCurrent(ctx, tx, key)
		if err != nil {
			return err
		}
		next = current + 1
		pipe.Set(ctx, key, strconv.FormatInt(next, 10), 0)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func readCurrent(ctx context.Context, tx *redis.Tx, key string) (int64, error) {
	val, err := tx.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(val, 10, 64)
}

// propagate asynchronously raises every master that did not commit max (or
// committed a lower value) via the compare-and-set-if-greater script. It
// runs detached from the caller's context since it is best-effort cleanup,
// not part of the result the caller is waiting on.
func (g *Generator) propagate(ctx context.Context, key string, max int64, results []quorum.Result[int64]) {
	for _, r := range results {
		if r.Err == nil && r.Value >= max {
			continue
		}
		go func(i int) {
			propagateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if _, err := setGT.Run(propagateCtx, g.cfg.Masters[i], []string{key}, max).Result(); err != nil {
				g.cfg.Log.Infof("nextid: forward-propagation to master %d failed: %v", i, err)
			}
		}(r.Index)
	}
}

func (g *Generator) backoff(ctx context.Context, attempt int) error {
	wait := time.Duration(attempt) * 50 * time.Millisecond
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
