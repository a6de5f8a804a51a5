// Package txn implements the scoped optimistic transaction substrate (C0)
// used by redlock, nextid, and memoize: WATCH one or more keys, compute the
// new state from what was read, then commit with MULTI/EXEC so the commit
// only lands if nothing else changed the watched keys in the meantime.
package txn

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/robinbryce/redquorum/rediserr"
	"github.com/robinbryce/redquorum/redisconn"
)

const (
	// DefaultMaxRetries bounds how many times Transact will retry a
	// watch/commit cycle after contention before giving up with
	// rediserr.ErrContention.
	DefaultMaxRetries = 3

	baseBackoff = 50 * time.Millisecond
	maxBackoff  = 1 * time.Second
)

// Options configures Transact's retry behaviour.
type Options struct {
	MaxRetries int
}

// Fn is the body of a scoped transaction. tx gives access to the watched
// keys' current state (via tx.Get/tx.HGet/...); pipe is the MULTI/EXEC
// pipeline the body must queue its writes onto. Returning redis.Nil or any
// other error aborts the attempt; the watched keys changing between WATCH
// and EXEC is reported to the caller as a retry, not as an error from Fn.
type Fn func(ctx context.Context, tx *redis.Tx, pipe redis.Pipeliner) error

// Transact runs fn against client as an optimistic transaction watching
// keys, retrying with exponential backoff and jitter on contention
// (go-redis reports a changed watched key as redis.TxFailedErr). After
// opts.MaxRetries consecutive contention failures it returns
// rediserr.ContentionError naming the first watched key.
func Transact(ctx context.Context, client redisconn.Client, keys []string, fn Fn, opts ...Options) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "txn.Transact")
	if len(keys) > 0 {
		span.SetTag("key", keys[0])
	}
	defer span.Finish()

	maxRetries := DefaultMaxRetries
	if len(opts) > 0 && opts[0].MaxRetries > 0 {
		maxRetries = opts[0].MaxRetries
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, attempt); err != nil {
				return err
			}
		}

		err := client.Watch(ctx, func(tx *redis.Tx) error {
			_, pipeErr := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return fn(ctx, tx, pipe)
			})
			return pipeErr
		}, keys...)

		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}

	key := ""
	if len(keys) > 0 {
		key = keys[0]
	}
	span.SetTag("error", true)
	return rediserr.ContentionError(key, maxRetries+1)
}

// sleepBackoff waits an exponentially increasing, jittered interval before
// the next retry: base * 2^(attempt-1), capped at maxBackoff, +/-25% jitter.
func sleepBackoff(ctx context.Context, attempt int) error {
	backoff := baseBackoff << (attempt - 1)
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	jitter := time.Duration(float64(backoff) * (rand.Float64()*0.5 - 0.25))
	wait := backoff + jitter

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
