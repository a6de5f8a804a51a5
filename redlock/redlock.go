// Package redlock implements the Redlock quorum distributed mutex (C1): a
// lease-based lock held across N independent Redis masters, acquired only
// when a majority grant it within a positive validity window, and released
// or extended only by presenting the token that was used to acquire it.
package redlock

import (
	"context"
	"errors"
	"fmt"
	mathrand "math/rand"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	opentracing "github.com/opentracing/opentracing-go"

	"github.com/robinbryce/redquorum/logger"
	"github.com/robinbryce/redquorum/quorum"
	"github.com/robinbryce/redquorum/redisconn"
	"github.com/robinbryce/redquorum/rediserr"
)

// compareAndDelete removes key only if its value still equals the presented
// token, so release never removes a lease some other caller has since won.
var compareAndDelete = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndResetTTL refreshes key's TTL only if its value still equals the
// presented token, so an extension never revives a lease someone else holds.
var compareAndResetTTL = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// state is the in-process acquisition state machine: Unacquired -> Acquiring
// -> Held -> Released, mirrored exactly from spec's state machine.
type state int

const (
	stateUnacquired state = iota
	stateAcquiring
	stateHeld
	stateReleased
)

// Config configures one Redlock handle.
type Config struct {
	Key     string
	Masters []redisconn.Client

	// AutoReleaseTime is the lease duration. Defaults to 10s.
	AutoReleaseTime time.Duration
	// Blocking controls whether Acquire retries on contention. Defaults true.
	Blocking bool
	// Timeout bounds how long a blocking Acquire retries; zero means retry
	// forever.
	Timeout time.Duration
	// NumExtensions bounds how many times one acquisition may be extended.
	// Defaults to 3.
	NumExtensions int
	// ClockDriftFactor is the fractional allowance for clock skew between
	// masters. Defaults to 0.01.
	ClockDriftFactor float64

	Log logger.Logger
}

func (cfg *Config) setDefaults() {
	if cfg.AutoReleaseTime <= 0 {
		cfg.AutoReleaseTime = 10 * time.Second
	}
	if cfg.NumExtensions <= 0 {
		cfg.NumExtensions = 3
	}
	if cfg.ClockDriftFactor <= 0 {
		cfg.ClockDriftFactor = 0.01
	}
	if cfg.Log == nil {
		cfg.Log = logger.Sugar
	}
}

// Lock is one acquisition handle: not safe for concurrent use by multiple
// goroutines, mirroring the teacher's convention of a per-caller client.
type Lock struct {
	cfg   Config
	state state

	token          string
	acquiredAt     time.Time
	deadline       time.Time
	extensionsUsed int
}

// New builds a handle for cfg.Key across cfg.Masters. len(Masters) must be
// odd and >= 1 (production guidance is 5), since an even master count can
// split into two disjoint groups with no majority; a misconfigured count is
// a programmer error, so New panics via cfg.Log rather than returning one.
func New(cfg Config) *Lock {
	cfg.setDefaults()
	if n := len(cfg.Masters); n < 1 || n%2 == 0 {
		cfg.Log.Panicf("redlock: Masters count must be odd and >= 1, got %d", n)
	}
	return &Lock{cfg: cfg, state: stateUnacquired}
}

// Acquire runs the seven-step acquisition protocol: generate a token, fan
// out SET NX PX to every master, compute the validity window, and either
// report success or best-effort release and retry/fail.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "redlock.Acquire")
	span.SetTag("key", l.cfg.Key)
	defer span.Finish()

	if l.state == stateHeld {
		span.SetTag("error", true)
		return false, rediserr.ErrLockAlreadyAcquired
	}
	l.state = stateAcquiring

	blocking := l.cfg.Blocking
	var deadline time.Time
	if l.cfg.Timeout > 0 {
		deadline = time.Now().Add(l.cfg.Timeout)
	}

	for {
		ok, token, validity, err := l.attempt(ctx)
		if err != nil {
			l.state = stateUnacquired
			return false, err
		}
		if ok {
			l.token = token
			l.acquiredAt = time.Now()
			l.deadline = l.acquiredAt.Add(validity)
			l.extensionsUsed = 0
			l.state = stateHeld
			return true, nil
		}

		if !blocking {
			l.state = stateUnacquired
			return false, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			l.state = stateUnacquired
			return false, nil
		}

		base := l.cfg.AutoReleaseTime / time.Duration(len(l.cfg.Masters)+1)
		wait := time.Duration(mathrand.Int63n(int64(base) + 1))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.state = stateUnacquired
			return false, ctx.Err()
		case <-timer.C:
		}
	}
}

// attempt runs one acquisition fan-out, returning granted/validity, and
// best-effort releases the token on every master on failure.
func (l *Lock) attempt(ctx context.Context) (bool, string, time.Duration, error) {
	token, err := newToken()
	if err != nil {
		return false, "", 0, err
	}

	start := time.Now()
	perMasterTimeout := l.cfg.AutoReleaseTime / time.Duration(len(l.cfg.Masters))

	results := quorum.FanOut(ctx, len(l.cfg.Masters), func(ctx context.Context, i int) (bool, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, perMasterTimeout)
		defer cancel()
		ok, err := l.cfg.Masters[i].SetNX(attemptCtx, l.cfg.Key, token, l.cfg.AutoReleaseTime).Result()
		return ok, err
	})

	granted := len(quorum.Succeeded(results))
	elapsed := time.Since(start)
	drift := time.Duration(l.cfg.ClockDriftFactor * float64(l.cfg.AutoReleaseTime))
	validity := l.cfg.AutoReleaseTime - elapsed - drift - 2*time.Millisecond

	succeeded := granted >= quorum.Majority(len(l.cfg.Masters)) && validity > 0
	if !succeeded {
		l.bestEffortRelease(ctx, token)
		return false, "", 0, nil
	}
	return true, token, validity, nil
}

// Release performs a compare-and-delete of the caller's token on every
// master, best-effort: failure to reach a master is not fatal because the
// lease will expire on its own.
func (l *Lock) Release(ctx context.Context) error {
	span, ctx := opentracing.StartSpanFromContext(ctx, "redlock.Release")
	span.SetTag("key", l.cfg.Key)
	defer span.Finish()

	if l.state != stateHeld {
		span.SetTag("error", true)
		return rediserr.ErrReleaseUnlocked
	}
	l.bestEffortRelease(ctx, l.token)
	l.state = stateReleased
	l.token = ""
	return nil
}

func (l *Lock) bestEffortRelease(ctx context.Context, token string) {
	quorum.FanOut(ctx, len(l.cfg.Masters), func(ctx context.Context, i int) (bool, error) {
		_, err := compareAndDelete.Run(ctx, l.cfg.Masters[i], []string{l.cfg.Key}, token).Result()
		if err != nil {
			l.cfg.Log.Infof("redlock: best-effort release failed on master %d: %v", i, err)
		}
		return true, nil
	})
}

// Extend resets the TTL on every master that still holds the caller's
// token. It succeeds only if a quorum reported the reset and the
// recomputed validity window is still positive, and is capped at
// cfg.NumExtensions per acquisition.
func (l *Lock) Extend(ctx context.Context) (time.Duration, error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "redlock.Extend")
	span.SetTag("key", l.cfg.Key)
	defer span.Finish()

	if l.state != stateHeld {
		span.SetTag("error", true)
		return 0, rediserr.ErrExtendUnlocked
	}
	if l.extensionsUsed >= l.cfg.NumExtensions {
		span.SetTag("error", true)
		return 0, rediserr.ErrTooManyExtensions
	}

	start := time.Now()
	results := quorum.FanOut(ctx, len(l.cfg.Masters), func(ctx context.Context, i int) (bool, error) {
		n, err := compareAndResetTTL.Run(
			ctx, l.cfg.Masters[i], []string{l.cfg.Key}, l.token, l.cfg.AutoReleaseTime.Milliseconds(),
		).Int64()
		if err != nil {
			return false, err
		}
		return n == 1, nil
	})

	granted := 0
	for _, r := range results {
		if r.Err == nil && r.Value {
			granted++
		}
	}

	elapsed := time.Since(start)
	drift := time.Duration(l.cfg.ClockDriftFactor * float64(l.cfg.AutoReleaseTime))
	validity := l.cfg.AutoReleaseTime - elapsed - drift - 2*time.Millisecond

	if granted < quorum.Majority(len(l.cfg.Masters)) || validity <= 0 {
		span.SetTag("error", true)
		return 0, rediserr.QuorumNotAchievedError("extend", l.cfg.Key, granted, len(l.cfg.Masters))
	}

	l.extensionsUsed++
	l.acquiredAt = time.Now()
	l.deadline = l.acquiredAt.Add(validity)
	return validity, nil
}

// Locked reports the remaining validity of the caller's acquisition, or
// zero if fewer than a quorum of masters still agree on the token.
func (l *Lock) Locked(ctx context.Context) time.Duration {
	span, ctx := opentracing.StartSpanFromContext(ctx, "redlock.Locked")
	span.SetTag("key", l.cfg.Key)
	defer span.Finish()

	if l.state != stateHeld {
		return 0
	}

	results := quorum.FanOut(ctx, len(l.cfg.Masters), func(ctx context.Context, i int) (time.Duration, error) {
		val, err := l.cfg.Masters[i].Get(ctx, l.cfg.Key).Result()
		if err != nil {
			return 0, err
		}
		if val != l.token {
			return 0, errors.New("redlock: token mismatch")
		}
		return pttlOf(ctx, l.cfg.Masters[i], l.cfg.Key)
	})

	matching := quorum.Succeeded(results)
	if len(matching) < quorum.Majority(len(l.cfg.Masters)) {
		return 0
	}

	minTTL := matching[0].Value
	for _, r := range matching[1:] {
		if r.Value < minTTL {
			minTTL = r.Value
		}
	}

	drift := time.Duration(l.cfg.ClockDriftFactor * float64(l.cfg.AutoReleaseTime))
	elapsed := time.Since(l.acquiredAt)
	remaining := minTTL - drift - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Deadline returns the estimated wall-clock time this acquisition's lease
// expires, per the state machine's Held(token, deadline, extensions_remaining).
// It is the zero Time if the lock is not currently held.
func (l *Lock) Deadline() time.Time {
	if l.state != stateHeld {
		return time.Time{}
	}
	return l.deadline
}

// ExtensionsRemaining reports how many more times Extend may be called on
// this acquisition.
func (l *Lock) ExtensionsRemaining() int {
	if l.state != stateHeld {
		return 0
	}
	return l.cfg.NumExtensions - l.extensionsUsed
}

func pttlOf(ctx context.Context, client redisconn.Client, key string) (time.Duration, error) {
	res := client.Do(ctx, "PTTL", key)
	ms, err := res.Int64()
	if err != nil {
		return 0, err
	}
	if ms < 0 {
		return 0, fmt.Errorf("redlock: key %q has no ttl", key)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// WithLock runs fn while holding the lock, acquiring it first and always
// releasing it afterward, the scoped-resource idiom from spec.md §6.
func (l *Lock) WithLock(ctx context.Context, fn func(ctx context.Context) error) error {
	ok, err := l.Acquire(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return rediserr.QuorumNotAchievedError("acquire", l.cfg.Key, 0, len(l.cfg.Masters))
	}
	defer func() {
		_ = l.Release(ctx)
	}()
	return fn(ctx)
}

// newToken mints a fresh 128-bit fencing token. uuid.NewRandom() is used as
// a random-bits source here, not for its RFC 4122 identity semantics: the
// version/variant bits it sets are irrelevant to a bare-comparison token,
// but it avoids a second RNG dependency alongside the one this stack
// already reaches for when it needs random identifiers.
func newToken() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
