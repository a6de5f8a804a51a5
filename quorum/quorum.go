// Package quorum implements the fan-out-with-majority pattern shared by
// redlock and nextid: call every independent master in parallel and decide
// success once a majority (N/2 + 1) have agreed, without letting the first
// failure cancel the masters still in flight the way errgroup.Group would.
package quorum

import (
	"context"
	"sync"

	"github.com/robinbryce/redquorum/rediserr"
)

// Majority returns the smallest count that is strictly more than half of n.
func Majority(n int) int {
	return n/2 + 1
}

// Result pairs the outcome of calling one master with its index in the
// slice of masters that was fanned out to, so callers can tell which
// master contributed which value.
type Result[T any] struct {
	Index int
	Value T
	Err   error
}

// Call is the per-master operation FanOut invokes; ctx is already scoped
// with any per-call timeout the caller wants applied uniformly.
type Call[T any] func(ctx context.Context, index int) (T, error)

// FanOut invokes call against every index in [0, n) concurrently and
// returns all n results (in index order, not completion order). It does
// not itself enforce a quorum; callers use Majority and Succeeded to judge
// the results, because what counts as "success" varies (NextId wants `v,
// nil`; Redlock wants `true, nil`).
func FanOut[T any](ctx context.Context, n int, call Call[T]) []Result[T] {
	results := make([]Result[T], n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		go func() {
			defer wg.Done()
			v, err := call(ctx, i)
			results[i] = Result[T]{Index: i, Value: v, Err: err}
		}()
	}
	wg.Wait()
	return results
}

// Succeeded filters results down to those that did not error.
func Succeeded[T any](results []Result[T]) []Result[T] {
	ok := make([]Result[T], 0, len(results))
	for _, r := range results {
		if r.Err == nil {
			ok = append(ok, r)
		}
	}
	return ok
}

// Require returns an error unless at least Majority(len(results)) entries
// in results succeeded, naming op and key in the failure for diagnostics.
func Require[T any](results []Result[T], op, key string) error {
	granted := len(Succeeded(results))
	if granted < Majority(len(results)) {
		return rediserr.QuorumNotAchievedError(op, key, granted, len(results))
	}
	return nil
}
