// Package redquorum provides client-side distributed coordination
// primitives built on independent Redis masters: a Redlock-style quorum
// mutex, a monotonic ID generator, a memoization cache, and a Bloom
// filter, plus the canonical encoding and optimistic-transaction substrate
// they share.
//
// # Packages
//
//   - redlock: quorum distributed lock with auto-expiring lease and
//     token-validated release/extend
//   - nextid: monotonic ID generator across N independent masters
//   - memoize: Redis-hash-backed memoization cache with hit/miss counters
//   - bloom: Redis-bitfield-backed Bloom filter
//   - codec, rediserr, txn, quorum, redisconn: shared substrate consumed
//     by the four primitives above
//   - containers: collaborator interfaces for higher-level container
//     façades (RedisDict/RedisSet/RedisList/RedisDeque/RedisCounter/
//     CachedOrderedDict); this module does not implement them
//
// # Quick start
//
//	masters := dialMasters(addrs) // []redisconn.Client, one per Redis master
//
//	lock := redlock.New(redlock.Config{Key: "job", Masters: masters})
//	err := lock.WithLock(ctx, func(ctx context.Context) error {
//		return doWork(ctx)
//	})
//
//	gen := nextid.New(nextid.Config{Key: "orders", Masters: masters})
//	id, err := gen.Next(ctx)
//
// See examples/basic_usage.go for a runnable walkthrough of all four
// primitives.
package redquorum
