// Package rediserr centralizes the error taxonomy shared by every
// redquorum primitive: encoding failures, optimistic-transaction
// contention, quorum loss, and lock-state-machine misuse.
package rediserr

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding means a value could not be round-tripped through the
	// canonical encoding (codec package).
	ErrEncoding = errors.New("rediserr: value not representable in canonical encoding")

	// ErrContention means a scoped optimistic transaction (txn package)
	// exhausted its retry budget because the watched keys kept changing.
	ErrContention = errors.New("rediserr: optimistic transaction exhausted retries")

	// ErrQuorumNotAchieved means a Redlock/NextId operation failed to reach
	// a majority of masters after exhausting retries.
	ErrQuorumNotAchieved = errors.New("rediserr: quorum not achieved")

	// ErrReleaseUnlocked means release was called on a handle that is not
	// currently holding the lock.
	ErrReleaseUnlocked = errors.New("rediserr: release called on unacquired lock")

	// ErrLockAlreadyAcquired means acquire was called on a handle that
	// already holds the lock.
	ErrLockAlreadyAcquired = errors.New("rediserr: acquire called on a lock already held")

	// ErrExtendUnlocked means extend was called on a handle that is not
	// currently holding the lock.
	ErrExtendUnlocked = errors.New("rediserr: extend called on unacquired lock")

	// ErrTooManyExtensions means extend was called more times than the
	// configured NumExtensions budget allows for this acquisition.
	ErrTooManyExtensions = errors.New("rediserr: lock extended too many times")
)

// EncodingError wraps err (a json marshal/unmarshal failure) as ErrEncoding,
// tagged with the key or field the value was destined for.
func EncodingError(err error, name string) error {
	return fmt.Errorf("%w: %s: %v", ErrEncoding, name, err)
}

// ContentionError reports that a scoped transaction on key gave up after
// attempts retries.
func ContentionError(key string, attempts int) error {
	return fmt.Errorf("%w: key %q after %d attempts", ErrContention, key, attempts)
}

// QuorumNotAchievedError reports that granted out of masters masters
// responded successfully to op, short of the required quorum.
func QuorumNotAchievedError(op, key string, granted, masters int) error {
	return fmt.Errorf("%w: %s key %q: %d/%d masters", ErrQuorumNotAchieved, op, key, granted, masters)
}
