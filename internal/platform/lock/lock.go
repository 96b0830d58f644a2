// Package lock serializes the intake check-then-insert per user. The store's
// conditional insert is the correctness backstop; the lease keeps concurrent
// submissions for one user from racing to the upload step and orphaning
// blobs.
package lock

import (
	"context"
	"time"
)

// Locker acquires a short-lived exclusive lease for a key. Release is
// idempotent and safe after expiry.
type Locker interface {
	// Acquire returns a release function, or an error when the lease is
	// already held or the backend is unavailable.
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(context.Context), err error)
}
