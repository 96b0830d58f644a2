package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vetgate/pkg/platform/sentinel"
)

// InMemoryLocker serializes per-key work within one process. Used in tests
// and dev mode where Redis is not configured.
type InMemoryLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
}

func NewInMemoryLocker() *InMemoryLocker {
	return &InMemoryLocker{leases: make(map[string]time.Time)}
}

func (l *InMemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if expiry, held := l.leases[key]; held && now.Before(expiry) {
		return nil, fmt.Errorf("lease %q held: %w", key, sentinel.ErrConflict)
	}
	l.leases[key] = now.Add(ttl)

	release := func(context.Context) {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.leases, key)
	}
	return release, nil
}
