package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vetgate/pkg/platform/sentinel"
)

func TestInMemoryLocker_ExclusiveWhileHeld(t *testing.T) {
	l := NewInMemoryLocker()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "user-1", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "user-1", time.Minute)
	assert.ErrorIs(t, err, sentinel.ErrConflict)

	// A different key is unaffected.
	other, err := l.Acquire(ctx, "user-2", time.Minute)
	require.NoError(t, err)
	other(ctx)

	release(ctx)
	release2, err := l.Acquire(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	release2(ctx)
}

func TestInMemoryLocker_ExpiredLeaseReacquirable(t *testing.T) {
	l := NewInMemoryLocker()
	ctx := context.Background()

	_, err := l.Acquire(ctx, "user-1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	release, err := l.Acquire(ctx, "user-1", time.Minute)
	require.NoError(t, err)
	release(ctx)
}
