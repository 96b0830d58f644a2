package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	platformredis "vetgate/internal/platform/redis"
	"vetgate/pkg/platform/sentinel"
)

// RedisLocker implements Locker with a SET NX PX lease so the guard holds
// across service instances. Release only deletes the key when the token still
// matches, so an expired lease cannot release a successor's.
type RedisLocker struct {
	client *platformredis.Client
	prefix string
}

func NewRedisLocker(client *platformredis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "vetgate:lease:"}
}

const releaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context), error) {
	token := uuid.NewString()
	full := l.prefix + key

	ok, err := l.client.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire lease %q: %w", key, sentinel.ErrUnavailable)
	}
	if !ok {
		return nil, fmt.Errorf("lease %q held: %w", key, sentinel.ErrConflict)
	}

	release := func(ctx context.Context) {
		// Best effort; the TTL reclaims the lease if this fails.
		_ = l.client.Eval(ctx, releaseScript, []string{full}, token).Err()
	}
	return release, nil
}
