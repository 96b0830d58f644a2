//go:build integration

package lock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"vetgate/internal/platform/config"
	"vetgate/internal/platform/lock"
	platformredis "vetgate/internal/platform/redis"
	"vetgate/pkg/platform/sentinel"
	"vetgate/pkg/testutil/containers"
)

type RedisLockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	client *platformredis.Client
	locker *lock.RedisLocker
	ctx    context.Context
}

func (s *RedisLockerSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())

	client, err := platformredis.New(config.RedisConfig{URL: s.redis.URL})
	s.Require().NoError(err)
	s.client = client
	s.locker = lock.NewRedisLocker(client)
}

func (s *RedisLockerSuite) TearDownSuite() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.redis != nil {
		s.redis.Close(s.ctx)
	}
}

func (s *RedisLockerSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func TestRedisLockerSuite(t *testing.T) {
	suite.Run(t, new(RedisLockerSuite))
}

func (s *RedisLockerSuite) TestAcquireAndRelease() {
	release, err := s.locker.Acquire(s.ctx, "user-1", time.Minute)
	s.Require().NoError(err)

	_, err = s.locker.Acquire(s.ctx, "user-1", time.Minute)
	s.Require().ErrorIs(err, sentinel.ErrConflict)

	release(s.ctx)

	release2, err := s.locker.Acquire(s.ctx, "user-1", time.Minute)
	s.Require().NoError(err)
	release2(s.ctx)
}

func (s *RedisLockerSuite) TestIndependentKeys() {
	release1, err := s.locker.Acquire(s.ctx, "user-1", time.Minute)
	s.Require().NoError(err)
	defer release1(s.ctx)

	release2, err := s.locker.Acquire(s.ctx, "user-2", time.Minute)
	s.Require().NoError(err)
	defer release2(s.ctx)
}

func (s *RedisLockerSuite) TestLeaseExpires() {
	_, err := s.locker.Acquire(s.ctx, "user-1", 100*time.Millisecond)
	s.Require().NoError(err)

	s.Require().Eventually(func() bool {
		release, err := s.locker.Acquire(s.ctx, "user-1", time.Minute)
		if err != nil {
			return false
		}
		release(s.ctx)
		return true
	}, 2*time.Second, 50*time.Millisecond)
}

func (s *RedisLockerSuite) TestStaleReleaseKeepsSuccessorLease() {
	staleRelease, err := s.locker.Acquire(s.ctx, "user-1", 100*time.Millisecond)
	s.Require().NoError(err)

	// Let the first lease lapse, then hand the key to a successor.
	time.Sleep(200 * time.Millisecond)
	release2, err := s.locker.Acquire(s.ctx, "user-1", time.Minute)
	s.Require().NoError(err)
	defer release2(s.ctx)

	// The stale holder's release must not free the successor's lease.
	staleRelease(s.ctx)
	_, err = s.locker.Acquire(s.ctx, "user-1", time.Minute)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *RedisLockerSuite) TestConcurrentAcquireSingleWinner() {
	const attempts = 20
	var wins atomic.Int32
	var wg sync.WaitGroup

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.locker.Acquire(s.ctx, "user-race", time.Minute); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
}
