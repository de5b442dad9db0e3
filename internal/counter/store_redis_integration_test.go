//go:build integration

package counter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"gatekeeper/internal/counter"
	"gatekeeper/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *counter.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
	s.store = counter.NewRedis(s.redis.Client)
}

func (s *RedisStoreSuite) TearDownSuite() {
	_ = s.redis.Client.Close()
	_ = s.redis.Container.Terminate(context.Background())
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisStoreSuite) TestIncrWindowAttachesTTLOnce() {
	ctx := context.Background()

	n, err := s.store.IncrWindow(ctx, "ratelimit:api:t1", 60*time.Second)
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	ttl, ok, err := s.store.TTL(ctx, "ratelimit:api:t1")
	s.Require().NoError(err)
	s.True(ok)
	s.Greater(ttl, 50*time.Second)

	// Later increments must not extend the window.
	time.Sleep(1100 * time.Millisecond)
	n, err = s.store.IncrWindow(ctx, "ratelimit:api:t1", 60*time.Second)
	s.Require().NoError(err)
	s.Equal(int64(2), n)

	ttlAfter, ok, err := s.store.TTL(ctx, "ratelimit:api:t1")
	s.Require().NoError(err)
	s.True(ok)
	s.Less(ttlAfter, ttl)
}

func (s *RedisStoreSuite) TestWindowExpiryResetsCount() {
	ctx := context.Background()

	_, err := s.store.IncrWindow(ctx, "ddos:count:ip:w", time.Second)
	s.Require().NoError(err)

	time.Sleep(1200 * time.Millisecond)

	n, err := s.store.IncrWindow(ctx, "ddos:count:ip:w", time.Second)
	s.Require().NoError(err)
	s.Equal(int64(1), n)
}

func (s *RedisStoreSuite) TestGetSetDel() {
	ctx := context.Background()

	_, ok, err := s.store.Get(ctx, "tenant:status:missing")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Set(ctx, "tenant:status:t1", `{"status":"ACTIVE"}`, 60*time.Second))
	value, ok, err := s.store.Get(ctx, "tenant:status:t1")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(`{"status":"ACTIVE"}`, value)

	s.Require().NoError(s.store.Del(ctx, "tenant:status:t1"))
	_, ok, err = s.store.Get(ctx, "tenant:status:t1")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *RedisStoreSuite) TestTTLSentinels() {
	ctx := context.Background()

	_, ok, err := s.store.TTL(ctx, "nope")
	s.Require().NoError(err)
	s.False(ok)

	s.Require().NoError(s.store.Set(ctx, "forever", "1", 0))
	ttl, ok, err := s.store.TTL(ctx, "forever")
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(time.Duration(0), ttl)
}

func (s *RedisStoreSuite) TestKeysScansPrefix() {
	ctx := context.Background()

	s.Require().NoError(s.store.Set(ctx, "ddos:blocked:ip:a", "1", time.Minute))
	s.Require().NoError(s.store.Set(ctx, "ddos:blocked:ip:b", "1", time.Minute))
	s.Require().NoError(s.store.Set(ctx, "ddos:blocked:phone:c", "1", time.Minute))

	keys, err := s.store.Keys(ctx, "ddos:blocked:ip:")
	s.Require().NoError(err)
	s.ElementsMatch(keys, []string{"ddos:blocked:ip:a", "ddos:blocked:ip:b"})
}
