//go:build integration

package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	platformredis "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/redis"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/platform/sentinel"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/testutil/containers"
)

type LockerSuite struct {
	suite.Suite
	redis  *containers.RedisContainer
	locker *platformredis.Locker
}

func TestLockerSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(LockerSuite))
}

func (s *LockerSuite) SetupSuite() {
	s.redis = containers.GetManager().GetRedis(s.T())
	s.locker = s.redis.Client.Locker()
}

func (s *LockerSuite) SetupTest() {
	s.Require().NoError(s.redis.Reset(context.Background()))
}

func (s *LockerSuite) TestHealth() {
	s.NoError(s.redis.Client.Health(context.Background()))
}

func (s *LockerSuite) TestExclusive() {
	ctx := context.Background()

	release, err := s.locker.Acquire(ctx, "NL*EXA*CPO", time.Minute)
	s.Require().NoError(err)

	_, err = s.locker.Acquire(ctx, "NL*EXA*CPO", time.Minute)
	s.ErrorIs(err, sentinel.ErrLocked)

	_, err = s.locker.Acquire(ctx, "NL*EXA*EMSP", time.Minute)
	s.NoError(err)

	s.Require().NoError(release(ctx))
	_, err = s.locker.Acquire(ctx, "NL*EXA*CPO", time.Minute)
	s.NoError(err)
}

func (s *LockerSuite) TestStaleReleaseKeepsNewOwner() {
	ctx := context.Background()

	release, err := s.locker.Acquire(ctx, "DE*ABC*CPO", 50*time.Millisecond)
	s.Require().NoError(err)
	time.Sleep(100 * time.Millisecond)

	_, err = s.locker.Acquire(ctx, "DE*ABC*CPO", time.Minute)
	s.Require().NoError(err)

	s.Require().NoError(release(ctx))
	_, err = s.locker.Acquire(ctx, "DE*ABC*CPO", time.Minute)
	s.ErrorIs(err, sentinel.ErrLocked)
}
