//go:build integration

package jobs_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/jobs"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/logger"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/testutil/containers"
)

type countingPruner struct {
	calls atomic.Int32
}

func (p *countingPruner) PruneExpired(context.Context, time.Time) (int, error) {
	p.calls.Add(1)
	return 0, nil
}

type RiverSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
}

func TestRiverSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RiverSuite))
}

func (s *RiverSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.Require().NoError(jobs.Migrate(context.Background(), s.postgres.Pool))
}

func (s *RiverSuite) TestMigrateIsRepeatable() {
	s.NoError(jobs.Migrate(context.Background(), s.postgres.Pool))
}

func (s *RiverSuite) TestPeriodicPruneRunsOnStart() {
	ctx := context.Background()
	pruner := &countingPruner{}

	client, err := jobs.NewClient(s.postgres.Pool, pruner, logger.Discard(), time.Hour)
	s.Require().NoError(err)
	s.Require().NoError(client.Start(ctx))
	defer func() {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		s.NoError(client.Stop(stopCtx))
	}()

	s.Eventually(func() bool { return pruner.calls.Load() >= 1 }, 20*time.Second, 100*time.Millisecond)
}
