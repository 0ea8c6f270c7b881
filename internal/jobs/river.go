// Package jobs runs background maintenance: pruning access entries whose
// rotation grace has elapsed. With Postgres the work is a River periodic
// job so only one instance runs it per interval; without it an in-process
// ticker does the same.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/riverqueue/river/rivertype"
)

const JobKindPruneStaleAccess = "prune_stale_access"

// PruneMaxAttempts is low because the next period retries anyway.
const PruneMaxAttempts = 3

// Scheduler is a started background loop that can be stopped.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Migrate applies River's own schema.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("init river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, &rivermigrate.MigrateOpts{}); err != nil {
		return fmt.Errorf("migrate river schema: %w", err)
	}
	return nil
}

// NewClientConfig builds the River configuration with the prune worker and
// its periodic schedule.
func NewClientConfig(pruner Pruner, logger *slog.Logger, interval time.Duration) *river.Config {
	workers := river.NewWorkers()
	river.AddWorker(workers, &PruneStaleAccessWorker{Pruner: pruner, Logger: logger})

	config := &river.Config{
		Workers:      workers,
		MaxAttempts:  PruneMaxAttempts,
		PeriodicJobs: NewPeriodicJobs(interval),
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
	}
	if logger != nil {
		config.Logger = logger
		config.ErrorHandler = NewErrorHandler(logger)
	}
	return config
}

// NewClient creates a River client using pgx v5.
func NewClient(pool *pgxpool.Pool, pruner Pruner, logger *slog.Logger, interval time.Duration) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(pruner, logger, interval))
}

// NewPeriodicJobs schedules the prune job every interval, starting at boot.
func NewPeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return PruneStaleAccessArgs{}, &river.InsertOpts{MaxAttempts: PruneMaxAttempts}
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}

// ErrorHandler logs failed and panicking jobs; River's retry policy does
// the rest.
type ErrorHandler struct {
	Logger *slog.Logger
}

func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{Logger: logger}
}

func (h *ErrorHandler) HandleError(ctx context.Context, job *rivertype.JobRow, err error) *river.ErrorHandlerResult {
	if h.Logger != nil {
		h.Logger.ErrorContext(ctx, "job failed", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt, "error", err)
	}
	return nil
}

func (h *ErrorHandler) HandlePanic(ctx context.Context, job *rivertype.JobRow, panicVal any, trace string) *river.ErrorHandlerResult {
	if h.Logger != nil {
		h.Logger.ErrorContext(ctx, "job panicked",
			"job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt,
			"error", fmt.Errorf("panic: %v", panicVal), "trace", trace)
	}
	return nil
}
