package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/riverqueue/river"
)

// Pruner removes access entries whose grace period elapsed before now.
type Pruner interface {
	PruneExpired(ctx context.Context, now time.Time) (int, error)
}

// PruneStaleAccessArgs defines the periodic prune job.
type PruneStaleAccessArgs struct{}

func (PruneStaleAccessArgs) Kind() string { return JobKindPruneStaleAccess }

// PruneStaleAccessWorker drops stale local and remote tokens across all
// parties.
type PruneStaleAccessWorker struct {
	river.WorkerDefaults[PruneStaleAccessArgs]
	Pruner Pruner
	Logger *slog.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

func (w *PruneStaleAccessWorker) Timeout(*river.Job[PruneStaleAccessArgs]) time.Duration {
	return time.Minute
}

func (w *PruneStaleAccessWorker) Work(ctx context.Context, job *river.Job[PruneStaleAccessArgs]) error {
	if w.Pruner == nil {
		return fmt.Errorf("pruner not configured")
	}
	attempt := 0
	if job != nil && job.JobRow != nil {
		attempt = job.Attempt
	}
	if _, err := prune(ctx, w.Pruner, w.Logger, w.now()); err != nil {
		return fmt.Errorf("prune stale access (attempt %d): %w", attempt, err)
	}
	return nil
}

func (w *PruneStaleAccessWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func prune(ctx context.Context, pruner Pruner, logger *slog.Logger, now time.Time) (int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	removed, err := pruner.PruneExpired(ctx, now)
	if err != nil {
		logger.ErrorContext(ctx, "prune stale access failed", "removed", removed, "error", err)
		return removed, err
	}
	if removed > 0 {
		logger.InfoContext(ctx, "pruned stale access",
			"removed", removed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return removed, nil
}

// Ticker runs the prune in-process every interval. It is used when no
// Postgres is configured, so each instance prunes its own memory.
type Ticker struct {
	pruner   Pruner
	logger   *slog.Logger
	interval time.Duration
	now      func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTicker creates a stopped ticker.
func NewTicker(pruner Pruner, logger *slog.Logger, interval time.Duration) *Ticker {
	return &Ticker{pruner: pruner, logger: logger, interval: interval, now: time.Now}
}

// Start launches the loop. The first prune runs immediately.
func (t *Ticker) Start(ctx context.Context) error {
	if t.interval <= 0 {
		return fmt.Errorf("prune interval must be positive")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return fmt.Errorf("ticker already started")
	}
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	t.cancel = cancel
	t.done = make(chan struct{})
	go t.run(ctx, t.done)
	return nil
}

func (t *Ticker) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		_, _ = prune(ctx, t.pruner, t.logger, t.now())
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Stop cancels the loop and waits for the current prune to finish or ctx
// to expire.
func (t *Ticker) Stop(ctx context.Context) error {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
