// Package app builds the process object graph from configuration and runs
// it until the context is cancelled.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/admin"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/audit"
	authmetrics "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/resolver"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/auth/router"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/jobs"
	lochandler "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/handler"
	locmetrics "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/metrics"
	locservice "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/service"
	locstore "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/location/store"
	partymetrics "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/metrics"
	partyservice "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/service"
	partystore "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/party/store"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/config"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/httpserver"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/metrics"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/postgres"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/platform/redis"
	regclient "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/client"
	reghandler "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/handler"
	regmetrics "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/metrics"
	regservice "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/registration/service"
	httptransport "github.com/OpenChargingCloud/WWCP-OCPI-sub060/internal/transport/http"
	"github.com/OpenChargingCloud/WWCP-OCPI-sub060/pkg/domain"
)

// auditQueueSize bounds events waiting for the Kafka producer.
const auditQueueSize = 1024

// App holds every long-lived component. Build it once per process: the
// Prometheus collectors register globally.
type App struct {
	Config       config.Config
	Logger       *slog.Logger
	Parties      *partyservice.Service
	Registration *regservice.Service
	Locations    *locservice.Service
	Handler      http.Handler

	pool        *pgxpool.Pool
	redis       *redis.Client
	kafka       *audit.KafkaStore
	auditWorker *audit.Worker
	scheduler   jobs.Scheduler
}

// Build connects the configured backends and wires the services. Postgres,
// Redis and Kafka are each optional; without them the registry lives in
// memory, locks are process-local and audit events stay in memory.
func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	ours, err := partyservice.RoleEntries(cfg.Platform.Roles)
	if err != nil {
		return nil, fmt.Errorf("local roles: %w", err)
	}
	if len(ours) == 0 {
		return nil, errors.New("at least one local role must be configured")
	}

	if a.pool, err = postgres.NewPool(ctx, cfg.Postgres); err != nil {
		return nil, err
	}
	if a.pool != nil && cfg.Postgres.MigrateOnStart {
		if err := postgres.MigrateUp(cfg.Postgres.URL); err != nil {
			return nil, err
		}
		if err := jobs.Migrate(ctx, a.pool); err != nil {
			return nil, err
		}
	}
	if a.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	publisher, err := a.auditPublisher(ctx)
	if err != nil {
		return nil, err
	}

	var parties partyservice.Store = partystore.NewInMemory()
	var connectors locservice.Store = locstore.NewInMemory()
	if a.pool != nil {
		parties = partystore.NewPostgres(a.pool)
		connectors = locstore.NewPostgres(a.pool)
	}

	a.Parties = partyservice.New(parties,
		partyservice.WithLogger(logger),
		partyservice.WithAuditPublisher(publisher),
		partyservice.WithMetrics(partymetrics.New()),
	)
	if n, err := a.Parties.Seed(ctx, cfg.Platform.Parties); err != nil {
		return nil, fmt.Errorf("seed static parties: %w", err)
	} else if n > 0 {
		logger.InfoContext(ctx, "seeded static parties", "count", n)
	}

	regMetrics := regmetrics.New()
	outbound := regclient.New(
		regclient.WithLogger(logger),
		regclient.WithMetrics(regMetrics),
		regclient.WithTimeout(cfg.Registration.RequestTimeout),
		regclient.WithRateLimit(cfg.Registration.RequestsPerSecond),
		regclient.WithRetries(cfg.Registration.MaxRetries, cfg.Registration.RetryBaseDelay),
	)
	regOpts := []regservice.Option{
		regservice.WithLogger(logger),
		regservice.WithAuditPublisher(publisher),
		regservice.WithMetrics(regMetrics),
	}
	if a.redis != nil {
		regOpts = append(regOpts, regservice.WithLocker(a.redis.Locker()))
	}
	a.Registration = regservice.New(a.Parties, outbound, cfg.Registration, ours, cfg.Server.PublicURL, regOpts...)

	a.Locations = locservice.New(connectors,
		locservice.WithLogger(logger),
		locservice.WithMetrics(locmetrics.New()),
	)

	authMetrics := authmetrics.New()
	versions := domain.SupportedVersions()
	deps := httptransport.Deps{
		Logger:  logger,
		Metrics: metrics.New(),
		Resolver: resolver.New(a.Parties,
			resolver.WithOpenData(cfg.Server.OpenData),
			resolver.WithLogger(logger),
			resolver.WithMetrics(authMetrics),
		),
		Router:       router.New(ours, router.WithMetrics(authMetrics)),
		Versions:     versions,
		Pagination:   cfg.Pagination,
		Registration: reghandler.New(a.Registration, logger, cfg.Server.PublicURL, versions, reghandler.DefaultModules),
		Locations:    lochandler.New(a.Locations, logger, cfg.Server.PublicURL),
	}
	deps.Checks = map[string]httptransport.Check{}
	if a.pool != nil {
		deps.Checks["postgres"] = a.pool.Ping
	}
	if a.redis != nil {
		deps.Checks["redis"] = a.redis.Health
	}
	if a.kafka != nil {
		deps.Checks["kafka"] = a.kafka.Ping
	}
	if cfg.Server.AdminToken != "" {
		deps.Admin = admin.New(a.Parties, a.Registration, logger, cfg.Server.AdminToken)
	}
	a.Handler = httptransport.NewRouter(deps)

	if a.pool != nil {
		client, err := jobs.NewClient(a.pool, a.Parties, logger, cfg.Jobs.PruneInterval)
		if err != nil {
			return nil, fmt.Errorf("create job client: %w", err)
		}
		a.scheduler = client
	} else {
		a.scheduler = jobs.NewTicker(a.Parties, logger, cfg.Jobs.PruneInterval)
	}

	ok = true
	return a, nil
}

func (a *App) auditPublisher(ctx context.Context) (*audit.Publisher, error) {
	if len(a.Config.Kafka.Brokers) == 0 {
		return audit.NewPublisher(audit.NewInMemoryStore()), nil
	}
	store, err := audit.NewKafkaStore(a.Config.Kafka.Brokers, a.Config.Kafka.AuditTopic)
	if err != nil {
		return nil, err
	}
	a.kafka = store
	if a.Config.Kafka.CreateTopic {
		if err := store.EnsureTopic(ctx, 3, 1); err != nil {
			return nil, err
		}
	}
	queue := audit.NewQueue(auditQueueSize)
	a.auditWorker = audit.NewWorker(store, queue.Inbox(), a.Logger)
	return audit.NewPublisher(queue), nil
}

// Run serves HTTP and runs background work until ctx is cancelled, then
// shuts down within the configured timeout.
func (a *App) Run(ctx context.Context) error {
	srv := httpserver.New(a.Config.Server.Addr, a.Handler)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfoContext(gctx, "starting OCPI server", "addr", srv.Addr, "public_url", a.Config.Server.PublicURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if err := a.scheduler.Start(gctx); err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	if a.auditWorker != nil {
		g.Go(func() error {
			if err := a.auditWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		a.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		var errs []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		if err := a.waitHandshakes(shutdownCtx); err != nil {
			errs = append(errs, err)
		}
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop jobs: %w", err))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	a.Close()
	return err
}

// waitHandshakes lets background handshakes reach a final state.
func (a *App) waitHandshakes(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.Registration.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("handshakes still running at shutdown: %w", ctx.Err())
	}
}

// Close releases backend connections. It is safe to call more than once.
func (a *App) Close() {
	if a.kafka != nil {
		a.kafka.Close()
		a.kafka = nil
	}
	if a.redis != nil {
		_ = a.redis.Close()
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
}

// Register runs one outbound handshake synchronously; used by the CLI.
func (a *App) Register(ctx context.Context, key domain.PartyKey, renew bool) (string, error) {
	fn := a.Registration.Register
	if renew {
		fn = a.Registration.Renew
	}
	out, err := fn(ctx, key)
	return string(out.State), err
}
