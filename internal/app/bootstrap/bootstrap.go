package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	milestoneescrow "milestonepay/contexts/engagement-finance/milestone-escrow"
	blobadapter "milestonepay/contexts/engagement-finance/milestone-escrow/adapters/blob"
	"milestonepay/contexts/engagement-finance/milestone-escrow/adapters/memory"
	postgresadapter "milestonepay/contexts/engagement-finance/milestone-escrow/adapters/postgres"
	prometheusadapter "milestonepay/contexts/engagement-finance/milestone-escrow/adapters/prometheus"
	redisadapter "milestonepay/contexts/engagement-finance/milestone-escrow/adapters/redis"
	stripeadapter "milestonepay/contexts/engagement-finance/milestone-escrow/adapters/stripe"
	vertexaiadapter "milestonepay/contexts/engagement-finance/milestone-escrow/adapters/vertexai"
	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/services"
	"milestonepay/contexts/engagement-finance/milestone-escrow/ports"
	"milestonepay/internal/platform/cache"
	"milestonepay/internal/platform/config"
	"milestonepay/internal/platform/db"
	"milestonepay/internal/platform/httpserver"
	"milestonepay/internal/platform/messaging"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.
// Each backing service is optional: without its setting the process falls
// back to the in-memory or sandbox adapter and logs that it did.

type APIApp struct {
	server   *httpserver.Server
	embedded *WorkerApp
	closers  []func() error
	logger   *slog.Logger
}

type WorkerApp struct {
	module             milestoneescrow.Module
	pollInterval       time.Duration
	enableVerification bool
	enableRelay        bool
	closers            []func() error
	logger             *slog.Logger
}

type runtime struct {
	module   milestoneescrow.Module
	registry *prometheus.Registry
	external bool
	closers  []func() error
}

func (r *runtime) close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func buildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger, withVerifier bool) (*runtime, error) {
	rt := &runtime{registry: prometheus.NewRegistry()}
	rt.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps := milestoneescrow.Dependencies{
		Metrics:               prometheusadapter.NewMetrics(rt.registry),
		Logger:                logger,
		Fees:                  services.FeePolicy{Rate: cfg.FeeRate, ApplyToPartial: cfg.FeeOnPartial},
		Assigner:              services.NewAdminAssigner(cfg.AdminAssignment),
		VerificationThreshold: cfg.VerificationThreshold,
		VerifyTimeout:         cfg.VerifyTimeout,
		IdempotencyTTL:        cfg.IdempotencyTTL,
		DedupTTL:              cfg.IdempotencyTTL,
		OutboxBatchSize:       cfg.OutboxBatchSize,
	}

	if strings.TrimSpace(cfg.PostgresDSN) != "" {
		pg, err := db.Connect(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pg.Close)
		if err := postgresadapter.AutoMigrate(pg.DB.WithContext(ctx)); err != nil {
			_ = rt.close()
			return nil, fmt.Errorf("migrate escrow schema: %w", err)
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		setStores(&deps, repo, postgresadapter.SystemClock{}, postgresadapter.UUIDGenerator{})
		deps.Dedup = repo
	} else {
		logFallback(logger, "postgres", "in-memory store")
		store := memory.NewStore(memory.Seed{})
		setStores(&deps, store, store, store)
		deps.Dedup = store
	}

	if strings.TrimSpace(cfg.RedisAddr) != "" {
		rdb, err := cache.Connect(ctx, cache.RedisOptions{Addr: cfg.RedisAddr})
		if err != nil {
			_ = rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, rdb.Close)
		deps.PayerCache = redisadapter.NewPayerProfileCache(rdb, cfg.PayerCacheTTL)
		deps.Dedup = redisadapter.NewEventDeduper(rdb)
	}

	if strings.TrimSpace(cfg.StripeSecretKey) != "" {
		funds, err := stripeadapter.NewFundsService(cfg.StripeSecretKey, logger)
		if err != nil {
			_ = rt.close()
			return nil, err
		}
		deps.Funds = funds
	} else {
		logFallback(logger, "stripe", "funds sandbox")
		deps.Funds = memory.NewFundsSandbox()
	}

	blobs, err := blobadapter.NewFileStore(cfg.BlobRoot, cfg.BlobPublicBaseURL)
	if err != nil {
		_ = rt.close()
		return nil, err
	}
	deps.Blobs = blobs

	if withVerifier {
		if strings.TrimSpace(cfg.VertexProjectID) != "" {
			verifier, err := vertexaiadapter.NewVerifier(ctx, vertexaiadapter.Config{
				ProjectID: cfg.VertexProjectID,
				Location:  cfg.VertexLocation,
				Model:     cfg.VertexModel,
			}, logger)
			if err != nil {
				_ = rt.close()
				return nil, err
			}
			rt.closers = append(rt.closers, verifier.Close)
			deps.Verifier = verifier
		} else {
			// Every submission goes to manual review.
			logFallback(logger, "vertex ai", "scripted verifier")
			deps.Verifier = memory.NewScriptedVerifier()
		}
	}

	if strings.TrimSpace(cfg.RabbitMQURL) != "" {
		broker, err := messaging.NewRabbitMQ(cfg.RabbitMQURL, logger)
		if err != nil {
			_ = rt.close()
			return nil, err
		}
		rt.closers = append(rt.closers, broker.Close)
		deps.Publisher = broker
		deps.Subscriber = broker
		rt.external = true
	} else {
		logFallback(logger, "rabbitmq", "in-process bus")
		bus := messaging.NewBus(logger)
		deps.Publisher = bus
		deps.Subscriber = bus
	}

	rt.module = milestoneescrow.NewModule(deps)
	return rt, nil
}

type aggregateStore interface {
	ports.ProjectRepository
	ports.AccountDirectory
	ports.MilestoneRepository
	ports.PaymentRepository
	ports.SubmissionRepository
	ports.DisputeRepository
	ports.WalletRepository
	ports.AggregateWriter
	ports.IdempotencyStore
	ports.OutboxRepository
}

func setStores(deps *milestoneescrow.Dependencies, store aggregateStore, clock ports.Clock, ids ports.IDGenerator) {
	deps.Projects = store
	deps.Accounts = store
	deps.Milestones = store
	deps.Payments = store
	deps.Submissions = store
	deps.Disputes = store
	deps.Wallets = store
	deps.Writer = store
	deps.Idempotency = store
	deps.Outbox = store
	deps.Clock = clock
	deps.IDGenerator = ids
}

func logFallback(logger *slog.Logger, backend string, replacement string) {
	logger.Warn("backend not configured, using fallback",
		"event", "bootstrap_backend_fallback",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"backend", backend,
		"fallback", replacement,
	)
}

// BuildAPI wires the HTTP process. Without RabbitMQ the API also runs the
// worker loops in-process, since the in-process bus cannot cross processes.
func BuildAPI(ctx context.Context, cfg config.Config) (*APIApp, error) {
	logger := slog.Default().With("service", cfg.ServiceName, "process", "api")

	embedded := strings.TrimSpace(cfg.RabbitMQURL) == ""
	rt, err := buildRuntime(ctx, cfg, logger, embedded)
	if err != nil {
		return nil, err
	}

	server := httpserver.New(rt.module, httpserver.Options{
		Addr:      normalizeAddr(cfg.HTTPPort),
		JWTSecret: cfg.JWTSecret,
		BlobRoot:  cfg.BlobRoot,
		Gatherer:  rt.registry,
	}, logger)

	app := &APIApp{
		server:  server,
		closers: []func() error{rt.close},
		logger:  logger,
	}
	if embedded {
		app.embedded = newWorkerApp(rt.module, cfg, logger)
	}
	return app, nil
}

func BuildWorker(ctx context.Context, cfg config.Config) (*WorkerApp, error) {
	logger := slog.Default().With("service", cfg.ServiceName, "process", "worker")

	rt, err := buildRuntime(ctx, cfg, logger, true)
	if err != nil {
		return nil, err
	}
	if !rt.external {
		logger.Warn("worker started without a broker; only events published by this process are consumed",
			"event", "bootstrap_worker_without_broker",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	app := newWorkerApp(rt.module, cfg, logger)
	app.closers = []func() error{rt.close}
	return app, nil
}

func newWorkerApp(module milestoneescrow.Module, cfg config.Config, logger *slog.Logger) *WorkerApp {
	return &WorkerApp{
		module:             module,
		pollInterval:       cfg.OutboxPollInterval,
		enableVerification: cfg.EnableVerificationConsumer,
		enableRelay:        cfg.EnableOutboxRelay,
		logger:             logger,
	}
}

func (a *APIApp) Run(ctx context.Context) error {
	a.logger.Info("api app started",
		"event", "bootstrap_api_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"embedded_worker", a.embedded != nil,
	)

	errs := make(chan error, 2)
	go func() { errs <- a.server.Start() }()
	if a.embedded != nil {
		go func() { errs <- a.embedded.Run(ctx) }()
	}

	select {
	case <-ctx.Done():
	case err := <-errs:
		if err != nil {
			return err
		}
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return a.server.Shutdown(shutdownCtx)
}

func (a *APIApp) Close() error {
	return closeAll(a.closers)
}

func (w *WorkerApp) Run(ctx context.Context) error {
	if w.enableVerification {
		if err := w.module.Verification.Start(ctx); err != nil {
			return err
		}
	}

	pollInterval := w.pollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"poll_interval", pollInterval.String(),
		"verification_consumer", w.enableVerification,
		"outbox_relay", w.enableRelay,
	)

	for {
		if w.enableRelay {
			if err := w.module.OutboxRelay.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				// Rows stay pending and are retried on the next tick.
				w.logger.Error("outbox relay cycle failed",
					"event", "bootstrap_outbox_relay_failed",
					"module", "internal/app/bootstrap",
					"layer", "platform",
					"error", err.Error(),
				)
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (w *WorkerApp) Close() error {
	return closeAll(w.closers)
}

func closeAll(closers []func() error) error {
	var errs []error
	for _, closer := range closers {
		if err := closer(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
