package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lorefall/lorefall-backend/internal/adapter/lease"
	"github.com/lorefall/lorefall-backend/internal/adapter/notify"
	"github.com/lorefall/lorefall-backend/internal/adapter/ops"
	"github.com/lorefall/lorefall-backend/internal/adapter/repository/memory"
	"github.com/lorefall/lorefall-backend/internal/adapter/repository/postgres"
	"github.com/lorefall/lorefall-backend/internal/domain"
	"github.com/lorefall/lorefall-backend/internal/platform/config"
	"github.com/lorefall/lorefall-backend/internal/platform/logger"
	"github.com/lorefall/lorefall-backend/internal/platform/metrics"
	"github.com/lorefall/lorefall-backend/internal/usecase/eligibility"
	"github.com/lorefall/lorefall-backend/internal/usecase/overview"
	"github.com/lorefall/lorefall-backend/internal/usecase/ruleengine"
	"github.com/lorefall/lorefall-backend/internal/usecase/scheduler"
	"github.com/lorefall/lorefall-backend/internal/usecase/seeder"
	"github.com/lorefall/lorefall-backend/internal/usecase/settlement"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Verbose)

	var (
		domainRepo      domain.DomainRepository
		candidateRepo   domain.CandidateRepository
		settlementStore domain.SettlementStore
		presence        domain.PresenceOracle
	)

	if cfg.DatabaseURL != "" {
		db, err := postgres.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := db.Migrate(); err != nil {
			log.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		domainRepo = postgres.NewDomainRepository(db)
		candidateRepo = postgres.NewCandidateRepository(db)
		settlementStore = postgres.NewSettlementStore(db)
		presence = postgres.NewPresenceOracle(db)
	} else {
		// No database configured: run against an in-memory store seeded
		// with a demo world. Local development only.
		store := memory.NewStore()
		if err := seeder.NewDemoSeeder(store).Seed(context.Background(), time.Now()); err != nil {
			log.Error("failed to seed demo world", "error", err)
			os.Exit(1)
		}
		log.Warn("DATABASE_URL not set, running in-memory with demo data",
			"domain", seeder.DemoDomainID)

		domainRepo = store.Domains()
		candidateRepo = store.Candidates()
		settlementStore = store
		presence = store.Presence()
	}

	var sink domain.NotificationSink
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink, err := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			log.Error("failed to create kafka sink", "error", err)
			os.Exit(1)
		}
		defer kafkaSink.Close()
		sink = kafkaSink
		log.Info("kafka notification sink enabled", "topic", cfg.KafkaTopic)
	}

	var leaser scheduler.Leaser
	if cfg.RedisURL != "" {
		redisLeaser, err := lease.NewRedisLeaser(cfg.RedisURL, cfg.LeaseTTL)
		if err != nil {
			log.Error("failed to create redis leaser", "error", err)
			os.Exit(1)
		}
		defer redisLeaser.Close()
		leaser = redisLeaser
		log.Info("distribution lease enabled", "ttl", cfg.LeaseTTL)
	}

	m := metrics.New()
	filter := eligibility.NewFilter(presence)
	engine := ruleengine.NewEngine(candidateRepo, filter)
	writer := settlement.NewWriter(settlementStore, sink, log)
	executor := scheduler.NewExecutor(domainRepo, engine, writer, log, m)

	sched, err := scheduler.New(scheduler.Config{
		Domains:  domainRepo,
		Executor: executor,
		Logger:   log,
		Interval: cfg.TickInterval,
		Lease:    leaser,
		Metrics:  m,
	})
	if err != nil {
		log.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	overviews := overview.NewOverviewService(domainRepo)
	opsServer := ops.NewServer(cfg.OpsAddr, domainRepo, candidateRepo, overviews, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return opsServer.Run(ctx) })

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		log.Error("engine exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("engine stopped")
}
