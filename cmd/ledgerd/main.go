package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tranchebook/internal/approval"
	"tranchebook/internal/documents"
	"tranchebook/internal/events"
	"tranchebook/internal/executor"
	executormetrics "tranchebook/internal/executor/metrics"
	"tranchebook/internal/ledger"
	"tranchebook/internal/operator"
	"tranchebook/internal/platform/config"
	"tranchebook/internal/platform/httpserver"
	"tranchebook/internal/platform/logger"
	platformmetrics "tranchebook/internal/platform/metrics"
	"tranchebook/internal/platform/postgres"
	platformredis "tranchebook/internal/platform/redis"
	"tranchebook/internal/restriction"
	"tranchebook/internal/tranche"
	httptransport "tranchebook/internal/transport/http"
	"tranchebook/internal/validation"
	"tranchebook/pkg/domain"
)

// main wires the dependency graph and keeps the server lifecycle small.
// Every backend is optional: with nothing configured the service runs fully
// in memory.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	controller, err := domain.ParseAddress(cfg.Controller)
	if err != nil {
		log.Error("invalid controller address", "error", err)
		os.Exit(1)
	}

	// Persistence.
	db, err := postgres.Open(cfg.PostgresDSN)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	redisClient, err := platformredis.New(cfg.RedisURL)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}

	var store ledger.Store
	var docStore documents.Store
	execOpts := []executor.Option{
		executor.WithMetrics(executormetrics.New()),
	}
	switch {
	case db != nil:
		store = ledger.NewPostgres(db)
		docStore = documents.NewPostgresStore(db)
		execOpts = append(execOpts, executor.WithUnitOfWork(postgres.NewUnitOfWork(db)))
	default:
		memOpts := make([]ledger.MemoryOption, 0, 1)
		if len(cfg.GlobalOperators) > 0 {
			ops := make([]domain.Address, 0, len(cfg.GlobalOperators))
			for _, raw := range cfg.GlobalOperators {
				op, err := domain.ParseAddress(raw)
				if err != nil {
					log.Error("invalid global operator", "operator", raw, "error", err)
					os.Exit(1)
				}
				ops = append(ops, op)
			}
			memOpts = append(memOpts, ledger.WithGlobalOperators(ops...))
		}
		for name, rawOps := range cfg.TrancheOperators {
			tr, err := domain.ParseTranche(name)
			if err != nil {
				log.Error("invalid tranche operator seed", "tranche", name, "error", err)
				os.Exit(1)
			}
			ops := make([]domain.Address, 0, len(rawOps))
			for _, raw := range rawOps {
				op, err := domain.ParseAddress(raw)
				if err != nil {
					log.Error("invalid tranche operator", "operator", raw, "error", err)
					os.Exit(1)
				}
				ops = append(ops, op)
			}
			memOpts = append(memOpts, ledger.WithTrancheOperators(tr, ops...))
		}
		store = ledger.NewMemory(memOpts...)
		docStore = documents.NewMemoryStore()
	}
	if redisClient != nil {
		docStore = documents.NewRedisStore(redisClient.Client)
	}

	// Events.
	var publisher events.Publisher = events.Discard{}
	if len(cfg.KafkaBrokers) > 0 {
		kafka, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		if err != nil {
			log.Error("kafka unavailable", "error", err)
			os.Exit(1)
		}
		defer kafka.Close()
		publisher = kafka
	}

	// Validation collaborators.
	var eligibility validation.EligibilityChecker = restriction.AllowAll{}
	if redisClient != nil {
		eligibility = restriction.NewRedisDenyList(redisClient.Client)
	}
	var verifier approval.Verifier = approval.None{}
	if cfg.ApprovalSecret != "" {
		ref := approval.NewReference([]byte(cfg.ApprovalSecret))
		verifier = ref
		execOpts = append(execOpts, executor.WithTicketConsumer(ref))
	}
	engineOpts := []validation.Option{}
	if cfg.Granularity > 0 {
		engineOpts = append(engineOpts, validation.WithGranularity(cfg.Granularity))
	}
	engine := validation.NewEngine(store, eligibility, restriction.AllowAll{},
		validation.NoMetadata{}, verifier, engineOpts...)

	// Core services.
	operators := operator.NewResolver(store)
	defaults := tranche.NewResolver(store)
	exec := executor.New(store, operators, defaults, engine, publisher, controller, log, execOpts...)
	docs := documents.NewService(docStore, publisher, log)

	handler := httptransport.New(exec, store, operators, docs, log,
		platformmetrics.New(), cfg.AdminToken)
	srv := httpserver.New(cfg.Addr, httptransport.NewRouter(handler))

	log.Info("starting tranchebook", "addr", cfg.Addr, "controller", controller.String())

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		_ = redisClient.Close()
	}
	if db != nil {
		_ = db.Close()
	}
}
