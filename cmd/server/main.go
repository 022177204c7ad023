// Command server runs the evidence registration and access gateway. Backends
// are optional: every unset connection string selects the in-memory
// implementation, so a bare `go run ./cmd/server` serves a self-contained
// instance for development.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"custodia/internal/access"
	"custodia/internal/cases"
	"custodia/internal/content"
	"custodia/internal/events"
	"custodia/internal/index"
	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	platformredis "custodia/internal/platform/redis"
	"custodia/internal/registration"
	httptransport "custodia/internal/transport/http"
)

func main() {
	log := logger.New()
	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()
	m := metrics.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Index store.
	var indexStore index.Store
	if cfg.PostgresDSN != "" {
		pg, err := index.NewPostgres(cfg.PostgresDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		indexStore = pg
		log.Info("index store: postgres")
	} else {
		indexStore = index.NewInMemoryStore()
		log.Info("index store: in-memory")
	}

	// Access cache and idempotency ledger, shared Redis when configured.
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	var (
		accessCache access.Cache
		idempotency registration.IdempotencyLedger
	)
	if redisClient != nil {
		defer redisClient.Close()
		accessCache = access.NewRedisCache(redisClient.Client, cfg.AccessCacheTTL)
		idempotency = registration.NewRedisIdempotency(redisClient.Client, cfg.IdempotencyTTL)
		log.Info("access cache: redis")
	} else {
		accessCache = access.NewInMemoryCache(cfg.AccessCacheTTL)
		idempotency = registration.NewMemoryIdempotency(cfg.IdempotencyTTL)
		log.Info("access cache: in-memory")
	}

	// Ledger.
	var ledgerClient ledger.Client
	if cfg.LedgerURL != "" {
		ledgerClient = ledger.NewHTTPClient(cfg.LedgerURL, cfg.CallTimeout)
		log.Info("ledger: remote", "url", cfg.LedgerURL)
	} else {
		ledgerClient = ledger.NewMemory()
		log.Info("ledger: in-memory")
	}

	// Content store.
	var contentStore content.Store
	if cfg.PinnerURL != "" {
		contentStore = content.NewPinner(cfg.PinnerURL, cfg.ContentGateway, cfg.PinnerAPIKey, cfg.PinnerSecret, cfg.CallTimeout)
		log.Info("content store: pinner", "url", cfg.PinnerURL)
	} else {
		contentStore = content.NewMemory()
		log.Info("content store: in-memory")
	}

	// Ledger mutation event stream. Without brokers, mutations still converge
	// through proactive invalidation and the inline index upsert.
	var publisher events.Publisher = events.Nop{}
	var consumer *events.KafkaConsumer
	if len(cfg.KafkaBrokers) > 0 {
		kafkaPublisher, err := events.NewKafkaPublisher(ctx, cfg.KafkaBrokers, cfg.KafkaTopic)
		if err != nil {
			return err
		}
		defer kafkaPublisher.Close()
		publisher = kafkaPublisher

		syncer := events.NewSyncer(ledgerClient, indexStore, accessCache, log)
		consumer, err = events.NewKafkaConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, syncer, log)
		if err != nil {
			return err
		}
		log.Info("event stream: kafka", "topic", cfg.KafkaTopic)
	}

	retryWorker := registration.NewIndexRetryWorker(indexStore, log, m)
	coordinator := registration.NewCoordinator(
		contentStore, ledgerClient, indexStore, idempotency, retryWorker,
		publisher, log, m, cfg.CallTimeout, cfg.ContentPutAttempts,
	)
	reconciler := access.NewReconciler(ledgerClient, accessCache, publisher, log, m)
	linker := cases.NewLinker(indexStore, log, m)

	router := httptransport.NewRouter(
		httptransport.NewRegistrationHandler(coordinator),
		httptransport.NewAccessHandler(reconciler),
		httptransport.NewCaseHandler(linker),
		log,
		cfg.CallTimeout*4,
	)
	server := httpserver.New(cfg.Addr, router, log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go func() {
		if err := retryWorker.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("index retry worker stopped", "error", err)
		}
	}()
	if consumer != nil {
		go func() {
			if err := consumer.Run(workerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("event consumer stopped", "error", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
