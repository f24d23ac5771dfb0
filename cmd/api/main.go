package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"example.com/studytrack/internal/api"
	"example.com/studytrack/internal/auth"
	"example.com/studytrack/internal/config"
	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/outbox"
	"example.com/studytrack/internal/persistence/local"
	"example.com/studytrack/internal/persistence/postgres"
	httptransport "example.com/studytrack/internal/transport/http"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	skip := auth.SkipPaths("/healthz", "/metrics")

	var (
		store         domain.Store
		authenticator auth.Authenticator
		dispatcher    *outbox.Dispatcher
	)

	switch cfg.StoreBackend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		defer pool.Close()

		pg := postgres.NewStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			log.Fatalf("failed to apply schema: %v", err)
		}
		store = pg

		if cfg.PublishEvents() {
			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()

			registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
			dispatcher = outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize)
			go dispatcher.Start(ctx)
		}
	case config.BackendLocal:
		backend, err := local.OpenSQLite(ctx, cfg.LocalDBPath)
		if err != nil {
			log.Fatalf("failed to open local database: %v", err)
		}
		defer backend.Close()

		ls, err := local.Open(ctx, backend)
		if err != nil {
			log.Fatalf("failed to load local database: %v", err)
		}
		store = ls
		if cfg.JWTSecret == "" {
			authenticator = auth.LocalIdentity{Current: ls.CurrentUserID, Skipper: skip}
		}
	}

	if authenticator == nil {
		authenticator = auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}, skip)
	}

	service := domain.NewService(store)
	handler := api.NewHandler(service, api.WithLocation(cfg.TimeZone))

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	logger := log.New(os.Stderr, "", log.LstdFlags)
	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}, httptransport.Chain(mux,
		httptransport.LogRequests(logger),
		httptransport.CORS(cfg.CORSOrigins),
		authenticator.Wrap,
	))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("studytrack api listening on %s (store=%s)", cfg.HTTPAddress, cfg.StoreBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}

	if dispatcher != nil {
		dispatcher.Wait()
	}
}
