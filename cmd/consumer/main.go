package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"example.com/studytrack/internal/config"
	"example.com/studytrack/internal/consumer"
	"example.com/studytrack/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()
	if len(cfg.KafkaBrokers) == 0 {
		log.Fatalf("KAFKA_BROKERS is required for the streak consumer")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	store := postgres.NewStore(pool)
	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("failed to apply schema: %v", err)
	}
	projector := consumer.NewStreakProjector(store, consumer.WithLocation(cfg.TimeZone))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Printf("streak consumer metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	var wg sync.WaitGroup
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:        cfg.KafkaBrokers,
			GroupID:        cfg.ConsumerGroupID,
			Topic:          topic,
			MinBytes:       1,
			MaxBytes:       10e6,
			MaxWait:        time.Second,
			CommitInterval: time.Second,
			StartOffset:    kafka.FirstOffset,
		})
		processor := consumer.NewProcessor(reader, projector)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer reader.Close()

			log.Printf("streak projector started (topic=%s, group=%s)", topic, cfg.ConsumerGroupID)
			if err := processor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("streak projector stopped (topic=%s): %v", topic, err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("streak consumer shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	wg.Wait()
}
