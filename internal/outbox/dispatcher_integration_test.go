//go:build integration

package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/persistence/postgres"
)

func TestDispatcherPublishesMessages(t *testing.T) {
	ctx := context.Background()
	pool, store := setupPostgres(t, ctx)
	seedActivity(t, ctx, store, "u1")

	producer := &stubProducer{}
	registry := &stubRegistry{id: 42}
	dispatcher := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)

	beforeDelivered := testutil.ToFloat64(deliveredCounter)
	beforeHistogram := histogramSampleCount(t)

	require.NoError(t, dispatcher.processBatch(ctx))

	require.Len(t, producer.writes, 1)
	require.Equal(t, "study_activity_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)

	require.InDelta(t, beforeDelivered+1, testutil.ToFloat64(deliveredCounter), 0.0001)
	require.Greater(t, histogramSampleCount(t), beforeHistogram)

	var published int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox WHERE published_at IS NOT NULL`).Scan(&published))
	require.Equal(t, 1, published)
}

func TestDispatcherRoutesToDLQAndReplays(t *testing.T) {
	ctx := context.Background()
	pool, store := setupPostgres(t, ctx)
	seedActivity(t, ctx, store, "u1")

	registry := &stubRegistry{id: 7}
	failing := NewDispatcher(pool, &stubProducer{err: errors.New("kafka write failed")}, registry, 10*time.Millisecond, 5)

	beforeDLQ := testutil.ToFloat64(dlqCounter.WithLabelValues("study_activity_events"))
	require.NoError(t, failing.processBatch(ctx))
	require.InDelta(t, beforeDLQ+1, testutil.ToFloat64(dlqCounter.WithLabelValues("study_activity_events")), 0.0001)

	var dlqCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE user_id = $1`, "u1").Scan(&dlqCount))
	require.Equal(t, 1, dlqCount)

	manager := NewDLQManager(pool, 3, time.Second)
	requeued, err := manager.RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, 1, requeued)

	producer := &stubProducer{}
	healthy := NewDispatcher(pool, producer, registry, 10*time.Millisecond, 5)
	require.NoError(t, healthy.processBatch(ctx))
	require.Len(t, producer.writes, 1)

	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq`).Scan(&dlqCount))
	require.Zero(t, dlqCount)
}

func TestDLQManagerQuarantinesExhaustedEntries(t *testing.T) {
	ctx := context.Background()
	pool, store := setupPostgres(t, ctx)
	seedActivity(t, ctx, store, "u1")

	failing := NewDispatcher(pool, &stubProducer{err: errors.New("down")}, &stubRegistry{id: 1}, 10*time.Millisecond, 5)
	require.NoError(t, failing.processBatch(ctx))
	_, err := pool.Exec(ctx, `UPDATE outbox_dlq SET retry_count = 3`)
	require.NoError(t, err)

	requeued, err := NewDLQManager(pool, 3, time.Second).RunOnce(ctx, 10)
	require.NoError(t, err)
	require.Zero(t, requeued)

	var quarantined int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM outbox_dlq WHERE quarantined_at IS NOT NULL`).Scan(&quarantined))
	require.Equal(t, 1, quarantined)
}

func seedActivity(t *testing.T, ctx context.Context, store *postgres.Store, userID string) {
	t.Helper()
	now := time.Now().UTC()

	_, err := store.CreateUser(ctx, domain.User{ID: userID, DisplayName: userID, CreatedAt: now})
	require.NoError(t, err)
	session, err := store.CreateSession(ctx, domain.Session{
		ID: uuid.NewString(), UserID: userID, Name: "Mathematics", Theme: "default", DailyTargetMinutes: 60, CreatedAt: now,
	})
	require.NoError(t, err)
	_, err = store.CreateActivity(ctx, domain.Activity{
		ID: uuid.NewString(), UserID: userID, SessionID: session.ID, SessionName: session.Name,
		Date: domain.DateOf(now), DurationMinutes: 25, CreatedAt: now,
	})
	require.NoError(t, err)
}

func setupPostgres(t *testing.T, ctx context.Context) (*pgxpool.Pool, *postgres.Store) {
	t.Helper()

	pg, err := postgrescontainer.RunContainer(ctx,
		postgrescontainer.WithDatabase("studytrack"),
		postgrescontainer.WithUsername("studytrack"),
		postgrescontainer.WithPassword("studytrack"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pg.Terminate(ctx) })

	connStr, err := pg.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, waitForDatabase(ctx, connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	store := postgres.NewStore(pool)
	require.NoError(t, store.Migrate(ctx))
	return pool, store
}

func histogramSampleCount(t *testing.T) uint64 {
	t.Helper()

	metric := &dto.Metric{}
	require.NoError(t, batchDuration.Write(metric))
	hist := metric.GetHistogram()
	require.NotNil(t, hist)
	return hist.GetSampleCount()
}

func waitForDatabase(ctx context.Context, connStr string) error {
	deadline := time.Now().Add(30 * time.Second)
	for {
		pool, err := pgxpool.New(ctx, connStr)
		if err == nil {
			err = pool.Ping(ctx)
			pool.Close()
			if err == nil {
				return nil
			}
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(time.Second)
	}
}
