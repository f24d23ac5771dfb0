package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/events"
)

func TestStreakProjectorRecomputesOnActivityLogged(t *testing.T) {
	store := &stubStreakStore{activities: []domain.Activity{
		{UserID: "u1", Date: "2024-05-03"},
		{UserID: "u1", Date: "2024-05-02"},
		{UserID: "u1", Date: "2024-05-02"},
		{UserID: "u1", Date: "2024-05-01"},
		{UserID: "u1", Date: "2024-04-28"},
	}}
	projector := NewStreakProjector(store, WithClock(fixedClock("2024-05-03T18:00:00Z")))

	payload, err := json.Marshal(events.ActivityLogged{UserID: "u1", SessionID: "s1", Date: "2024-05-03", DurationMinutes: 20})
	require.NoError(t, err)

	require.NoError(t, projector.Handle(context.Background(), Message{EventType: events.TypeActivityLogged, Payload: payload}))

	require.Equal(t, "u1", store.upsertUser)
	require.Equal(t, 3, store.upsertDays)
	require.Equal(t, domain.Date("2024-05-03"), store.upsertAsOf)
}

func TestStreakProjectorObservesConfiguredZone(t *testing.T) {
	loc := time.FixedZone("UTC+10", 10*60*60)
	store := &stubStreakStore{activities: []domain.Activity{{UserID: "u1", Date: "2024-05-04"}}}
	projector := NewStreakProjector(store, WithLocation(loc), WithClock(fixedClock("2024-05-03T20:00:00Z")))

	payload := []byte(`{"session_id":"s1","user_id":"u1"}`)
	require.NoError(t, projector.Handle(context.Background(), Message{EventType: events.TypeSessionDeleted, Payload: payload}))

	require.Equal(t, domain.Date("2024-05-04"), store.upsertAsOf)
	require.Equal(t, 1, store.upsertDays)
}

func TestStreakProjectorIgnoresOtherEvents(t *testing.T) {
	store := &stubStreakStore{}
	projector := NewStreakProjector(store)

	require.NoError(t, projector.Handle(context.Background(), Message{EventType: events.TypeUserDeleted, Payload: []byte(`{"user_id":"u1"}`)}))
	require.Empty(t, store.upsertUser)
}

func TestStreakProjectorFallsBackToHeaderUser(t *testing.T) {
	store := &stubStreakStore{}
	projector := NewStreakProjector(store, WithClock(fixedClock("2024-05-03T08:00:00Z")))

	require.NoError(t, projector.Handle(context.Background(), Message{EventType: events.TypeActivityLogged, UserID: "u9", Payload: []byte(`{}`)}))
	require.Equal(t, "u9", store.upsertUser)
	require.Zero(t, store.upsertDays)

	err := projector.Handle(context.Background(), Message{EventType: events.TypeActivityLogged, Payload: []byte(`{}`)})
	require.ErrorIs(t, err, ErrPermanent)
}

func TestStreakProjectorSkipsDeletedUsers(t *testing.T) {
	store := &stubStreakStore{upsertErr: fmt.Errorf("upsert streak: %w", domain.ErrNotFound)}
	projector := NewStreakProjector(store)

	require.NoError(t, projector.Handle(context.Background(), Message{EventType: events.TypeActivityLogged, Payload: []byte(`{"user_id":"gone"}`)}))
}

func TestStreakProjectorSurfacesStoreErrors(t *testing.T) {
	store := &stubStreakStore{listErr: errors.New("db down")}
	projector := NewStreakProjector(store)

	err := projector.Handle(context.Background(), Message{EventType: events.TypeActivityLogged, Payload: []byte(`{"user_id":"u1"}`)})
	require.ErrorContains(t, err, "db down")
	require.NotErrorIs(t, err, ErrPermanent)

	err = projector.Handle(context.Background(), Message{EventType: events.TypeActivityLogged, Payload: []byte(`not json`)})
	require.ErrorContains(t, err, "decode activity.logged")
	require.ErrorIs(t, err, ErrPermanent)
}

type stubStreakStore struct {
	activities []domain.Activity
	listErr    error
	upsertErr  error

	upsertUser string
	upsertDays int
	upsertAsOf domain.Date
}

func (s *stubStreakStore) ListActivities(_ context.Context, userID string) ([]domain.Activity, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Activity, 0, len(s.activities))
	for _, a := range s.activities {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubStreakStore) UpsertStreak(_ context.Context, userID string, days int, asOf domain.Date) error {
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upsertUser = userID
	s.upsertDays = days
	s.upsertAsOf = asOf
	return nil
}

func fixedClock(value string) func() time.Time {
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}
