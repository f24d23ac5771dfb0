package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/events"
	"example.com/studytrack/internal/observability"
	"example.com/studytrack/internal/progress"
)

// StreakStore is the slice of the remote store the projector needs.
type StreakStore interface {
	ListActivities(ctx context.Context, userID string) ([]domain.Activity, error)
	UpsertStreak(ctx context.Context, userID string, days int, asOf domain.Date) error
}

// StreakProjector keeps the user_streaks projection current by recomputing a
// user's streak whenever their activity history changes.
type StreakProjector struct {
	store    StreakStore
	location *time.Location
	now      func() time.Time
}

// ProjectorOption configures a StreakProjector.
type ProjectorOption func(*StreakProjector)

// WithLocation sets the zone in which "today" is observed. Defaults to UTC.
func WithLocation(loc *time.Location) ProjectorOption {
	return func(p *StreakProjector) {
		if loc != nil {
			p.location = loc
		}
	}
}

// WithClock overrides the projector's time source.
func WithClock(now func() time.Time) ProjectorOption {
	return func(p *StreakProjector) {
		p.now = now
	}
}

// NewStreakProjector constructs a projector over store.
func NewStreakProjector(store StreakStore, opts ...ProjectorOption) *StreakProjector {
	p := &StreakProjector{store: store, location: time.UTC, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle recomputes the streak for activity.logged and session.deleted events.
// Other event types are acknowledged without work.
func (p *StreakProjector) Handle(ctx context.Context, msg Message) error {
	var userID string
	switch msg.EventType {
	case events.TypeActivityLogged:
		var evt events.ActivityLogged
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w: %w", msg.EventType, ErrPermanent, err)
		}
		userID = evt.UserID
	case events.TypeSessionDeleted:
		var evt events.SessionDeleted
		if err := json.Unmarshal(msg.Payload, &evt); err != nil {
			return fmt.Errorf("decode %s: %w: %w", msg.EventType, ErrPermanent, err)
		}
		userID = evt.UserID
	default:
		return nil
	}
	if userID == "" {
		userID = msg.UserID
	}
	if userID == "" {
		return fmt.Errorf("event carries no user id: %w", ErrPermanent)
	}
	return p.project(ctx, userID)
}

func (p *StreakProjector) project(ctx context.Context, userID string) error {
	activities, err := p.store.ListActivities(ctx, userID)
	if err != nil {
		return err
	}
	today := domain.Today(p.location, p.now())
	days := progress.ActivityStreak(activities, today)

	if err := p.store.UpsertStreak(ctx, userID, days, today); err != nil {
		// The user was deleted after the event was written; nothing to project.
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
	observability.RecordStreakProjected(days)
	return nil
}
