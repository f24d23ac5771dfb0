// Package postgres implements the remote relational store. Cascading deletes
// are enforced by foreign keys; every write also records its outbox events in
// the same transaction.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/events"
	"example.com/studytrack/internal/observability"
)

//go:embed schema.sql
var schemaSQL string

const (
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// Store provides Postgres-backed persistence for users, sessions and activities.
type Store struct {
	pool *pgxpool.Pool
}

var _ domain.Store = (*Store)(nil)

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schemaSQL); err != nil {
		return domain.PersistenceError("migrate", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, op string, fn func(pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return classify(op, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return classify(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(op, err)
	}
	return nil
}

// classify maps driver errors onto the domain taxonomy.
func classify(op string, err error) error {
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrValidation) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgForeignKeyViolation:
			return fmt.Errorf("%s: referenced record missing (%s): %w", op, pgErr.ConstraintName, domain.ErrNotFound)
		case pgUniqueViolation:
			return &domain.ValidationError{Field: "id", Reason: "already exists"}
		case pgCheckViolation:
			return &domain.ValidationError{Field: pgErr.ColumnName, Reason: pgErr.Message}
		}
	}
	observability.RecordStoreError("postgres", op)
	return domain.PersistenceError(op, err)
}

const userColumns = `user_id, display_name, photo, created_at`

func scanUser(row pgx.Row) (domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.DisplayName, &u.Photo, &u.CreatedAt)
	return u, err
}

// CreateUser inserts a new profile.
func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	err := s.inTx(ctx, "create user", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4)`,
			user.ID, user.DisplayName, user.Photo, user.CreatedAt)
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// UpsertUser inserts the profile or refreshes its display fields.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	var stored domain.User
	err := s.inTx(ctx, "upsert user", func(tx pgx.Tx) error {
		var err error
		stored, err = scanUser(tx.QueryRow(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES ($1,$2,$3,$4)
             ON CONFLICT (user_id) DO UPDATE SET display_name = EXCLUDED.display_name, photo = EXCLUDED.photo
             RETURNING `+userColumns,
			user.ID, user.DisplayName, user.Photo, user.CreatedAt))
		return err
	})
	if err != nil {
		return domain.User{}, err
	}
	return stored, nil
}

// GetUser returns nil when the profile does not exist.
func (s *Store) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE user_id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, classify("get user", err)
	}
	return &user, nil
}

// ListUsers returns every profile in creation order.
func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, user_id`)
	if err != nil {
		return nil, classify("list users", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify("list users", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list users", err)
	}
	return users, nil
}

// DeleteUser removes the profile; the database cascades to sessions and activities.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.inTx(ctx, "delete user", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE user_id=$1`, id)
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}
		return insertOutbox(ctx, tx, id, "user", id, events.TypeUserDeleted, events.UserDeleted{
			UserID:     id,
			OccurredAt: time.Now().UTC(),
		})
	})
}

const sessionColumns = `session_id, user_id, name, description, theme, daily_target_minutes, created_at`

func scanSession(row pgx.Row) (domain.Session, error) {
	var sess domain.Session
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Name, &sess.Description, &sess.Theme, &sess.DailyTargetMinutes, &sess.CreatedAt)
	return sess, err
}

// ListSessions returns the user's sessions in creation order.
func (s *Store) ListSessions(ctx context.Context, userID string) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM study_sessions WHERE user_id=$1 ORDER BY created_at, session_id`, userID)
	if err != nil {
		return nil, classify("list sessions", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, classify("list sessions", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list sessions", err)
	}
	return sessions, nil
}

// CreateSession inserts a validated session. A missing owner yields ErrNotFound.
func (s *Store) CreateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	err := s.inTx(ctx, "create session", func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO study_sessions (`+sessionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			session.ID, session.UserID, session.Name, session.Description, session.Theme, session.DailyTargetMinutes, session.CreatedAt)
		return err
	})
	if err != nil {
		return domain.Session{}, err
	}
	observability.RecordSessionCreated()
	return session, nil
}

// UpdateSession applies the non-nil patch fields to one of the user's sessions.
func (s *Store) UpdateSession(ctx context.Context, userID, id string, patch domain.SessionPatch) (domain.Session, error) {
	var updated domain.Session
	err := s.inTx(ctx, "update session", func(tx pgx.Tx) error {
		var err error
		updated, err = scanSession(tx.QueryRow(ctx,
			`UPDATE study_sessions
                SET name = COALESCE($3, name),
                    description = COALESCE($4, description),
                    theme = COALESCE($5, theme),
                    daily_target_minutes = COALESCE($6, daily_target_minutes)
              WHERE session_id=$1 AND user_id=$2
          RETURNING `+sessionColumns,
			id, userID, patch.Name, patch.Description, patch.Theme, patch.DailyTargetMinutes))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFoundError("session", id)
		}
		return err
	})
	if err != nil {
		return domain.Session{}, err
	}
	return updated, nil
}

// DeleteSession removes the session; activities go with it through the cascade.
func (s *Store) DeleteSession(ctx context.Context, userID, id string) error {
	return s.inTx(ctx, "delete session", func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM study_sessions WHERE session_id=$1 AND user_id=$2`, id, userID)
		if err != nil || tag.RowsAffected() == 0 {
			return err
		}
		return insertSessionDeleted(ctx, tx, userID, id)
	})
}

// ReplaceSessions makes the user's session collection equal to sessions in one transaction.
func (s *Store) ReplaceSessions(ctx context.Context, userID string, sessions []domain.Session) error {
	ids := make([]string, 0, len(sessions))
	for _, sess := range sessions {
		ids = append(ids, sess.ID)
	}

	return s.inTx(ctx, "replace sessions", func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE user_id=$1)`, userID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return domain.NotFoundError("user", userID)
		}

		var foreign int
		if err := tx.QueryRow(ctx,
			`SELECT COUNT(*) FROM study_sessions WHERE session_id = ANY($1) AND user_id <> $2`, ids, userID,
		).Scan(&foreign); err != nil {
			return err
		}
		if foreign > 0 {
			return &domain.ValidationError{Field: "id", Reason: "import references sessions of another user"}
		}

		rows, err := tx.Query(ctx,
			`DELETE FROM study_sessions WHERE user_id=$1 AND NOT (session_id = ANY($2)) RETURNING session_id`, userID, ids)
		if err != nil {
			return err
		}
		removed, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return err
		}
		for _, id := range removed {
			if err := insertSessionDeleted(ctx, tx, userID, id); err != nil {
				return err
			}
		}

		for _, sess := range sessions {
			if _, err := tx.Exec(ctx,
				`INSERT INTO study_sessions (`+sessionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)
                 ON CONFLICT (session_id) DO UPDATE
                    SET name = EXCLUDED.name,
                        description = EXCLUDED.description,
                        theme = EXCLUDED.theme,
                        daily_target_minutes = EXCLUDED.daily_target_minutes,
                        created_at = EXCLUDED.created_at`,
				sess.ID, userID, sess.Name, sess.Description, sess.Theme, sess.DailyTargetMinutes, sess.CreatedAt,
			); err != nil {
				return err
			}
		}
		return nil
	})
}

const activityColumns = `activity_id, user_id, session_id, session_name, study_date, duration_minutes, notes, media, created_at`

func scanActivity(row pgx.Row) (domain.Activity, error) {
	var (
		a    domain.Activity
		date time.Time
	)
	if err := row.Scan(&a.ID, &a.UserID, &a.SessionID, &a.SessionName, &date, &a.DurationMinutes, &a.Notes, &a.Media, &a.CreatedAt); err != nil {
		return domain.Activity{}, err
	}
	a.Date = domain.DateOf(date.UTC())
	if len(a.Media) == 0 {
		a.Media = nil
	}
	return a, nil
}

// ListActivities returns the user's activities ordered by study date, newest first.
func (s *Store) ListActivities(ctx context.Context, userID string) ([]domain.Activity, error) {
	return s.queryActivities(ctx, "list activities",
		`SELECT `+activityColumns+` FROM study_activities WHERE user_id=$1
          ORDER BY study_date DESC, created_at DESC, activity_id COLLATE "C" DESC`, userID)
}

// ListSessionActivities narrows ListActivities to one session.
func (s *Store) ListSessionActivities(ctx context.Context, userID, sessionID string) ([]domain.Activity, error) {
	return s.queryActivities(ctx, "list session activities",
		`SELECT `+activityColumns+` FROM study_activities WHERE user_id=$1 AND session_id=$2
          ORDER BY study_date DESC, created_at DESC, activity_id COLLATE "C" DESC`, userID, sessionID)
}

func (s *Store) queryActivities(ctx context.Context, op, query string, args ...any) ([]domain.Activity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	activities := make([]domain.Activity, 0)
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return activities, nil
}

// CreateActivity inserts the activity and its activity.logged outbox event.
// The session must belong to the activity's user.
func (s *Store) CreateActivity(ctx context.Context, activity domain.Activity) (domain.Activity, error) {
	media := activity.Media
	if media == nil {
		media = []string{}
	}

	err := s.inTx(ctx, "create activity", func(tx pgx.Tx) error {
		var owner string
		err := tx.QueryRow(ctx, `SELECT user_id FROM study_sessions WHERE session_id=$1 FOR SHARE`, activity.SessionID).Scan(&owner)
		if errors.Is(err, pgx.ErrNoRows) || (err == nil && owner != activity.UserID) {
			return domain.NotFoundError("session", activity.SessionID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `INSERT INTO study_activities (`+activityColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			activity.ID,
			activity.UserID,
			activity.SessionID,
			activity.SessionName,
			activity.Date.Time(),
			activity.DurationMinutes,
			activity.Notes,
			media,
			activity.CreatedAt,
		); err != nil {
			return err
		}

		return insertOutbox(ctx, tx, activity.UserID, "activity", activity.ID, events.TypeActivityLogged, events.ActivityLogged{
			ActivityID:      activity.ID,
			UserID:          activity.UserID,
			SessionID:       activity.SessionID,
			SessionName:     activity.SessionName,
			Date:            activity.Date.String(),
			DurationMinutes: activity.DurationMinutes,
			CreatedAt:       activity.CreatedAt,
		})
	})
	if err != nil {
		return domain.Activity{}, err
	}
	observability.RecordActivityLogged(activity)
	return activity, nil
}

// UpsertStreak stores the projected streak of a user as of a given day.
func (s *Store) UpsertStreak(ctx context.Context, userID string, days int, asOf domain.Date) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO user_streaks (user_id, streak_days, as_of, updated_at) VALUES ($1,$2,$3,NOW())
         ON CONFLICT (user_id) DO UPDATE SET streak_days = EXCLUDED.streak_days, as_of = EXCLUDED.as_of, updated_at = NOW()`,
		userID, days, asOf.Time())
	if err != nil {
		return classify("upsert streak", err)
	}
	return nil
}

// GetStreak returns the projected streak and the day it was computed for.
func (s *Store) GetStreak(ctx context.Context, userID string) (int, domain.Date, error) {
	var (
		days int
		asOf time.Time
	)
	err := s.pool.QueryRow(ctx, `SELECT streak_days, as_of FROM user_streaks WHERE user_id=$1`, userID).Scan(&days, &asOf)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, "", domain.NotFoundError("streak", userID)
	}
	if err != nil {
		return 0, "", classify("get streak", err)
	}
	return days, domain.DateOf(asOf.UTC()), nil
}

func insertSessionDeleted(ctx context.Context, tx pgx.Tx, userID, sessionID string) error {
	return insertOutbox(ctx, tx, userID, "session", sessionID, events.TypeSessionDeleted, events.SessionDeleted{
		SessionID:  sessionID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
	})
}

// insertOutbox queues an event. Only activity.logged carries a dedupe key:
// activity ids are never reused, while sessions and users can be deleted,
// restored and deleted again, and every deletion must reach the projector.
func insertOutbox(ctx context.Context, tx pgx.Tx, userID, aggregateType, aggregateID, eventType string, payload any) error {
	var dedupeKey *string
	if eventType == events.TypeActivityLogged {
		key := aggregateID + ":" + eventType
		dedupeKey = &key
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	meta, ok := eventCatalog[eventType]
	if !ok {
		return fmt.Errorf("unknown event type: %s", eventType)
	}

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		userID,
		aggregateType,
		aggregateID,
		eventType,
		meta.Topic,
		meta.SchemaSubject,
		userID,
		body,
		dedupeKey,
	)
	return err
}

// EventMetadata describes how to route an outbox event. Events are keyed by
// user so one user's events stay ordered within a partition.
type EventMetadata struct {
	Topic         string
	SchemaSubject string
}

var eventCatalog = map[string]EventMetadata{
	events.TypeActivityLogged: {
		Topic:         "study_activity_events",
		SchemaSubject: "study_activity_events-value",
	},
	events.TypeSessionDeleted: {
		Topic:         "study_lifecycle_events",
		SchemaSubject: "study_lifecycle_events-value",
	},
	events.TypeUserDeleted: {
		Topic:         "study_lifecycle_events",
		SchemaSubject: "study_lifecycle_events-value",
	},
}
