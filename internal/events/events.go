// Package events defines the study event payloads published through the outbox.
package events

import "time"

// Event types recorded in the outbox.
const (
	TypeActivityLogged = "activity.logged"
	TypeSessionDeleted = "session.deleted"
	TypeUserDeleted    = "user.deleted"
)

// ActivityLogged is emitted when a study activity is stored.
type ActivityLogged struct {
	ActivityID      string    `json:"activity_id"`
	UserID          string    `json:"user_id"`
	SessionID       string    `json:"session_id"`
	SessionName     string    `json:"session_name"`
	Date            string    `json:"date"`
	DurationMinutes int       `json:"duration_minutes"`
	CreatedAt       time.Time `json:"created_at"`
}

// SessionDeleted is emitted when a session and its activities are removed.
type SessionDeleted struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

// UserDeleted is emitted when a profile and everything it owns is removed.
type UserDeleted struct {
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
