// Package domain defines the study-tracking model and the service that guards it.
package domain

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTheme is applied to sessions created without a theme.
const DefaultTheme = "default"

// UserStore captures user persistence operations.
type UserStore interface {
	CreateUser(ctx context.Context, user User) (User, error)
	UpsertUser(ctx context.Context, user User) (User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	DeleteUser(ctx context.Context, id string) error
}

// Store is the persistence contract shared by the local-device and remote backends.
// Every write is durable before the call returns.
type Store interface {
	UserStore

	ListSessions(ctx context.Context, userID string) ([]Session, error)
	CreateSession(ctx context.Context, session Session) (Session, error)
	UpdateSession(ctx context.Context, userID, id string, patch SessionPatch) (Session, error)
	DeleteSession(ctx context.Context, userID, id string) error
	ReplaceSessions(ctx context.Context, userID string, sessions []Session) error

	ListActivities(ctx context.Context, userID string) ([]Activity, error)
	ListSessionActivities(ctx context.Context, userID, sessionID string) ([]Activity, error)
	CreateActivity(ctx context.Context, activity Activity) (Activity, error)
}

// Service validates input at the boundary and delegates to a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for createdAt stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService constructs a Service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateUserInput captures a new profile.
type CreateUserInput struct {
	ID          string
	DisplayName string
	Photo       string
}

// CreateUser registers a profile. An empty ID is generated.
func (s *Service) CreateUser(ctx context.Context, input CreateUserInput) (User, error) {
	user, err := s.newUser(input)
	if err != nil {
		return User{}, err
	}
	return s.store.CreateUser(ctx, user)
}

// EnsureUser upserts the profile of an authenticated caller.
func (s *Service) EnsureUser(ctx context.Context, input CreateUserInput) (User, error) {
	if strings.TrimSpace(input.ID) == "" {
		return User{}, &ValidationError{Field: "id", Reason: "is required"}
	}
	if existing, err := s.store.GetUser(ctx, input.ID); err != nil {
		return User{}, err
	} else if existing != nil {
		return *existing, nil
	}
	if strings.TrimSpace(input.DisplayName) == "" {
		input.DisplayName = input.ID
	}
	user, err := s.newUser(input)
	if err != nil {
		return User{}, err
	}
	return s.store.UpsertUser(ctx, user)
}

func (s *Service) newUser(input CreateUserInput) (User, error) {
	name := strings.TrimSpace(input.DisplayName)
	if name == "" {
		return User{}, &ValidationError{Field: "displayName", Reason: "is required"}
	}
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return User{
		ID:          id,
		DisplayName: name,
		Photo:       strings.TrimSpace(input.Photo),
		CreatedAt:   s.now().UTC(),
	}, nil
}

// GetUser fetches a profile.
func (s *Service) GetUser(ctx context.Context, id string) (User, error) {
	user, err := s.store.GetUser(ctx, id)
	if err != nil {
		return User{}, err
	}
	if user == nil {
		return User{}, NotFoundError("user", id)
	}
	return *user, nil
}

// ListUsers returns all known profiles.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.store.ListUsers(ctx)
}

// DeleteUser removes a profile with all of its sessions and activities.
func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.store.DeleteUser(ctx, id)
}

// CreateSessionInput captures the payload for a new session.
type CreateSessionInput struct {
	Name               string
	Description        string
	Theme              string
	DailyTargetMinutes int
}

// ListSessions returns the caller's sessions in creation order.
func (s *Service) ListSessions(ctx context.Context, p Profile) ([]Session, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return s.store.ListSessions(ctx, p.UserID)
}

// CreateSession validates and stores a new session.
func (s *Service) CreateSession(ctx context.Context, p Profile, input CreateSessionInput) (Session, error) {
	if err := p.validate(); err != nil {
		return Session{}, err
	}
	session := Session{
		ID:                 uuid.NewString(),
		UserID:             p.UserID,
		Name:               strings.TrimSpace(input.Name),
		Description:        strings.TrimSpace(input.Description),
		Theme:              strings.TrimSpace(input.Theme),
		DailyTargetMinutes: input.DailyTargetMinutes,
		CreatedAt:          s.now().UTC(),
	}
	if session.Theme == "" {
		session.Theme = DefaultTheme
	}
	if err := ValidateSession(session); err != nil {
		return Session{}, err
	}
	return s.store.CreateSession(ctx, session)
}

// UpdateSession applies a partial update to one of the caller's sessions.
func (s *Service) UpdateSession(ctx context.Context, p Profile, id string, patch SessionPatch) (Session, error) {
	if err := p.validate(); err != nil {
		return Session{}, err
	}
	if strings.TrimSpace(id) == "" {
		return Session{}, &ValidationError{Field: "id", Reason: "is required"}
	}
	if patch.Name != nil {
		trimmed := strings.TrimSpace(*patch.Name)
		if trimmed == "" {
			return Session{}, &ValidationError{Field: "name", Reason: "must not be empty"}
		}
		patch.Name = &trimmed
	}
	if patch.DailyTargetMinutes != nil && *patch.DailyTargetMinutes <= 0 {
		return Session{}, &ValidationError{Field: "dailyTargetMinutes", Reason: "must be > 0"}
	}
	return s.store.UpdateSession(ctx, p.UserID, id, patch)
}

// DeleteSession removes a session and its activities. Unknown ids are ignored.
func (s *Service) DeleteSession(ctx context.Context, p Profile, id string) error {
	if err := p.validate(); err != nil {
		return err
	}
	return s.store.DeleteSession(ctx, p.UserID, id)
}

// ExportSessions returns the caller's sessions for backup.
func (s *Service) ExportSessions(ctx context.Context, p Profile) ([]Session, error) {
	return s.ListSessions(ctx, p)
}

// ImportSessions replaces the caller's whole session collection.
// Nothing is written unless every imported session is valid.
func (s *Service) ImportSessions(ctx context.Context, p Profile, sessions []Session) ([]Session, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	seen := make(map[string]struct{}, len(sessions))
	normalized := make([]Session, 0, len(sessions))
	for _, session := range sessions {
		session.UserID = p.UserID
		session.Name = strings.TrimSpace(session.Name)
		if strings.TrimSpace(session.ID) == "" {
			session.ID = uuid.NewString()
		}
		if _, dup := seen[session.ID]; dup {
			return nil, &ValidationError{Field: "id", Reason: "duplicate session id " + session.ID}
		}
		seen[session.ID] = struct{}{}
		if session.Theme == "" {
			session.Theme = DefaultTheme
		}
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
		if err := ValidateSession(session); err != nil {
			return nil, err
		}
		normalized = append(normalized, session)
	}
	if err := s.store.ReplaceSessions(ctx, p.UserID, normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// LogActivityInput captures a completed study activity.
type LogActivityInput struct {
	SessionID       string
	Date            Date
	DurationMinutes int
	Notes           string
	Media           []string
}

// LogActivity records an activity against one of the caller's sessions.
// The session name is snapshotted onto the activity.
func (s *Service) LogActivity(ctx context.Context, p Profile, input LogActivityInput) (Activity, error) {
	if err := p.validate(); err != nil {
		return Activity{}, err
	}
	activity := Activity{
		ID:              uuid.NewString(),
		UserID:          p.UserID,
		SessionID:       strings.TrimSpace(input.SessionID),
		Date:            input.Date,
		DurationMinutes: input.DurationMinutes,
		Notes:           strings.TrimSpace(input.Notes),
		Media:           input.Media,
		CreatedAt:       s.now().UTC(),
	}
	if err := ValidateActivity(activity); err != nil {
		return Activity{}, err
	}

	sessions, err := s.store.ListSessions(ctx, p.UserID)
	if err != nil {
		return Activity{}, err
	}
	for _, session := range sessions {
		if session.ID == activity.SessionID {
			activity.SessionName = session.Name
			return s.store.CreateActivity(ctx, activity)
		}
	}
	return Activity{}, NotFoundError("session", activity.SessionID)
}

// ListActivities returns the caller's activities, most recent date first.
// A non-empty sessionID narrows the result to one session.
func (s *Service) ListActivities(ctx context.Context, p Profile, sessionID string) ([]Activity, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if sessionID != "" {
		return s.store.ListSessionActivities(ctx, p.UserID, sessionID)
	}
	return s.store.ListActivities(ctx, p.UserID)
}

// Snapshot is a consistent read of one user's sessions and activities.
type Snapshot struct {
	Sessions   []Session
	Activities []Activity
}

// Snapshot loads everything the aggregators need for the caller.
func (s *Service) Snapshot(ctx context.Context, p Profile) (Snapshot, error) {
	if err := p.validate(); err != nil {
		return Snapshot{}, err
	}
	sessions, err := s.store.ListSessions(ctx, p.UserID)
	if err != nil {
		return Snapshot{}, err
	}
	activities, err := s.store.ListActivities(ctx, p.UserID)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{Sessions: sessions, Activities: activities}, nil
}

// ValidateSession checks the invariants of a stored session.
func ValidateSession(session Session) error {
	if strings.TrimSpace(session.UserID) == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if strings.TrimSpace(session.Name) == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if session.DailyTargetMinutes <= 0 {
		return &ValidationError{Field: "dailyTargetMinutes", Reason: "must be > 0"}
	}
	return nil
}

// ValidateActivity checks the invariants of a new activity.
func ValidateActivity(activity Activity) error {
	if strings.TrimSpace(activity.UserID) == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if activity.SessionID == "" {
		return &ValidationError{Field: "sessionId", Reason: "is required"}
	}
	if !activity.Date.Valid() {
		return &ValidationError{Field: "date", Reason: "must be a YYYY-MM-DD date"}
	}
	if activity.DurationMinutes < 0 {
		return &ValidationError{Field: "durationMinutes", Reason: "must be >= 0"}
	}
	for _, m := range activity.Media {
		if _, err := url.Parse(m); err != nil || strings.TrimSpace(m) == "" {
			return &ValidationError{Field: "media", Reason: "entries must be URIs"}
		}
	}
	return nil
}

func (p Profile) validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return &ValidationError{Field: "userId", Reason: "no current user"}
	}
	return nil
}
