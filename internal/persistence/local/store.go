// Package local implements the local-device store: the whole user dataset is
// kept as one JSON document and written back synchronously on every change.
package local

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"example.com/studytrack/internal/domain"
	"example.com/studytrack/internal/observability"
)

// Backend persists the serialized document under a single key.
type Backend interface {
	// Load returns nil when nothing has been stored yet.
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, raw []byte) error
}

// Store keeps the document in memory and writes it through to a Backend.
type Store struct {
	mu      sync.RWMutex
	backend Backend
	doc     Document
}

var _ domain.Store = (*Store)(nil)

// Open loads the current document from backend.
func Open(ctx context.Context, backend Backend) (*Store, error) {
	raw, err := backend.Load(ctx)
	if err != nil {
		return nil, domain.PersistenceError("load document", err)
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return nil, domain.PersistenceError("load document", err)
	}
	return &Store{backend: backend, doc: doc}, nil
}

// mutate applies fn to a copy of the document and swaps it in only after the
// copy has been saved, so a failed write leaves the visible state unchanged.
func (s *Store) mutate(ctx context.Context, op string, fn func(doc *Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.doc.clone()
	if err := fn(&next); err != nil {
		return err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return domain.PersistenceError(op, err)
	}
	if err := s.backend.Save(ctx, raw); err != nil {
		observability.RecordStoreError("local", op)
		return domain.PersistenceError(op, err)
	}
	s.doc = next
	return nil
}

// CurrentUserID returns the selected profile, or "" when none is selected.
func (s *Store) CurrentUserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.doc.CurrentUserID == nil {
		return ""
	}
	return *s.doc.CurrentUserID
}

// SetCurrentUser selects the active profile.
func (s *Store) SetCurrentUser(ctx context.Context, id string) error {
	return s.mutate(ctx, "set current user", func(doc *Document) error {
		if doc.findUser(id) < 0 {
			return domain.NotFoundError("user", id)
		}
		doc.CurrentUserID = &id
		return nil
	})
}

// Export serializes the whole document for backup.
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return json.MarshalIndent(s.doc, "", "  ")
}

// Import replaces the whole document after checking its integrity.
func (s *Store) Import(ctx context.Context, raw []byte) error {
	doc, err := decodeDocument(raw)
	if err != nil {
		return &domain.ValidationError{Field: "document", Reason: err.Error()}
	}
	if err := doc.check(); err != nil {
		return err
	}
	return s.mutate(ctx, "import document", func(current *Document) error {
		*current = doc
		return nil
	})
}

// CreateUser adds a profile. The first profile becomes the current one.
func (s *Store) CreateUser(ctx context.Context, user domain.User) (domain.User, error) {
	err := s.mutate(ctx, "create user", func(doc *Document) error {
		if doc.findUser(user.ID) >= 0 {
			return &domain.ValidationError{Field: "id", Reason: "user " + user.ID + " already exists"}
		}
		doc.Users = append(doc.Users, user)
		if doc.CurrentUserID == nil {
			id := user.ID
			doc.CurrentUserID = &id
		}
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

// UpsertUser inserts the profile or refreshes its display fields.
func (s *Store) UpsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	var stored domain.User
	err := s.mutate(ctx, "upsert user", func(doc *Document) error {
		if i := doc.findUser(user.ID); i >= 0 {
			doc.Users[i].DisplayName = user.DisplayName
			doc.Users[i].Photo = user.Photo
			stored = doc.Users[i]
			return nil
		}
		doc.Users = append(doc.Users, user)
		stored = user
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}
	return stored, nil
}

// GetUser returns nil when the profile does not exist.
func (s *Store) GetUser(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.doc.findUser(id); i >= 0 {
		user := s.doc.Users[i]
		return &user, nil
	}
	return nil, nil
}

// ListUsers returns the profiles in creation order.
func (s *Store) ListUsers(context.Context) ([]domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.User{}, s.doc.Users...), nil
}

// DeleteUser removes the profile and everything it owns.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return s.mutate(ctx, "delete user", func(doc *Document) error {
		i := doc.findUser(id)
		if i < 0 {
			return nil
		}
		doc.Users = append(doc.Users[:i], doc.Users[i+1:]...)
		delete(doc.Sessions, id)
		delete(doc.Activities, id)
		if doc.CurrentUserID != nil && *doc.CurrentUserID == id {
			doc.CurrentUserID = nil
		}
		return nil
	})
}

// ListSessions returns the user's sessions in creation order.
func (s *Store) ListSessions(_ context.Context, userID string) ([]domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Session{}, s.doc.Sessions[userID]...)
	sortSessions(out)
	return out, nil
}

// CreateSession stores a validated session for an existing user.
func (s *Store) CreateSession(ctx context.Context, session domain.Session) (domain.Session, error) {
	err := s.mutate(ctx, "create session", func(doc *Document) error {
		if doc.findUser(session.UserID) < 0 {
			return domain.NotFoundError("user", session.UserID)
		}
		if _, i := doc.findSession(session.ID); i >= 0 {
			return &domain.ValidationError{Field: "id", Reason: "session " + session.ID + " already exists"}
		}
		doc.Sessions[session.UserID] = append(doc.Sessions[session.UserID], session)
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}
	observability.RecordSessionCreated()
	return session, nil
}

// UpdateSession patches one of the user's sessions.
func (s *Store) UpdateSession(ctx context.Context, userID, id string, patch domain.SessionPatch) (domain.Session, error) {
	var updated domain.Session
	err := s.mutate(ctx, "update session", func(doc *Document) error {
		list := doc.Sessions[userID]
		for i := range list {
			if list[i].ID == id {
				list[i] = patch.Apply(list[i])
				updated = list[i]
				return nil
			}
		}
		return domain.NotFoundError("session", id)
	})
	if err != nil {
		return domain.Session{}, err
	}
	return updated, nil
}

// DeleteSession removes the session and its activities. Unknown ids are a no-op.
func (s *Store) DeleteSession(ctx context.Context, userID, id string) error {
	return s.mutate(ctx, "delete session", func(doc *Document) error {
		if doc.findUser(userID) < 0 {
			return nil
		}
		list := doc.Sessions[userID]
		kept := list[:0]
		for _, session := range list {
			if session.ID != id {
				kept = append(kept, session)
			}
		}
		doc.Sessions[userID] = kept
		doc.Activities[userID] = dropActivities(doc.Activities[userID], func(a domain.Activity) bool {
			return a.SessionID == id
		})
		return nil
	})
}

// ReplaceSessions swaps in an imported session collection. Activities of
// sessions that are not part of the import are removed with them.
func (s *Store) ReplaceSessions(ctx context.Context, userID string, sessions []domain.Session) error {
	return s.mutate(ctx, "replace sessions", func(doc *Document) error {
		if doc.findUser(userID) < 0 {
			return domain.NotFoundError("user", userID)
		}
		keep := make(map[string]struct{}, len(sessions))
		for _, session := range sessions {
			if owner, i := doc.findSession(session.ID); i >= 0 && owner != userID {
				return &domain.ValidationError{Field: "id", Reason: "session " + session.ID + " belongs to another user"}
			}
			keep[session.ID] = struct{}{}
		}
		doc.Sessions[userID] = append([]domain.Session{}, sessions...)
		doc.Activities[userID] = dropActivities(doc.Activities[userID], func(a domain.Activity) bool {
			_, ok := keep[a.SessionID]
			return !ok
		})
		return nil
	})
}

// ListActivities returns the user's activities, most recent date first.
func (s *Store) ListActivities(_ context.Context, userID string) ([]domain.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Activity{}, s.doc.Activities[userID]...)
	sortActivities(out)
	return out, nil
}

// ListSessionActivities narrows ListActivities to one session.
func (s *Store) ListSessionActivities(ctx context.Context, userID, sessionID string) ([]domain.Activity, error) {
	all, err := s.ListActivities(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Activity, 0, len(all))
	for _, a := range all {
		if a.SessionID == sessionID {
			out = append(out, a)
		}
	}
	return out, nil
}

// CreateActivity appends an activity after checking that its user and session exist.
func (s *Store) CreateActivity(ctx context.Context, activity domain.Activity) (domain.Activity, error) {
	err := s.mutate(ctx, "create activity", func(doc *Document) error {
		if doc.findUser(activity.UserID) < 0 {
			return domain.NotFoundError("user", activity.UserID)
		}
		owner, i := doc.findSession(activity.SessionID)
		if i < 0 || owner != activity.UserID {
			return domain.NotFoundError("session", activity.SessionID)
		}
		doc.Activities[activity.UserID] = append(doc.Activities[activity.UserID], activity)
		return nil
	})
	if err != nil {
		return domain.Activity{}, err
	}
	observability.RecordActivityLogged(activity)
	return activity, nil
}

func dropActivities(list []domain.Activity, drop func(domain.Activity) bool) []domain.Activity {
	out := make([]domain.Activity, 0, len(list))
	for _, a := range list {
		if !drop(a) {
			out = append(out, a)
		}
	}
	return out
}

func sortSessions(list []domain.Session) {
	sort.SliceStable(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

// sortActivities orders by date, then createdAt, then id, all descending.
// PageActivities relies on this being a total order.
func sortActivities(list []domain.Activity) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Date != list[j].Date {
			return list[i].Date > list[j].Date
		}
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.After(list[j].CreatedAt)
		}
		return list[i].ID > list[j].ID
	})
}
