package local

import (
	"encoding/json"
	"fmt"
	"strconv"

	"example.com/studytrack/internal/domain"
)

// Document is the single JSON value the local store persists. Its shape is the
// on-device schema: {users, currentUserId, sessions: {userId: [...]},
// activities: {userId: [...]}}.
type Document struct {
	Users         []domain.User                `json:"users"`
	CurrentUserID *string                      `json:"currentUserId"`
	Sessions      map[string][]domain.Session  `json:"sessions"`
	Activities    map[string][]domain.Activity `json:"activities"`
}

func emptyDocument() Document {
	return Document{
		Users:      []domain.User{},
		Sessions:   make(map[string][]domain.Session),
		Activities: make(map[string][]domain.Activity),
	}
}

// decodeDocument parses raw and fills in collections missing from older documents.
func decodeDocument(raw []byte) (Document, error) {
	doc := emptyDocument()
	if len(raw) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("decode local document: %w", err)
	}
	if doc.Users == nil {
		doc.Users = []domain.User{}
	}
	if doc.Sessions == nil {
		doc.Sessions = make(map[string][]domain.Session)
	}
	if doc.Activities == nil {
		doc.Activities = make(map[string][]domain.Activity)
	}
	return doc, nil
}

// check verifies referential integrity of an imported document.
func (d Document) check() error {
	users := make(map[string]struct{}, len(d.Users))
	for _, u := range d.Users {
		if u.ID == "" {
			return &domain.ValidationError{Field: "users", Reason: "user without id"}
		}
		if _, dup := users[u.ID]; dup {
			return &domain.ValidationError{Field: "users", Reason: "user " + u.ID + " is repeated"}
		}
		users[u.ID] = struct{}{}
	}
	if d.CurrentUserID != nil {
		if _, ok := users[*d.CurrentUserID]; !ok {
			return &domain.ValidationError{Field: "currentUserId", Reason: "references unknown user"}
		}
	}
	sessions := make(map[string]string)
	for userID, list := range d.Sessions {
		if _, ok := users[userID]; !ok {
			return &domain.ValidationError{Field: "sessions", Reason: "owner " + userID + " is unknown"}
		}
		for _, s := range list {
			if s.UserID != userID {
				return &domain.ValidationError{Field: "sessions", Reason: "session " + s.ID + " filed under the wrong user"}
			}
			if err := domain.ValidateSession(s); err != nil {
				return err
			}
			if _, dup := sessions[s.ID]; dup || s.ID == "" {
				return &domain.ValidationError{Field: "sessions", Reason: "session id " + strconv.Quote(s.ID) + " is missing or repeated"}
			}
			sessions[s.ID] = userID
		}
	}
	for userID, list := range d.Activities {
		for _, a := range list {
			if owner, ok := sessions[a.SessionID]; !ok || owner != userID || a.UserID != userID {
				return &domain.ValidationError{Field: "activities", Reason: "activity " + a.ID + " references a missing session"}
			}
			if err := domain.ValidateActivity(a); err != nil {
				return err
			}
		}
	}
	return nil
}

func (d Document) clone() Document {
	out := Document{
		Users:      append([]domain.User{}, d.Users...),
		Sessions:   make(map[string][]domain.Session, len(d.Sessions)),
		Activities: make(map[string][]domain.Activity, len(d.Activities)),
	}
	if d.CurrentUserID != nil {
		id := *d.CurrentUserID
		out.CurrentUserID = &id
	}
	for k, v := range d.Sessions {
		out.Sessions[k] = append([]domain.Session{}, v...)
	}
	for k, v := range d.Activities {
		out.Activities[k] = append([]domain.Activity{}, v...)
	}
	return out
}

func (d Document) findUser(id string) int {
	for i, u := range d.Users {
		if u.ID == id {
			return i
		}
	}
	return -1
}

// findSession locates a session by id across all owners.
func (d Document) findSession(id string) (string, int) {
	for owner, list := range d.Sessions {
		for i, s := range list {
			if s.ID == id {
				return owner, i
			}
		}
	}
	return "", -1
}
