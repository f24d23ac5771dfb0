package domain

import "time"

// User owns sessions and activities.
type User struct {
	ID          string    `json:"id" yaml:"id"`
	DisplayName string    `json:"displayName" yaml:"displayName"`
	Photo       string    `json:"photo,omitempty" yaml:"photo,omitempty"`
	CreatedAt   time.Time `json:"createdAt" yaml:"createdAt"`
}

// Session is a recurring study topic with a daily time goal.
type Session struct {
	ID                 string    `json:"id" yaml:"id"`
	UserID             string    `json:"userId" yaml:"userId"`
	Name               string    `json:"name" yaml:"name"`
	Description        string    `json:"description" yaml:"description"`
	Theme              string    `json:"theme" yaml:"theme"`
	DailyTargetMinutes int       `json:"dailyTargetMinutes" yaml:"dailyTargetMinutes"`
	CreatedAt          time.Time `json:"createdAt" yaml:"createdAt"`
}

// SessionPatch carries the mutable session fields. Nil fields are left untouched.
type SessionPatch struct {
	Name               *string `json:"name,omitempty" yaml:"name,omitempty"`
	Description        *string `json:"description,omitempty" yaml:"description,omitempty"`
	Theme              *string `json:"theme,omitempty" yaml:"theme,omitempty"`
	DailyTargetMinutes *int    `json:"dailyTargetMinutes,omitempty" yaml:"dailyTargetMinutes,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p SessionPatch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Theme == nil && p.DailyTargetMinutes == nil
}

// Apply returns a copy of s with the patch applied.
func (p SessionPatch) Apply(s Session) Session {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Description != nil {
		s.Description = *p.Description
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.DailyTargetMinutes != nil {
		s.DailyTargetMinutes = *p.DailyTargetMinutes
	}
	return s
}

// Activity is one completed unit of study time. Activities are never updated.
//
// SessionName is a snapshot of the session name at creation time; renaming the
// session later does not rewrite history.
type Activity struct {
	ID              string    `json:"id" yaml:"id"`
	UserID          string    `json:"userId" yaml:"userId"`
	SessionID       string    `json:"sessionId" yaml:"sessionId"`
	SessionName     string    `json:"sessionName" yaml:"sessionName"`
	Date            Date      `json:"date" yaml:"date"`
	DurationMinutes int       `json:"durationMinutes" yaml:"durationMinutes"`
	Notes           string    `json:"notes,omitempty" yaml:"notes,omitempty"`
	Media           []string  `json:"media,omitempty" yaml:"media,omitempty"`
	CreatedAt       time.Time `json:"createdAt" yaml:"createdAt"`
}

// Profile identifies the caller on whose behalf an operation runs.
// It replaces any notion of an ambient "current user".
type Profile struct {
	UserID string
}
