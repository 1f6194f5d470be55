package domain

import (
	"time"
)

type AccountStatus string

const (
	AccountNotFinished AccountStatus = "not_finished"
	AccountFinished    AccountStatus = "finished"
	AccountBanned      AccountStatus = "banned"
)

// QualifyingLevel is the level at which an account becomes sale-ready.
const QualifyingLevel = 15

func (s AccountStatus) Valid() bool {
	switch s {
	case AccountNotFinished, AccountFinished, AccountBanned:
		return true
	}
	return false
}

// StatusForLevel derives the pipeline stage from a level.
func StatusForLevel(level int) AccountStatus {
	if level >= QualifyingLevel {
		return AccountFinished
	}
	return AccountNotFinished
}

type Actor struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

func (a Actor) String() string {
	if a.Name != "" {
		return a.Name
	}
	if a.ID != "" {
		return a.ID
	}
	return "unknown"
}

type Account struct {
	ID        string        `json:"id"`
	Payload   string        `json:"payload"`
	Level     int           `json:"level"`
	OpenedBy  string        `json:"opened_by"`
	Notes     string        `json:"notes,omitempty"`
	Status    AccountStatus `json:"status"`
	AddedBy   Actor         `json:"added_by"`
	BanReason string        `json:"ban_reason,omitempty"`
	BannedBy  *Actor        `json:"banned_by,omitempty"`
	BannedAt  *time.Time    `json:"banned_at,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AccountSnapshot is the immutable copy captured in the backup trail.
type AccountSnapshot struct {
	ID         string        `json:"id"`
	Payload    string        `json:"payload"`
	Level      int           `json:"level"`
	OpenedBy   string        `json:"opened_by"`
	Notes      string        `json:"notes,omitempty"`
	Status     AccountStatus `json:"status"`
	AddedBy    Actor         `json:"added_by"`
	CreatedAt  time.Time     `json:"created_at"`
	CapturedAt time.Time     `json:"captured_at"`
}

func (a *Account) Snapshot(at time.Time) AccountSnapshot {
	return AccountSnapshot{
		ID:         a.ID,
		Payload:    a.Payload,
		Level:      a.Level,
		OpenedBy:   a.OpenedBy,
		Notes:      a.Notes,
		Status:     a.Status,
		AddedBy:    a.AddedBy,
		CreatedAt:  a.CreatedAt,
		CapturedAt: at,
	}
}

// AccountUpdate is a partial merge; nil fields are left untouched.
type AccountUpdate struct {
	Payload  *string `json:"payload,omitempty"`
	Level    *int    `json:"level,omitempty"`
	OpenedBy *string `json:"opened_by,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

func (u AccountUpdate) Empty() bool {
	return u.Payload == nil && u.Level == nil && u.OpenedBy == nil && u.Notes == nil
}

func (u AccountUpdate) Apply(a *Account) {
	if u.Payload != nil {
		a.Payload = *u.Payload
	}
	if u.Level != nil {
		a.Level = *u.Level
	}
	if u.OpenedBy != nil {
		a.OpenedBy = *u.OpenedBy
	}
	if u.Notes != nil {
		a.Notes = *u.Notes
	}
}
