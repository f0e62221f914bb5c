package model

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MaxSessionIDLength bounds owner identifiers accepted from clients.
const MaxSessionIDLength = 128

// Session is a named owner identity. Habits belong to a session id; there is no login.
type Session struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	LastUsed  time.Time `json:"lastUsed"`
}

// SessionInput is the body of a create/save session request.
type SessionInput struct {
	Name string `json:"name"`
}

// Validate trims and checks the session name.
func (in *SessionInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	var v ValidationError
	switch {
	case in.Name == "":
		v.Add("name", "session name is required")
	case utf8.RuneCountInString(in.Name) > MaxNameLength:
		v.Add("name", "must be at most 100 characters")
	}
	return v.OrNil()
}

// ValidSessionID reports whether id is acceptable as an owner identifier.
func ValidSessionID(id string) bool {
	if id == "" || len(id) > MaxSessionIDLength {
		return false
	}
	for _, r := range id {
		if r <= ' ' || r == 0x7f {
			return false
		}
	}
	return true
}
