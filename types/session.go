package types

import "time"

// SessionToken is an active login. A user owns at most one at a time.
type SessionToken struct {
	UserID int    `json:"user_id" db:"user_id"`
	Token  string `json:"token" db:"token"`
	// ExpiresAt is the absolute expiry in epoch seconds.
	ExpiresAt int64 `json:"expire_time" db:"expire_time"`
}

// Expired reports whether the token is no longer valid at now.
func (s SessionToken) Expired(now time.Time) bool {
	return s.ExpiresAt <= now.Unix()
}

// SessionGrant is the permission row reachable from a session token.
type SessionGrant struct {
	UserID    int
	ExpiresAt int64
	Blocked   bool
	IsAdmin   bool
}

// Event types published on the events channel.
const (
	EventUserCreated   = "user.created"
	EventUserUpdated   = "user.updated"
	EventUserDeleted   = "user.deleted"
	EventSessionLogin  = "session.login"
	EventSessionLogout = "session.logout"
)

// Event describes a change to users or sessions.
type Event struct {
	Type   string    `json:"type"`
	UserID int       `json:"user_id,omitempty"`
	Login  string    `json:"login,omitempty"`
	At     time.Time `json:"at"`
}
