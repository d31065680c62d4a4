package session

import (
	"time"

	"github.com/geocoder89/incidentdesk/internal/domain/role"
)

type Status int

const (
	// StatusLoading means a restore is still in flight for this client.
	StatusLoading Status = iota
	StatusAnonymous
	StatusAuthenticated
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	}
	return "unknown"
}

// Session is the signed-in user of one client. It is never mutated after
// creation; login and restore replace it, logout drops it.
type Session struct {
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Role      role.Role `json:"role"`
	Token     string    `json:"-"`
	ExpiresAt time.Time `json:"expiresAt,omitempty"`
}

// Expired reports whether the access token is known to be past its expiry.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type State struct {
	Status  Status
	Session *Session
}

func (st State) Authenticated() bool {
	return st.Status == StatusAuthenticated && st.Session != nil
}
