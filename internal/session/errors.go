package session

import (
	"errors"

	"github.com/geocoder89/incidentdesk/internal/backend"
)

const (
	msgLoginFallback = "Unable to sign in. Check your username and password."
	msgUnreachable   = "The incident service is unreachable. Try again in a moment."
)

var ErrNoClient = errors.New("session: missing client id")

// LoginError is what a failed login reports. Message is safe to show.
type LoginError struct {
	Message string
	Err     error
}

func (e *LoginError) Error() string { return "session: login failed: " + e.Message }

func (e *LoginError) Unwrap() error { return e.Err }

func newLoginError(err error) *LoginError {
	switch {
	case backend.IsNetwork(err):
		return &LoginError{Message: msgUnreachable, Err: err}
	case errors.Is(err, backend.ErrUnauthorized):
		if msg := backend.MessageOf(err); msg != "" {
			return &LoginError{Message: msg, Err: err}
		}
	default:
		if s := backend.StatusOf(err); s >= 400 && s < 500 {
			if msg := backend.MessageOf(err); msg != "" {
				return &LoginError{Message: msg, Err: err}
			}
		}
	}
	return &LoginError{Message: msgLoginFallback, Err: err}
}
