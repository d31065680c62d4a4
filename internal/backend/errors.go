package backend

import (
	"errors"
	"fmt"
)

// ErrUnauthorized matches every 401 from the incident API.
var ErrUnauthorized = errors.New("backend: unauthorized")

var ErrMalformedResponse = errors.New("backend: malformed response")

// AuthError covers bad credentials and expired or invalid tokens.
type AuthError struct {
	Endpoint string
	Message  string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "backend: " + e.Endpoint + ": unauthorized"
	}
	return "backend: " + e.Endpoint + ": " + e.Message
}

func (e *AuthError) Unwrap() error { return ErrUnauthorized }

// NetworkError means the API could not be reached at all (dial failure,
// timeout, reset). These are reported, never retried.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend: %s: unreachable: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// APIError is any other non-2xx answer.
type APIError struct {
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend: %s: status %d: %s", e.Endpoint, e.Status, e.Message)
}

func IsNetwork(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Status
	}
	if errors.Is(err, ErrUnauthorized) {
		return 401
	}
	return 0
}

// MessageOf returns the human message the API attached to err, if any.
func MessageOf(err error) string {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae.Message
	}
	var auth *AuthError
	if errors.As(err, &auth) {
		return auth.Message
	}
	return ""
}
