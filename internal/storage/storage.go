// Package storage keeps the small per-client key/value state that survives
// portal restarts: the access and refresh tokens of each browser.
package storage

import (
	"context"
	"errors"
	"time"
)

const (
	KeyAccessToken  = "access_token"
	KeyRefreshToken = "refresh_token"
)

// TokenKeys lists every key the portal persists for a client.
var TokenKeys = []string{KeyAccessToken, KeyRefreshToken}

var ErrNotFound = errors.New("storage: key not found")

type Store interface {
	Get(ctx context.Context, clientID, key string) (string, error)
	Set(ctx context.Context, clientID, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, clientID string, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

// Tokens is a convenience view over the two persisted keys.
type Tokens struct {
	Access  string
	Refresh string
}

func LoadTokens(ctx context.Context, s Store, clientID string) (Tokens, error) {
	access, err := s.Get(ctx, clientID, KeyAccessToken)
	if err != nil {
		return Tokens{}, err
	}

	refresh, err := s.Get(ctx, clientID, KeyRefreshToken)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Tokens{}, err
	}

	return Tokens{Access: access, Refresh: refresh}, nil
}

func SaveTokens(ctx context.Context, s Store, clientID string, t Tokens, ttl time.Duration) error {
	if err := s.Set(ctx, clientID, KeyAccessToken, t.Access, ttl); err != nil {
		return err
	}
	if t.Refresh == "" {
		return s.Delete(ctx, clientID, KeyRefreshToken)
	}
	return s.Set(ctx, clientID, KeyRefreshToken, t.Refresh, ttl)
}

func ClearTokens(ctx context.Context, s Store, clientID string) error {
	return s.Delete(ctx, clientID, TokenKeys...)
}
