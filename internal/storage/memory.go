package storage

import (
	"context"
	"time"

	"github.com/geocoder89/incidentdesk/internal/cache"
	"github.com/geocoder89/incidentdesk/internal/observability"
)

// MemoryStore keeps client state in process. It does not survive a restart
// and is meant for development and tests.
type MemoryStore struct {
	c    *cache.Cache
	prom *observability.Prom
}

func NewMemoryStore(defaultTTL time.Duration, prom *observability.Prom) *MemoryStore {
	return &MemoryStore{c: cache.New(defaultTTL), prom: prom}
}

func memoryKey(clientID, key string) string {
	return "client:" + clientID + ":" + key
}

func (s *MemoryStore) Get(_ context.Context, clientID, key string) (string, error) {
	var out string
	err := s.prom.ObserveStorage("memory", "get", ErrNotFound, func() error {
		v, ok := s.c.Get(memoryKey(clientID, key))
		if !ok {
			return ErrNotFound
		}
		out, _ = v.(string)
		return nil
	})
	return out, err
}

func (s *MemoryStore) Set(_ context.Context, clientID, key, value string, ttl time.Duration) error {
	return s.prom.ObserveStorage("memory", "set", ErrNotFound, func() error {
		s.c.SetWithTTL(memoryKey(clientID, key), value, ttl)
		return nil
	})
}

func (s *MemoryStore) Delete(_ context.Context, clientID string, keys ...string) error {
	return s.prom.ObserveStorage("memory", "delete", ErrNotFound, func() error {
		full := make([]string, 0, len(keys))
		for _, k := range keys {
			full = append(full, memoryKey(clientID, k))
		}
		s.c.Delete(full...)
		return nil
	})
}

// PurgeExpired drops expired entries; used by the sweeper.
func (s *MemoryStore) PurgeExpired(context.Context) (int64, error) {
	return int64(s.c.Purge()), nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error {
	s.c.Clear()
	return nil
}
