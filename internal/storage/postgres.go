package storage

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/incidentdesk/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS client_storage (
    client_id  TEXT        NOT NULL,
    key        TEXT        NOT NULL,
    value      TEXT        NOT NULL,
    expires_at TIMESTAMPTZ NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (client_id, key)
);
CREATE INDEX IF NOT EXISTS client_storage_expires_at_idx ON client_storage (expires_at);
`

type PostgresStore struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewPool(ctx context.Context, dbURL string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dbURL)

	if err != nil {
		return nil, err
	}

	cfg.MaxConns = 5

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)

	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)

	if err != nil {
		return nil, err
	}

	err = pool.Ping(ctx)

	if err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func NewPostgresStore(pool *pgxpool.Pool, prom *observability.Prom) *PostgresStore {
	return &PostgresStore{pool: pool, prom: prom}
}

// EnsureSchema creates the storage table when it is missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, clientID, key string) (string, error) {
	var out string
	err := s.prom.ObserveStorage("postgres", "get", ErrNotFound, func() error {
		err := s.pool.QueryRow(
			ctx,
			`SELECT value
             FROM client_storage
             WHERE client_id = $1 AND key = $2 AND expires_at > now()`,
			clientID, key,
		).Scan(&out)

		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	})
	return out, err
}

func (s *PostgresStore) Set(ctx context.Context, clientID, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return s.prom.ObserveStorage("postgres", "set", ErrNotFound, func() error {
		_, err := s.pool.Exec(
			ctx,
			`INSERT INTO client_storage (client_id, key, value, expires_at, updated_at)
             VALUES ($1, $2, $3, $4, now())
             ON CONFLICT (client_id, key)
             DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`,
			clientID, key, value, time.Now().UTC().Add(ttl),
		)
		return err
	})
}

func (s *PostgresStore) Delete(ctx context.Context, clientID string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.prom.ObserveStorage("postgres", "delete", ErrNotFound, func() error {
		_, err := s.pool.Exec(
			ctx,
			`DELETE FROM client_storage WHERE client_id = $1 AND key = ANY($2)`,
			clientID, keys,
		)
		return err
	})
}

// PurgeExpired removes rows past their expiry and returns how many went.
func (s *PostgresStore) PurgeExpired(ctx context.Context) (int64, error) {
	var n int64
	err := s.prom.ObserveStorage("postgres", "purge", ErrNotFound, func() error {
		tag, err := s.pool.Exec(ctx, `DELETE FROM client_storage WHERE expires_at <= now()`)
		if err != nil {
			return err
		}
		n = tag.RowsAffected()
		return nil
	})
	return n, err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
