package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/geocoder89/incidentdesk/internal/observability"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Options struct {
	Driver        string
	DefaultTTL    time.Duration
	DBURL         string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// ConnectAttempts bounds how often a network store is dialled at startup.
	ConnectAttempts int
}

// Open builds the store for the configured driver and checks it is reachable.
func Open(ctx context.Context, opts Options, prom *observability.Prom) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(opts.DefaultTTL, prom), nil

	case "redis":
		s := NewRedisStore(RedisConfig{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		}, prom)

		err := withRetry(ctx, opts.ConnectAttempts, func(ctx context.Context) error {
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			return s.Ping(pctx)
		})
		if err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("redis storage: %w", err)
		}
		return s, nil

	case "postgres":
		var pool *pgxpool.Pool
		err := withRetry(ctx, opts.ConnectAttempts, func(ctx context.Context) error {
			p, err := NewPool(ctx, opts.DBURL)
			if err != nil {
				return err
			}
			pool = p
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("postgres storage: %w", err)
		}

		s := NewPostgresStore(pool, prom)
		if err := s.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("postgres storage schema: %w", err)
		}
		return s, nil
	}

	return nil, fmt.Errorf("storage: unknown driver %q", opts.Driver)
}
