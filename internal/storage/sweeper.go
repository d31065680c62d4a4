package storage

import (
	"context"
	"log/slog"
	"time"
)

// Purger is implemented by drivers that do not expire keys on their own.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type Sweeper struct {
	interval time.Duration
	purger   Purger
	log      *slog.Logger
}

func NewSweeper(interval time.Duration, p Purger, log *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{interval: interval, purger: p, log: log}
}

// Run purges on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("storage sweeper stopping")
			return

		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	n, err := s.purger.PurgeExpired(cctx)
	if err != nil {
		s.log.ErrorContext(ctx, "storage sweep failed", "err", err)
		return
	}
	if n > 0 {
		s.log.DebugContext(ctx, "storage sweep", "purged", n)
	}
}
