package observability

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// ObserveStorage times one storage operation. Misses reported as notFound
// are not counted as errors.
func (p *Prom) ObserveStorage(driver, op string, notFound error, fn func() error) error {
	start := time.Now()
	err := fn()

	if p == nil {
		return err
	}

	status := "ok"

	if err != nil && !errors.Is(err, notFound) {
		status = "error"
		p.StorageErrors.WithLabelValues(driver, op, classifyStorageErr(err)).Inc()
	}
	p.StorageOpDuration.WithLabelValues(driver, op, status).Observe(time.Since(start).Seconds())
	return err
}

func classifyStorageErr(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return "unique_violation"
		case "40001":
			return "serialization_failure"
		case "40P01":
			return "deadlock"
		case "57014":
			return "query_canceled"
		default:
			return "pg_" + pgErr.Code
		}
	}

	if errors.Is(err, redis.ErrClosed) {
		return "closed"
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return "timeout"
	case strings.Contains(msg, "connection") || strings.Contains(msg, "connect"):
		return "connection"
	default:
		return "unknown"
	}
}
