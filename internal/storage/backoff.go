package storage

import (
	"context"
	"math"
	"math/rand"
	"time"
)

const (
	connectBaseDelay = 500 * time.Millisecond
	connectMaxDelay  = 10 * time.Second
)

// connectBackoff doubles from 500ms and caps at 10s, plus up to 250ms jitter.
func connectBackoff(attempt int) time.Duration {
	delay := time.Duration(float64(connectBaseDelay) * math.Pow(2, float64(attempt)))
	if delay > connectMaxDelay {
		delay = connectMaxDelay
	}
	return delay + time.Duration(rand.Intn(250))*time.Millisecond
}

// withRetry runs fn up to attempts times, sleeping between failures.
func withRetry(ctx context.Context, attempts int, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}

		t := time.NewTimer(connectBackoff(i))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}
