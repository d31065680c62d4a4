package analysis

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
)

var ErrCircuitOpen = errors.New("analysis: circuit breaker open")

type BreakerConfig struct {
	Timeout          time.Duration // hard timeout per call
	FailureThreshold int           // consecutive failures to open circuit
	Cooldown         time.Duration // how long to stay open before half-open
	HalfOpenMaxCalls int           // allow N trial calls in half-open
}

type breakerState string

const (
	stateClosed   breakerState = "closed"
	stateOpen     breakerState = "open"
	stateHalfOpen breakerState = "half_open"
)

// Breaker stops hammering the analysis endpoint while it keeps failing.
// Auth failures and bad requests are the caller's problem, not the
// service's, so they do not count.
type Breaker struct {
	inner Analyzer
	cfg   BreakerConfig
	now   func() time.Time

	mu                  sync.Mutex
	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
	halfOpenInFlight    int
}

func NewBreaker(inner Analyzer, cfg BreakerConfig) *Breaker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}

	return &Breaker{
		inner: inner,
		cfg:   cfg,
		now:   time.Now,
		state: stateClosed,
	}
}

func (b *Breaker) Analyze(ctx context.Context, token string, req incident.AnalysisRequest) (incident.Analysis, error) {
	// fail-fast gate
	if !b.allowRequest() {
		return incident.Analysis{}, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	out, err := b.inner.Analyze(callCtx, token, req)

	b.afterRequest(outcomeOf(err))

	return out, err
}

type outcome int

const (
	outcomeOK outcome = iota
	outcomeFailed
	// the caller went away; says nothing about the service
	outcomeAbandoned
)

func outcomeOf(err error) outcome {
	switch {
	case err == nil, errors.Is(err, backend.ErrUnauthorized):
		return outcomeOK
	case errors.Is(err, context.Canceled):
		return outcomeAbandoned
	}
	if s := backend.StatusOf(err); s >= 400 && s < 500 {
		return outcomeOK
	}
	return outcomeFailed
}

func (b *Breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.state)
}

func (b *Breaker) allowRequest() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
			b.state = stateHalfOpen
			b.halfOpenInFlight = 1
			return true
		}
		return false
	case stateHalfOpen:
		if b.halfOpenInFlight >= b.cfg.HalfOpenMaxCalls {
			return false
		}
		b.halfOpenInFlight++
		return true
	}
	return true
}

func (b *Breaker) afterRequest(o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen && b.halfOpenInFlight > 0 {
		b.halfOpenInFlight--
	}

	switch o {
	case outcomeAbandoned:
		// frees the trial slot and leaves the state as it was
		return
	case outcomeOK:
		b.consecutiveFailures = 0
		b.state = stateClosed
		return
	}

	b.consecutiveFailures++

	// a failed trial reopens immediately
	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = b.now()
		return
	}

	if b.consecutiveFailures >= b.cfg.FailureThreshold {
		b.state = stateOpen
		b.openedAt = b.now()
	}
}
