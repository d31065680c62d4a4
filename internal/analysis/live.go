// Package analysis runs the live AI assessment shown while an employee types
// a report. Edits are debounced per client, and every dispatched request is
// numbered so a slow answer can never overwrite a newer one.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/observability"
)

// DefaultWindow is the quiet period after the last edit before a request is sent.
const DefaultWindow = 1200 * time.Millisecond

var (
	ErrSuperseded = errors.New("analysis: superseded by a newer edit")
	ErrStale      = errors.New("analysis: answer arrived after a newer request")
)

type Analyzer interface {
	Analyze(ctx context.Context, token string, req incident.AnalysisRequest) (incident.Analysis, error)
}

type Result struct {
	Seq      uint64             `json:"seq"`
	Analysis *incident.Analysis `json:"analysis"`
	// Skipped is set when the input was too short to analyze; the panel is cleared.
	Skipped  bool      `json:"skipped,omitempty"`
	Fallback bool      `json:"fallback,omitempty"`
	At       time.Time `json:"at"`
}

type Options struct {
	Window  time.Duration
	Metrics *observability.DebounceMetrics
	Prom    *observability.Prom
	Log     *slog.Logger
}

type line struct {
	submitted  uint64
	dispatched uint64
	latest     *Result
}

type Live struct {
	analyzer Analyzer
	opts     Options

	mu    sync.Mutex
	lines map[string]*line
}

func NewLive(a Analyzer, opts Options) *Live {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewDebounceMetrics()
	}
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Live{analyzer: a, opts: opts, lines: make(map[string]*line)}
}

func (l *Live) Metrics() observability.DebounceSnapshot {
	return l.opts.Metrics.Snapshot()
}

// Submit registers an edit and blocks for the debounce window. If another
// edit from the same client arrives meanwhile it returns ErrSuperseded
// without calling the API. Otherwise it sends the request and applies the
// answer, unless a newer request was dispatched in the meantime (ErrStale).
func (l *Live) Submit(ctx context.Context, clientID, token string, req incident.AnalysisRequest) (Result, error) {
	l.mu.Lock()
	ln, ok := l.lines[clientID]
	if !ok {
		ln = &line{}
		l.lines[clientID] = ln
	}
	ln.submitted++
	seq := ln.submitted
	l.mu.Unlock()

	l.opts.Metrics.IncSubmitted()

	timer := time.NewTimer(l.opts.Window)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Result{Seq: seq}, ctx.Err()
	case <-timer.C:
	}

	if !l.claim(clientID, seq) {
		l.opts.Metrics.IncSuperseded()
		l.opts.Prom.AnalysisOutcome("superseded")
		return Result{Seq: seq}, ErrSuperseded
	}
	l.opts.Metrics.IncDispatched()

	if !req.Analyzable() {
		res := Result{Seq: seq, Skipped: true, At: time.Now()}
		if err := l.apply(clientID, seq, res); err != nil {
			return Result{Seq: seq}, err
		}
		l.opts.Metrics.IncSkipped()
		l.opts.Prom.AnalysisOutcome("skipped")
		return res, nil
	}

	start := time.Now()
	a, err := l.analyzer.Analyze(ctx, token, req)
	l.opts.Metrics.ObserveDuration(time.Since(start))

	res := Result{Seq: seq, At: time.Now()}
	switch {
	case errors.Is(err, ErrCircuitOpen):
		fb := fallbackAnalysis()
		res.Analysis, res.Fallback = &fb, true
	case err != nil:
		if l.isCurrent(clientID, seq) {
			l.opts.Prom.AnalysisOutcome("error")
			l.opts.Log.WarnContext(ctx, "live analysis failed", "client_id", clientID, "seq", seq, "err", err)
			return Result{Seq: seq}, err
		}
		l.opts.Metrics.IncStale()
		l.opts.Prom.AnalysisOutcome("stale")
		return Result{Seq: seq}, ErrStale
	default:
		res.Analysis = &a
	}

	if err := l.apply(clientID, seq, res); err != nil {
		return Result{Seq: seq}, err
	}

	if res.Fallback {
		l.opts.Prom.AnalysisOutcome("fallback")
	} else {
		l.opts.Prom.AnalysisOutcome("applied")
	}
	return res, nil
}

// claim marks seq as dispatched if it is still the latest edit.
func (l *Live) claim(clientID string, seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln, ok := l.lines[clientID]
	if !ok || ln.submitted != seq {
		return false
	}
	ln.dispatched = seq
	return true
}

func (l *Live) isCurrent(clientID string, seq uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln, ok := l.lines[clientID]
	return ok && ln.dispatched == seq
}

func (l *Live) apply(clientID string, seq uint64, res Result) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln, ok := l.lines[clientID]
	if !ok || ln.dispatched != seq {
		l.opts.Metrics.IncStale()
		l.opts.Prom.AnalysisOutcome("stale")
		return ErrStale
	}

	r := res
	ln.latest = &r
	l.opts.Metrics.IncApplied()
	return nil
}

// Latest returns the last applied result for clientID.
func (l *Live) Latest(clientID string) (Result, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ln, ok := l.lines[clientID]
	if !ok || ln.latest == nil {
		return Result{}, false
	}
	return *ln.latest, true
}

// Forget drops everything held for clientID. Pending edits end as
// superseded and in-flight answers as stale.
func (l *Live) Forget(clientID string) {
	l.mu.Lock()
	delete(l.lines, clientID)
	l.mu.Unlock()
}

func fallbackAnalysis() incident.Analysis {
	return incident.Analysis{
		RiskLevel:       "unknown",
		Explanation:     "Automatic analysis is temporarily unavailable. Your report will still be reviewed by an analyst.",
		Recommendations: "Do not click links or open attachments from this message until it has been reviewed.",
	}
}
