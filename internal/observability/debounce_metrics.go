package observability

import (
	"sync/atomic"
	"time"
)

// DebounceMetrics counts what happened to live analysis submissions.
type DebounceMetrics struct {
	submitted  atomic.Uint64
	superseded atomic.Uint64
	dispatched atomic.Uint64
	applied    atomic.Uint64
	stale      atomic.Uint64
	skipped    atomic.Uint64

	// upstream call duration (nanoseconds)
	durationCount atomic.Uint64
	durationTotal atomic.Int64
	durationMax   atomic.Int64
}

func NewDebounceMetrics() *DebounceMetrics {
	return &DebounceMetrics{}
}

func (m *DebounceMetrics) IncSubmitted()  { m.submitted.Add(1) }
func (m *DebounceMetrics) IncSuperseded() { m.superseded.Add(1) }
func (m *DebounceMetrics) IncDispatched() { m.dispatched.Add(1) }
func (m *DebounceMetrics) IncApplied()    { m.applied.Add(1) }
func (m *DebounceMetrics) IncStale()      { m.stale.Add(1) }
func (m *DebounceMetrics) IncSkipped()    { m.skipped.Add(1) }

func (m *DebounceMetrics) ObserveDuration(d time.Duration) {
	ns := d.Nanoseconds()
	m.durationCount.Add(1)
	m.durationTotal.Add(ns)

	for {
		curr := m.durationMax.Load()

		if ns <= curr {
			return
		}

		if m.durationMax.CompareAndSwap(curr, ns) {
			return
		}
	}
}

type DebounceSnapshot struct {
	Submitted       uint64        `json:"submitted"`
	Superseded      uint64        `json:"superseded"`
	Dispatched      uint64        `json:"dispatched"`
	Applied         uint64        `json:"applied"`
	Stale           uint64        `json:"stale"`
	Skipped         uint64        `json:"skipped"`
	AverageDuration time.Duration `json:"averageDuration"`
	MaxDuration     time.Duration `json:"maxDuration"`
}

func (m *DebounceMetrics) Snapshot() DebounceSnapshot {
	count := m.durationCount.Load()
	total := m.durationTotal.Load()

	var avg time.Duration

	if count > 0 {
		avg = time.Duration(total / int64(count))
	}

	return DebounceSnapshot{
		Submitted:       m.submitted.Load(),
		Superseded:      m.superseded.Load(),
		Dispatched:      m.dispatched.Load(),
		Applied:         m.applied.Load(),
		Stale:           m.stale.Load(),
		Skipped:         m.skipped.Load(),
		AverageDuration: avg,
		MaxDuration:     time.Duration(m.durationMax.Load()),
	}
}
