package devapi

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/incidentdesk/internal/domain/incident"
)

var ErrIncidentNotFound = errors.New("devapi: incident not found")

type NewIncident struct {
	Title       string
	Description string
	URL         string
	Type        string
	ReportedBy  string
	Analysis    incident.Analysis
}

type IncidentsRepo struct {
	mu     sync.RWMutex
	items  map[int64]incident.Incident
	nextID int64
	now    func() time.Time
}

func NewIncidentsRepo() *IncidentsRepo {
	return &IncidentsRepo{
		items: make(map[int64]incident.Incident),
		now:   time.Now,
	}
}

func (r *IncidentsRepo) Create(in NewIncident) incident.Incident {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	inc := incident.Incident{
		ID:          r.nextID,
		Title:       in.Title,
		Type:        in.Type,
		Description: in.Description,
		URL:         in.URL,
		Severity:    in.Analysis.Severity(),
		RiskLevel:   in.Analysis.RiskLevel,
		Status:      incident.StatusNew,
		Confidence:  in.Analysis.Confidence,
		ThreatType:  in.Type,
		ReportedBy:  in.ReportedBy,
		DetectedAt:  &now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.items[inc.ID] = inc
	return inc
}

func (r *IncidentsRepo) Get(id int64) (incident.Incident, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inc, ok := r.items[id]
	if !ok {
		return incident.Incident{}, ErrIncidentNotFound
	}
	return inc, nil
}

// List returns the newest incidents accepted by keep, at most limit.
func (r *IncidentsRepo) List(keep func(incident.Incident) bool, limit int) []incident.Incident {
	r.mu.RLock()
	out := make([]incident.Incident, 0, len(r.items))
	for _, inc := range r.items {
		if keep == nil || keep(inc) {
			out = append(out, inc)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *IncidentsRepo) Update(id int64, status incident.Status, notes string) (incident.Incident, error) {
	now := r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()

	inc, ok := r.items[id]
	if !ok {
		return incident.Incident{}, ErrIncidentNotFound
	}

	inc.Status = status
	if notes != "" {
		inc.Notes = notes
	}
	inc.UpdatedAt = now
	if status.Open() {
		inc.ResolvedAt = nil
	} else if inc.ResolvedAt == nil {
		inc.ResolvedAt = &now
	}

	r.items[id] = inc
	return inc, nil
}

// Stats aggregates the incidents accepted by keep.
func (r *IncidentsRepo) Stats(keep func(incident.Incident) bool) incident.Stats {
	var (
		st      incident.Stats
		confSum float64
		sources = map[string]int{}
	)

	for _, inc := range r.List(keep, 0) {
		st.Total++
		confSum += inc.Confidence

		switch inc.Status {
		case incident.StatusNew, incident.StatusUnderReview:
			st.Open++
		case incident.StatusInProgress:
			st.InProgress++
		default:
			st.Closed++
		}

		switch inc.Severity {
		case incident.SeverityCritical:
			st.Critical++
		case incident.SeverityHigh:
			st.High++
		case incident.SeverityMedium:
			st.Medium++
		default:
			st.Low++
		}

		if host := sourceOf(inc.URL); host != "" {
			sources[host]++
		}
	}

	if st.Total > 0 {
		st.AverageConfidence = confSum / float64(st.Total)
	}

	for u, n := range sources {
		st.TopSources = append(st.TopSources, incident.SourceCount{URL: u, Count: n})
	}
	sort.Slice(st.TopSources, func(i, j int) bool {
		if st.TopSources[i].Count != st.TopSources[j].Count {
			return st.TopSources[i].Count > st.TopSources[j].Count
		}
		return st.TopSources[i].URL < st.TopSources[j].URL
	})
	if len(st.TopSources) > 5 {
		st.TopSources = st.TopSources[:5]
	}

	return st
}

// CriticalUnresolved counts critical incidents that are still open.
func (r *IncidentsRepo) CriticalUnresolved() int {
	return len(r.List(func(inc incident.Incident) bool {
		return inc.Severity == incident.SeverityCritical && inc.Status.Open()
	}, 0))
}

func sourceOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "https://"), "http://")
	host, _, _ := strings.Cut(raw, "/")
	return strings.ToLower(host)
}
