package incident

import (
	"encoding/json"
	"time"
)

// Incident is the read-only copy of a backend incident, as fetched.
type Incident struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Type        string     `json:"incident_type"`
	Description string     `json:"description"`
	URL         string     `json:"url,omitempty"`
	Severity    Severity   `json:"severity"`
	RiskLevel   string     `json:"risk_level,omitempty"`
	Status      Status     `json:"status"`
	Confidence  float64    `json:"confidence"`
	ThreatType  string     `json:"threat_type,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	ReportedBy  string     `json:"reported_by,omitempty"`
	DetectedAt  *time.Time `json:"detected_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type SourceCount struct {
	URL   string `json:"url"`
	Count int    `json:"count"`
}

type AdminStats struct {
	TotalUsers         int `json:"total_users"`
	TotalAnalysts      int `json:"total_analysts"`
	TotalEmployees     int `json:"total_employees"`
	CriticalUnresolved int `json:"critical_unresolved"`
}

type Stats struct {
	Total             int           `json:"total"`
	Open              int           `json:"open"`
	InProgress        int           `json:"in_progress"`
	Closed            int           `json:"closed"`
	Critical          int           `json:"critical"`
	High              int           `json:"high"`
	Medium            int           `json:"medium"`
	Low               int           `json:"low"`
	AverageConfidence float64       `json:"average_confidence"`
	TopSources        []SourceCount `json:"top_sources,omitempty"`
	AdminExtra        *AdminStats   `json:"admin_extra,omitempty"`
}

// AnalysisRequest is what the live analysis panel sends while a report is
// being written.
type AnalysisRequest struct {
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
}

type Analysis struct {
	RiskLevel        string   `json:"risk_level"`
	Confidence       float64  `json:"confidence"`
	Explanation      string   `json:"explanation"`
	TechnicalContext string   `json:"technical_context,omitempty"`
	Indicators       []string `json:"indicators,omitempty"`
	Recommendations  string   `json:"recommendations,omitempty"`
}

// UnmarshalJSON also accepts the older field names some backend versions
// still emit.
func (a *Analysis) UnmarshalJSON(b []byte) error {
	var raw struct {
		RiskLevel         string   `json:"risk_level"`
		Confidence        float64  `json:"confidence"`
		Explanation       string   `json:"explanation"`
		SimpleExplanation string   `json:"simple_explanation"`
		TechnicalContext  string   `json:"technical_context"`
		ContextoTecnico   string   `json:"contexto_tecnico"`
		Indicators        []string `json:"indicators"`
		Indicadores       []string `json:"indicadores"`
		Recommendations   string   `json:"recommendations"`
		RecommendedAction string   `json:"recommended_action"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	*a = Analysis{
		RiskLevel:        raw.RiskLevel,
		Confidence:       raw.Confidence,
		Explanation:      firstNonEmpty(raw.Explanation, raw.SimpleExplanation),
		TechnicalContext: firstNonEmpty(raw.TechnicalContext, raw.ContextoTecnico),
		Indicators:       raw.Indicators,
		Recommendations:  firstNonEmpty(raw.Recommendations, raw.RecommendedAction),
	}
	if len(a.Indicators) == 0 {
		a.Indicators = raw.Indicadores
	}
	return nil
}

// Severity of the analysis, derived from its risk level.
func (a Analysis) Severity() Severity {
	return ParseSeverity(a.RiskLevel)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
