package incident

import (
	"encoding/json"
	"strings"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity maps free-form risk text onto the four levels. Anything it
// does not recognize is treated as low.
func ParseSeverity(raw string) Severity {
	s := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case strings.Contains(s, "crit"):
		return SeverityCritical
	case strings.Contains(s, "alto") || strings.Contains(s, "high"):
		return SeverityHigh
	case strings.Contains(s, "medi"):
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func (s *Severity) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = ParseSeverity(raw)
	return nil
}

func (s Severity) Label() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	default:
		return "Low"
	}
}

func (s Severity) Badge() string {
	switch s {
	case SeverityCritical:
		return "severity-critical"
	case SeverityHigh:
		return "severity-high"
	case SeverityMedium:
		return "severity-medium"
	default:
		return "severity-low"
	}
}
