package incident

import (
	"encoding/json"
	"strings"
)

type Status string

const (
	StatusNew           Status = "new"
	StatusUnderReview   Status = "under_review"
	StatusInProgress    Status = "in_progress"
	StatusResolved      Status = "resolved"
	StatusFalsePositive Status = "false_positive"
	StatusClosed        Status = "closed"
)

// legacy values seen in older records
var statusAliases = map[string]Status{
	"open":        StatusNew,
	"abierto":     StatusNew,
	"nuevo":       StatusNew,
	"en_proceso":  StatusInProgress,
	"en_revision": StatusUnderReview,
	"resuelto":    StatusResolved,
	"cerrado":     StatusClosed,
}

func ParseStatus(raw string) (Status, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.ReplaceAll(s, " ", "_")

	switch st := Status(s); st {
	case StatusNew, StatusUnderReview, StatusInProgress, StatusResolved, StatusFalsePositive, StatusClosed:
		return st, true
	}

	if st, ok := statusAliases[s]; ok {
		return st, true
	}
	return Status(s), false
}

func (s *Status) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s, _ = ParseStatus(raw)
	return nil
}

func (s Status) Label() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusUnderReview:
		return "Under review"
	case StatusInProgress:
		return "In progress"
	case StatusResolved:
		return "Resolved"
	case StatusFalsePositive:
		return "False positive"
	case StatusClosed:
		return "Closed"
	}
	if s == "" {
		return "Unknown"
	}
	return string(s)
}

// Badge is the css class the dashboards use for the status pill.
func (s Status) Badge() string {
	switch s {
	case StatusNew:
		return "status-open"
	case StatusUnderReview, StatusInProgress:
		return "status-progress"
	case StatusResolved, StatusFalsePositive:
		return "status-resolved"
	case StatusClosed:
		return "status-closed"
	}
	return "status-unknown"
}

// Open reports whether the incident still needs attention.
func (s Status) Open() bool {
	switch s {
	case StatusNew, StatusUnderReview, StatusInProgress:
		return true
	}
	return false
}

func Statuses() []Status {
	return []Status{StatusNew, StatusUnderReview, StatusInProgress, StatusResolved, StatusFalsePositive, StatusClosed}
}
