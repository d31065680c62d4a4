package incident

import (
	"errors"
	"net/url"
	"testing"
	"time"
)

func TestListFilterMatch(t *testing.T) {
	inc := Incident{
		Type:       "Phishing",
		ReportedBy: "employee",
		CreatedAt:  time.Date(2026, 1, 15, 23, 30, 0, 0, time.UTC),
	}

	tests := []struct {
		name   string
		filter ListFilter
		want   bool
	}{
		{name: "empty", filter: ListFilter{}, want: true},
		{name: "type ignores case", filter: ListFilter{Type: "phishing"}, want: true},
		{name: "other type", filter: ListFilter{Type: "malware"}, want: false},
		{name: "user", filter: ListFilter{User: "Employee"}, want: true},
		{name: "other user", filter: ListFilter{User: "analyst"}, want: false},
		{name: "same day both ends", filter: ListFilter{From: "2026-01-15", To: "2026-01-15"}, want: true},
		{name: "before range", filter: ListFilter{From: "2026-01-16"}, want: false},
		{name: "after range", filter: ListFilter{To: "2026-01-14"}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Match(inc); got != tt.want {
				t.Fatalf("Match = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestListFilterValidate(t *testing.T) {
	if err := (ListFilter{From: "2026-01-01", To: "2026-01-31", Limit: 50}).Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	tests := []struct {
		name   string
		filter ListFilter
		field  string
		rule   string
	}{
		{name: "bad date", filter: ListFilter{From: "15/01/2026"}, field: "start_date", rule: "datetime"},
		{name: "reversed range", filter: ListFilter{From: "2026-02-01", To: "2026-01-01"}, field: "end_date", rule: "gtefield"},
		{name: "limit too high", filter: ListFilter{Limit: 501}, field: "limit", rule: "max"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var verr *ValidationError
			if err := tt.filter.Validate(); !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Fields[0].Field != tt.field || verr.Fields[0].Rule != tt.rule {
				t.Fatalf("unexpected field error %+v", verr.Fields[0])
			}
		})
	}
}

func TestParseListFilterTrims(t *testing.T) {
	q := url.Values{"start_date": {" 2026-01-01 "}, "user": {" bob "}, "limit": {"9"}}
	f := ParseListFilter(q)
	if f.From != "2026-01-01" || f.User != "bob" || f.Limit != 0 {
		t.Fatalf("filter = %+v", f)
	}
	if enc := f.Query().Encode(); enc != "start_date=2026-01-01&user=bob" {
		t.Fatalf("query = %q", enc)
	}
}
