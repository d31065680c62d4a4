package incident

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		raw    string
		want   Status
		wantOK bool
	}{
		{"new", StatusNew, true},
		{"In Progress", StatusInProgress, true},
		{"abierto", StatusNew, true},
		{"open", StatusNew, true},
		{"cerrado", StatusClosed, true},
		{"false_positive", StatusFalsePositive, true},
		{"escalated", Status("escalated"), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := ParseStatus(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("ParseStatus(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestStatusBadges(t *testing.T) {
	for _, s := range Statuses() {
		if s.Badge() == "status-unknown" {
			t.Fatalf("status %q has no badge", s)
		}
		if s.Label() == string(s) {
			t.Fatalf("status %q has no label", s)
		}
	}

	if Status("weird").Badge() != "status-unknown" {
		t.Fatalf("unexpected badge for unknown status")
	}
}

func TestParseSeverity(t *testing.T) {
	tests := map[string]Severity{
		"CRÍTICO":  SeverityCritical,
		"critical": SeverityCritical,
		"Alto":     SeverityHigh,
		"HIGH":     SeverityHigh,
		"medio":    SeverityMedium,
		"Medium":   SeverityMedium,
		"bajo":     SeverityLow,
		"":         SeverityLow,
	}

	for raw, want := range tests {
		if got := ParseSeverity(raw); got != want {
			t.Fatalf("ParseSeverity(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestIncidentDecodesLegacyValues(t *testing.T) {
	body := `{"id":7,"title":"x","incident_type":"phishing","description":"d","severity":"ALTO","status":"abierto","confidence":0.8,"created_at":"2026-01-02T10:00:00Z","updated_at":"2026-01-02T10:00:00Z"}`

	var inc Incident
	if err := json.Unmarshal([]byte(body), &inc); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if inc.Severity != SeverityHigh {
		t.Fatalf("severity = %q", inc.Severity)
	}
	if inc.Status != StatusNew {
		t.Fatalf("status = %q", inc.Status)
	}
}

func TestAnalysisAcceptsOlderKeys(t *testing.T) {
	body := `{"risk_level":"CRITICAL","confidence":92,"simple_explanation":"Fake bank login","contexto_tecnico":"lookalike domain","indicadores":["urgency","credential form"],"recommended_action":"Do not enter credentials"}`

	var a Analysis
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if a.Explanation != "Fake bank login" || a.TechnicalContext != "lookalike domain" {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if len(a.Indicators) != 2 || a.Recommendations == "" {
		t.Fatalf("unexpected analysis: %+v", a)
	}
	if a.Severity() != SeverityCritical {
		t.Fatalf("severity = %q", a.Severity())
	}
}

func TestDraftValidate(t *testing.T) {
	tests := []struct {
		name      string
		draft     Draft
		wantField string
	}{
		{name: "valid", draft: Draft{Description: "Got a weird email asking for my password"}},
		{name: "short description", draft: Draft{Description: "short"}, wantField: "description"},
		{name: "missing description", draft: Draft{}, wantField: "description"},
		{name: "url only", draft: Draft{URL: "https://examp1e-bank.com/login"}},
		{name: "short description with url", draft: Draft{Description: "look", URL: "https://example.com"}, wantField: "description"},
		{name: "bad url", draft: Draft{Description: "Suspicious link in a message", URL: "http://"}, wantField: "url"},
		{name: "bare host gets a scheme", draft: Draft{Description: "Suspicious link in a message", URL: "examp1e-bank.com/login"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			err := tt.draft.Normalize().Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("expected valid, got %v", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Fields[0].Field != tt.wantField {
				t.Fatalf("field = %q, want %q", verr.Fields[0].Field, tt.wantField)
			}
		})
	}
}

func TestDraftDefaults(t *testing.T) {
	now := time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

	d := Draft{Description: " lots of text here ", URL: "login.examp1e.com/x"}.Normalize().WithDefaultTitle(now)
	if d.Title != "Web: login.examp1e.com" {
		t.Fatalf("title = %q", d.Title)
	}
	if d.Type != DefaultType {
		t.Fatalf("type = %q", d.Type)
	}

	d = Draft{Description: "no url at all in this one"}.Normalize().WithDefaultTitle(now)
	if !strings.HasPrefix(d.Title, "Report 2026-03-04") {
		t.Fatalf("title = %q", d.Title)
	}
}

func TestStatusUpdateValidate(t *testing.T) {
	if err := (StatusUpdate{Status: StatusResolved}).Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	var verr *ValidationError
	if err := (StatusUpdate{Status: "escalated"}).Validate(); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestAnalyzable(t *testing.T) {
	if (AnalysisRequest{Description: "too short"}).Analyzable() {
		t.Fatalf("9 chars without url should not be analyzable")
	}
	if !(AnalysisRequest{Description: "hi", URL: "http://x.io"}).Analyzable() {
		t.Fatalf("url alone should be analyzable")
	}
	if !(AnalysisRequest{Description: "ten chars!"}).Analyzable() {
		t.Fatalf("10 chars should be analyzable")
	}
}
