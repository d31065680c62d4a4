package role

import (
	"errors"
	"testing"
)

type nameVisitor struct{}

func (nameVisitor) Admin() string    { return "A" }
func (nameVisitor) Analyst() string  { return "N" }
func (nameVisitor) Employee() string { return "E" }

func TestParse(t *testing.T) {
	tests := []struct {
		raw    string
		want   Role
		wantOK bool
	}{
		{"admin", Admin, true},
		{" Analyst ", Analyst, true},
		{"EMPLOYEE", Employee, true},
		{"auditor", Role("auditor"), false},
		{"", Role(""), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.raw, func(t *testing.T) {
			got, ok := Parse(tt.raw)
			if got != tt.want || ok != tt.wantOK {
				t.Fatalf("Parse(%q) = (%q, %v), want (%q, %v)", tt.raw, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestVisitCoversEveryRole(t *testing.T) {
	seen := map[string]bool{}
	for _, r := range All() {
		got, err := Visit[string](r, nameVisitor{})
		if err != nil {
			t.Fatalf("Visit(%q) returned error: %v", r, err)
		}
		seen[got] = true
	}

	if len(seen) != len(All()) {
		t.Fatalf("expected distinct results per role, got %v", seen)
	}
}

func TestVisitUnknownRole(t *testing.T) {
	got, err := Visit[string](Role("superuser"), nameVisitor{})
	if !errors.Is(err, ErrUnknown) {
		t.Fatalf("expected ErrUnknown, got %v", err)
	}
	if got != "" {
		t.Fatalf("expected zero value, got %q", got)
	}
}

func TestInRejectsUnknownEvenWhenListed(t *testing.T) {
	odd := Role("root")
	if odd.In(odd, Admin) {
		t.Fatalf("unrecognized role must never be allowed")
	}
	if !Analyst.In(Admin, Analyst) {
		t.Fatalf("analyst should be allowed")
	}
	if Employee.In() {
		t.Fatalf("empty allow-set should allow nothing")
	}
}
