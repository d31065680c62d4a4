package incident

import (
	"net/url"
	"strconv"
	"strings"
)

const dayLayout = "2006-01-02"

// ListFilter narrows the staff incident list. Dates are whole UTC days and
// both ends are inclusive.
type ListFilter struct {
	Limit int    `json:"limit,omitempty" binding:"omitempty,min=1,max=500"`
	From  string `json:"start_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
	To    string `json:"end_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
	Type  string `json:"type,omitempty" binding:"omitempty,max=100"`
	User  string `json:"user,omitempty" binding:"omitempty,max=150"`
}

// ParseListFilter reads the filter from query parameters. Limit is left to
// the caller.
func ParseListFilter(q url.Values) ListFilter {
	return ListFilter{
		From: strings.TrimSpace(q.Get("start_date")),
		To:   strings.TrimSpace(q.Get("end_date")),
		Type: strings.TrimSpace(q.Get("type")),
		User: strings.TrimSpace(q.Get("user")),
	}
}

func (f ListFilter) Validate() error {
	if err := toValidationError(checker().Struct(f)); err != nil {
		return err
	}
	if f.From != "" && f.To != "" && f.To < f.From {
		return &ValidationError{Fields: []FieldError{{
			Field:   "end_date",
			Rule:    "gtefield",
			Param:   "start_date",
			Message: Message("gtefield", "start_date"),
		}}}
	}
	return nil
}

// Query encodes the filter the way the incident API expects it.
func (f ListFilter) Query() url.Values {
	q := url.Values{}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	for k, v := range map[string]string{"start_date": f.From, "end_date": f.To, "type": f.Type, "user": f.User} {
		if v != "" {
			q.Set(k, v)
		}
	}
	return q
}

// Match reports whether inc passes every set field of the filter. Limit is
// not considered.
func (f ListFilter) Match(inc Incident) bool {
	if f.Type != "" && !strings.EqualFold(f.Type, inc.Type) {
		return false
	}
	if f.User != "" && !strings.EqualFold(f.User, inc.ReportedBy) {
		return false
	}

	day := inc.CreatedAt.UTC().Format(dayLayout)
	if f.From != "" && day < f.From {
		return false
	}
	if f.To != "" && day > f.To {
		return false
	}
	return true
}
