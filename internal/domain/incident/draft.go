package incident

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// MinDescriptionLen is the shortest description accepted for a report
	// and for a live analysis request without a URL. A report that carries a
	// URL may leave the description empty.
	MinDescriptionLen = 10
	DefaultType       = "phishing"
)

// Draft is a new report as typed by an employee.
// Tags use the gin "binding" key so the same rules apply when bound from a
// request and when checked with Validate.
type Draft struct {
	Title       string `json:"title" form:"title" binding:"omitempty,max=255"`
	Description string `json:"description" form:"description" binding:"required_without=URL,omitempty,min=10,max=5000"`
	URL         string `json:"url" form:"url" binding:"omitempty,url,max=2048"`
	Type        string `json:"incident_type" form:"incident_type" binding:"omitempty,max=100"`
}

// StatusUpdate is the analyst/admin triage form.
type StatusUpdate struct {
	Status Status `json:"status" form:"status" binding:"required,oneof=new under_review in_progress resolved false_positive closed"`
	Notes  string `json:"notes" form:"notes" binding:"omitempty,max=2000"`
}

type FieldError struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Param   string `json:"param,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidationError is returned before any network call when a form does not
// pass the local checks.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func checker() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.SetTagName("binding")
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			return jsonName(f.Tag.Get("json"), f.Name)
		})
	})
	return validate
}

// Normalize trims input and adds a scheme to bare URLs such as
// "example.com/login".
func (d Draft) Normalize() Draft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	d.Type = strings.TrimSpace(d.Type)
	d.URL = NormalizeURL(d.URL)
	if d.Type == "" {
		d.Type = DefaultType
	}
	return d
}

func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	return raw
}

func (d Draft) Validate() error {
	return toValidationError(checker().Struct(d))
}

func (u StatusUpdate) Validate() error {
	return toValidationError(checker().Struct(u))
}

// WithDefaultTitle fills an empty title from the URL host or the time.
func (d Draft) WithDefaultTitle(now time.Time) Draft {
	if d.Title != "" {
		return d
	}
	if d.URL != "" {
		if u, err := url.Parse(d.URL); err == nil && u.Hostname() != "" {
			d.Title = "Web: " + u.Hostname()
			return d
		}
	}
	d.Title = "Report " + now.Format("2006-01-02 15:04")
	return d
}

// Analyzable reports whether a live analysis request carries enough input
// to be worth sending.
func (r AnalysisRequest) Analyzable() bool {
	return r.URL != "" || len([]rune(strings.TrimSpace(r.Description))) >= MinDescriptionLen
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	out := &ValidationError{Fields: make([]FieldError, 0, len(verrs))}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{
			Field:   fe.Field(),
			Rule:    fe.Tag(),
			Param:   fe.Param(),
			Message: Message(fe.Tag(), fe.Param()),
		})
	}
	return out
}

func jsonName(tag, fallback string) string {
	name, _, _ := strings.Cut(tag, ",")
	if name == "" || name == "-" {
		return fallback
	}
	return name
}

// Message renders a validator rule as the inline text shown under a field.
func Message(rule, param string) string {
	switch rule {
	case "required":
		return "is required"
	case "required_without":
		return "is required unless a URL is given"
	case "min":
		return "must be at least " + param + " characters"
	case "max":
		return "must be at most " + param + " characters"
	case "url":
		return "must be a valid URL"
	case "datetime":
		return "must be a date formatted as YYYY-MM-DD"
	case "gtefield":
		return "must not be before " + param
	case "oneof":
		return "must be one of " + strings.ReplaceAll(param, " ", ", ")
	default:
		if param != "" {
			return fmt.Sprintf("failed %s validation (%s)", rule, param)
		}
		return "failed " + rule + " validation"
	}
}
