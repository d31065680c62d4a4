package views

import (
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"strings"
	"time"

	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/session"
	"github.com/gin-gonic/gin/render"
	"github.com/microcosm-cc/bluemonday"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// Static returns the css/js assets.
func Static() fs.FS {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return sub
}

// Page is the data every template receives.
type Page struct {
	View      View
	Session   *session.Session
	CSRFToken string

	Error       string
	Notice      string
	FieldErrors map[string]string

	Username  string
	Draft     incident.Draft
	Incidents []incident.Incident
	Stats     *incident.Stats
	Analysis  *incident.Analysis
	Statuses  []incident.Status

	RetryAfter int
}

var pageNames = []string{"login", "loading", "unknown_role", "admin", "analyst", "employee", "reporting"}

type Renderer struct {
	pages map[string]*template.Template
}

func NewRenderer() (*Renderer, error) {
	policy := bluemonday.UGCPolicy()

	funcs := template.FuncMap{
		// analysis text may carry basic markup from the model
		"richText": func(s string) template.HTML {
			return template.HTML(policy.Sanitize(strings.ReplaceAll(s, "\n", "<br>")))
		},
		"percent": percent,
		"date": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Local().Format("2006-01-02 15:04")
		},
		"severityOf": incident.ParseSeverity,
	}

	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		t, err := template.New(name).Funcs(funcs).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+name+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("parse %s template: %w", name, err)
		}
		pages[name] = t
	}

	return &Renderer{pages: pages}, nil
}

// HTML returns a gin renderer for page name, wrapped in the shared layout
// or the bare shell.
func (r *Renderer) HTML(name string, layout bool, data Page) render.Render {
	t, ok := r.pages[name]
	if !ok {
		t = r.pages["unknown_role"]
	}

	shell := "bare"
	if layout {
		shell = "layout"
	}

	return render.HTML{Template: t, Name: shell, Data: data}
}

// percent accepts both 0-1 and 0-100 scores.
func percent(v float64) string {
	if v > 0 && v <= 1 {
		v *= 100
	}
	return fmt.Sprintf("%.0f%%", v)
}
