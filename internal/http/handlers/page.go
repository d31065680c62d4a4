package handlers

import (
	"net/http"

	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/geocoder89/incidentdesk/internal/views"
	"github.com/gin-gonic/gin"
)

// notices and errors are passed between redirects as codes so no user
// text ends up in a URL.
var flashMessages = map[string]string{
	"report_sent":    "Report sent. Thank you, an analyst will review it.",
	"status_updated": "Incident updated.",
	"signed_out":     "You have been signed out.",
	"invalid_status": "Choose a valid status.",
	"update_failed":  "The incident could not be updated. Try again.",
}

// basePage fills what every template needs.
func basePage(c *gin.Context, view views.View) views.Page {
	p := views.Page{
		View:      view,
		CSRFToken: middlewares.CSRFTokenFromContext(c),
		Statuses:  incident.Statuses(),
		Notice:    flashMessages[c.Query("notice")],
		Error:     flashMessages[c.Query("error")],
	}
	if sess, ok := middlewares.SessionFromContext(c); ok {
		p.Session = &sess
	}
	return p
}

func renderPage(c *gin.Context, r *views.Renderer, status int, name string, layout bool, p views.Page) {
	c.Render(status, r.HTML(name, layout, p))
}

// LoadingPage is the placeholder shown while a session is being restored.
// It refreshes itself.
func LoadingPage(r *views.Renderer) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := basePage(c, views.View{Title: "Loading"})
		p.RetryAfter = middlewares.LoadingRetrySeconds
		renderPage(c, r, http.StatusOK, "loading", false, p)
	}
}
