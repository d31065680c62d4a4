package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/guard"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/geocoder89/incidentdesk/internal/views"
	"github.com/gin-gonic/gin"
)

// PagesHandler serves the role dashboards and the HTML forms. Every route
// here sits behind middlewares.RequirePage.
type PagesHandler struct {
	api       IncidentAPI
	snapshots *Snapshots
	live      LiveAnalysis
	views     *views.Renderer
	timeout   time.Duration
	now       func() time.Time
}

func NewPagesHandler(api IncidentAPI, snapshots *Snapshots, live LiveAnalysis, r *views.Renderer, timeout time.Duration) *PagesHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PagesHandler{api: api, snapshots: snapshots, live: live, views: r, timeout: timeout, now: time.Now}
}

// Dashboard returns the handler for one role view.
func (h *PagesHandler) Dashboard(view views.View) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := middlewares.SessionFromContext(c)
		layout := middlewares.LayoutFromContext(c)
		p := basePage(c, view)

		cctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		snap, err := h.snapshots.Load(cctx, middlewares.ClientIDFromContext(c), sess, view)
		if err != nil {
			if h.sessionEnded(c, err) {
				return
			}
			_ = c.Error(err)
			p.Error = upstreamMessage(err)
			renderPage(c, h.views, http.StatusBadGateway, view.Name, layout, p)
			return
		}

		p.Incidents = snap.Incidents
		p.Stats = snap.Stats
		h.withLatestAnalysis(c, &p)
		renderPage(c, h.views, http.StatusOK, view.Name, layout, p)
	}
}

// Reporting is the shared report form.
func (h *PagesHandler) Reporting(c *gin.Context) {
	p := basePage(c, views.ReportingView)
	h.withLatestAnalysis(c, &p)
	renderPage(c, h.views, http.StatusOK, views.ReportingView.Name, middlewares.LayoutFromContext(c), p)
}

// SubmitReport handles the report form of view. Invalid input is shown
// inline and never sent.
func (h *PagesHandler) SubmitReport(view views.View) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, _ := middlewares.SessionFromContext(c)
		clientID := middlewares.ClientIDFromContext(c)

		draft := incident.Draft{
			Title:       c.PostForm("title"),
			Description: c.PostForm("description"),
			URL:         c.PostForm("url"),
			Type:        c.PostForm("incident_type"),
		}.Normalize()

		if err := draft.Validate(); err != nil {
			p := basePage(c, view)
			p.Draft = draft
			p.FieldErrors = FieldMessages(err)
			p.Error = "Please fix the highlighted fields."
			renderPage(c, h.views, http.StatusBadRequest, view.Name, view.Layout, p)
			return
		}
		draft = draft.WithDefaultTitle(h.now())

		cctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
		defer cancel()

		_, err := h.api.CreateIncident(cctx, sess.Token, backend.CreateInput{
			Title:       draft.Title,
			Description: draft.Description,
			URL:         draft.URL,
			Type:        draft.Type,
		})
		if err != nil {
			if h.sessionEnded(c, err) {
				return
			}
			_ = c.Error(err)
			p := basePage(c, view)
			p.Draft = draft
			p.Error = upstreamMessage(err)
			renderPage(c, h.views, http.StatusBadGateway, view.Name, view.Layout, p)
			return
		}

		h.snapshots.Forget(clientID)
		c.Redirect(http.StatusSeeOther, view.Path+"?notice=report_sent")
	}
}

// UpdateStatus handles the triage form on the analyst and admin views.
func (h *PagesHandler) UpdateStatus(c *gin.Context) {
	sess, _ := middlewares.SessionFromContext(c)

	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.Redirect(http.StatusSeeOther, dashboardPath+"?error=update_failed")
		return
	}

	status, _ := incident.ParseStatus(c.PostForm("status"))
	upd := incident.StatusUpdate{Status: status, Notes: c.PostForm("notes")}
	if err := upd.Validate(); err != nil {
		c.Redirect(http.StatusSeeOther, dashboardPath+"?error=invalid_status")
		return
	}

	cctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	_, err = h.api.UpdateIncident(cctx, sess.Token, id, backend.UpdateInput{Status: upd.Status, Notes: upd.Notes})
	if err != nil {
		if h.sessionEnded(c, err) {
			return
		}
		_ = c.Error(err)
		c.Redirect(http.StatusSeeOther, dashboardPath+"?error=update_failed")
		return
	}

	h.snapshots.Forget(middlewares.ClientIDFromContext(c))
	c.Redirect(http.StatusSeeOther, dashboardPath+"?notice=status_updated")
}

// sessionEnded sends the browser to the login page after a 401. The
// backend client has already torn the session down.
func (h *PagesHandler) sessionEnded(c *gin.Context, err error) bool {
	if !errors.Is(err, backend.ErrUnauthorized) {
		return false
	}
	c.Redirect(http.StatusSeeOther, guard.LoginPath)
	c.Abort()
	return true
}

func (h *PagesHandler) withLatestAnalysis(c *gin.Context, p *views.Page) {
	if h.live == nil {
		return
	}
	if res, ok := h.live.Latest(middlewares.ClientIDFromContext(c)); ok && !res.Skipped {
		p.Analysis = res.Analysis
	}
}
