package handlers

import (
	"context"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

const maxListLimit = 500

// IncidentsHandler is the JSON API the pages' scripts and other tools use.
// It forwards to the incident API with the client's token.
type IncidentsHandler struct {
	api       IncidentAPI
	snapshots *Snapshots
	timeout   time.Duration
	now       func() time.Time
}

func NewIncidentsHandler(api IncidentAPI, snapshots *Snapshots, timeout time.Duration) *IncidentsHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &IncidentsHandler{api: api, snapshots: snapshots, timeout: timeout, now: time.Now}
}

func (h *IncidentsHandler) List(ctx *gin.Context) {
	h.list(ctx, false)
}

func (h *IncidentsHandler) Mine(ctx *gin.Context) {
	h.list(ctx, true)
}

func (h *IncidentsHandler) list(ctx *gin.Context, mine bool) {
	limit, ok := parseLimit(ctx)
	if !ok {
		return
	}

	// the filters only apply to the staff list
	var filter incident.ListFilter
	if !mine {
		filter = incident.ParseListFilter(ctx.Request.URL.Query())
		filter.Limit = limit
		if !CheckValid(ctx, filter) {
			return
		}
	}
	sess, _ := middlewares.SessionFromContext(ctx)

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	var (
		items []incident.Incident
		err   error
	)
	if mine {
		items, err = h.api.MyIncidents(cctx, sess.Token, limit)
	} else {
		items, err = h.api.ListIncidents(cctx, sess.Token, filter)
	}
	if err != nil {
		RespondUpstreamError(ctx, err)
		return
	}
	if items == nil {
		items = []incident.Incident{}
	}

	body := gin.H{
		"incidents": items,
		"limit":     limit,
	}
	if !mine {
		body["filter"] = filter
	}
	RespondJSONWithETag(ctx, http.StatusOK, body)
}

func (h *IncidentsHandler) Get(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}
	sess, _ := middlewares.SessionFromContext(ctx)

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	item, err := h.api.GetIncident(cctx, sess.Token, id)
	if err != nil {
		RespondUpstreamError(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"incident": item})
}

func (h *IncidentsHandler) Create(ctx *gin.Context) {
	var draft incident.Draft
	if !DecodeJSON(ctx, &draft) {
		return
	}

	draft = draft.Normalize()
	if !CheckValid(ctx, draft) {
		return
	}
	draft = draft.WithDefaultTitle(h.now())

	sess, _ := middlewares.SessionFromContext(ctx)

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	item, err := h.api.CreateIncident(cctx, sess.Token, backend.CreateInput{
		Title:       draft.Title,
		Description: draft.Description,
		URL:         draft.URL,
		Type:        draft.Type,
	})
	if err != nil {
		RespondUpstreamError(ctx, err)
		return
	}

	h.snapshots.Forget(middlewares.ClientIDFromContext(ctx))
	ctx.JSON(http.StatusCreated, gin.H{"incident": item})
}

func (h *IncidentsHandler) Update(ctx *gin.Context) {
	id, ok := parseID(ctx)
	if !ok {
		return
	}

	var upd incident.StatusUpdate
	if !DecodeJSON(ctx, &upd) {
		return
	}
	if !CheckValid(ctx, upd) {
		return
	}

	sess, _ := middlewares.SessionFromContext(ctx)

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	item, err := h.api.UpdateIncident(cctx, sess.Token, id, backend.UpdateInput{Status: upd.Status, Notes: upd.Notes})
	if err != nil {
		RespondUpstreamError(ctx, err)
		return
	}

	h.snapshots.Forget(middlewares.ClientIDFromContext(ctx))
	ctx.JSON(http.StatusOK, gin.H{"incident": item})
}

func (h *IncidentsHandler) Stats(ctx *gin.Context) {
	sess, _ := middlewares.SessionFromContext(ctx)

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	stats, err := h.api.Stats(cctx, sess.Token)
	if err != nil {
		RespondUpstreamError(ctx, err)
		return
	}

	RespondJSONWithETag(ctx, http.StatusOK, gin.H{"stats": stats})
}

// Export streams the CSV or PDF report from the incident API.
func (h *IncidentsHandler) Export(ctx *gin.Context) {
	format, ok := backend.ParseExportFormat(ctx.Param("format"))
	if !ok {
		RespondBadRequest(ctx, "Unsupported export format", gin.H{"format": ctx.Param("format"), "allowed": []string{"csv", "pdf"}})
		return
	}
	sess, _ := middlewares.SessionFromContext(ctx)

	// exports can be slow; no per-call timeout beyond the request's own
	export, err := h.api.Export(ctx.Request.Context(), sess.Token, format)
	if err != nil {
		RespondUpstreamError(ctx, err)
		return
	}
	defer export.Body.Close()

	ctx.DataFromReader(http.StatusOK, export.Length, export.ContentType, export.Body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": export.Filename}),
	})
}

func parseID(ctx *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(ctx.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		RespondBadRequest(ctx, "Invalid incident id", gin.H{"id": ctx.Param("id")})
		return 0, false
	}
	return id, true
}

func parseLimit(ctx *gin.Context) (int, bool) {
	raw := ctx.Query("limit")
	if raw == "" {
		return DefaultListLimit, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > maxListLimit {
		RespondBadRequest(ctx, "Invalid limit", gin.H{"limit": raw, "max": maxListLimit})
		return 0, false
	}
	return n, true
}
