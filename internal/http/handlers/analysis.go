package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/geocoder89/incidentdesk/internal/analysis"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type AnalysisHandler struct {
	live LiveAnalysis
}

func NewAnalysisHandler(live LiveAnalysis) *AnalysisHandler {
	return &AnalysisHandler{live: live}
}

type liveResponse struct {
	Applied  bool               `json:"applied"`
	Seq      uint64             `json:"seq"`
	Skipped  bool               `json:"skipped,omitempty"`
	Fallback bool               `json:"fallback,omitempty"`
	Analysis *incident.Analysis `json:"analysis"`
}

// SubmitLive takes one edit of the report form. The call blocks for the
// debounce window; only the last edit of a burst reaches the incident API.
func (h *AnalysisHandler) SubmitLive(ctx *gin.Context) {
	var req incident.AnalysisRequest
	if !DecodeJSON(ctx, &req) {
		return
	}
	req.Description = strings.TrimSpace(req.Description)
	req.URL = incident.NormalizeURL(req.URL)

	sess, _ := middlewares.SessionFromContext(ctx)

	res, err := h.live.Submit(ctx.Request.Context(), middlewares.ClientIDFromContext(ctx), sess.Token, req)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, liveResponse{
			Applied:  true,
			Seq:      res.Seq,
			Skipped:  res.Skipped,
			Fallback: res.Fallback,
			Analysis: res.Analysis,
		})
	case errors.Is(err, analysis.ErrSuperseded):
		RespondConflict(ctx, "superseded", "A newer edit replaced this one", gin.H{"seq": res.Seq})
	case errors.Is(err, analysis.ErrStale):
		RespondConflict(ctx, "stale", "A newer analysis was requested", gin.H{"seq": res.Seq})
	case errors.Is(err, analysis.ErrCircuitOpen):
		ctx.Header("Retry-After", "30")
		RespondError(ctx, http.StatusServiceUnavailable, "analysis_unavailable", "Live analysis is paused after repeated failures.", nil)
	case errors.Is(err, context.Canceled):
		// browser went away
		ctx.Abort()
	default:
		RespondUpstreamError(ctx, err)
	}
}

// LatestLive returns the last applied analysis, for page reloads.
func (h *AnalysisHandler) LatestLive(ctx *gin.Context) {
	res, ok := h.live.Latest(middlewares.ClientIDFromContext(ctx))
	if !ok {
		ctx.Status(http.StatusNoContent)
		return
	}

	ctx.JSON(http.StatusOK, liveResponse{
		Applied:  true,
		Seq:      res.Seq,
		Skipped:  res.Skipped,
		Fallback: res.Fallback,
		Analysis: res.Analysis,
	})
}
