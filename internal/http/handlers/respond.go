package handlers

import (
	"errors"
	"net/http"

	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/guard"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Redirect  string      `json:"redirect,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	if id := ctx.GetString(middlewares.CtxRequestID); id != "" {
		return id
	}
	return ctx.GetHeader("X-Request-Id")
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.AbortWithStatusJSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondConflict(ctx *gin.Context, code, message string, details interface{}) {
	RespondError(ctx, http.StatusConflict, code, message, details)
}

// RespondUnauthorized tells the browser its session is gone and where to go.
func RespondUnauthorized(ctx *gin.Context, code, message string) {
	ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Redirect:  guard.LoginPath,
		},
	})
}

func RespondValidation(ctx *gin.Context, verr *incident.ValidationError) {
	RespondBadRequest(ctx, "Invalid request body", gin.H{"fields": verr.Fields})
}

// RespondUpstreamError maps a failed incident API call onto the portal's
// JSON envelope. A 401 has already torn the session down by the time it
// gets here.
func RespondUpstreamError(ctx *gin.Context, err error) {
	_ = ctx.Error(err)

	var verr *incident.ValidationError
	if errors.As(err, &verr) {
		RespondValidation(ctx, verr)
		return
	}

	if errors.Is(err, backend.ErrUnauthorized) {
		RespondUnauthorized(ctx, "session_expired", "Your session has ended. Sign in again.")
		return
	}

	if backend.IsNetwork(err) {
		RespondError(ctx, http.StatusBadGateway, "backend_unreachable", "The incident service is unreachable. Try again in a moment.", nil)
		return
	}

	status := backend.StatusOf(err)
	switch {
	case status == http.StatusNotFound:
		RespondNotFound(ctx, messageOr(err, "Incident not found"))
	case status >= 400 && status < 500:
		RespondError(ctx, status, "backend_rejected", messageOr(err, http.StatusText(status)), nil)
	case status != 0:
		RespondError(ctx, http.StatusBadGateway, "backend_error", "The incident service failed to answer.", nil)
	default:
		RespondInternal(ctx, "Unexpected error")
	}
}

// upstreamMessage is the inline text shown on a page for a failed call.
func upstreamMessage(err error) string {
	if backend.IsNetwork(err) {
		return "The incident service is unreachable. Try again in a moment."
	}
	if s := backend.StatusOf(err); s >= 400 && s < 500 {
		return messageOr(err, "The incident service rejected the request.")
	}
	return "The incident service failed to answer. Try again in a moment."
}

func messageOr(err error, fallback string) string {
	if msg := backend.MessageOf(err); msg != "" {
		return msg
	}
	return fallback
}
