package middlewares

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

func RequestID() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		ctx.Writer.Header().Set(requestIDHeader, id)
		ctx.Set(CtxRequestID, id)

		ctx.Next()
	}
}

// RequestLogger writes one line per request. Static assets and probes are
// logged at debug level.
func RequestLogger(log *slog.Logger) gin.HandlerFunc {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx *gin.Context) {
		start := time.Now()

		ctx.Next()

		route := ctx.FullPath()
		if route == "" {
			route = ctx.Request.URL.Path // 404s have no route
		}

		attrs := []any{
			"method", ctx.Request.Method,
			"route", route,
			"status", ctx.Writer.Status(),
			"latency_ms", time.Since(start).Milliseconds(),
			"request_id", ctx.GetString(CtxRequestID),
		}

		if clientID := ctx.GetString(CtxClientID); clientID != "" {
			attrs = append(attrs, "client_id", clientID)
		}
		if st, ok := stateFrom(ctx); ok && st.Authenticated() {
			attrs = append(attrs, "user_id", st.Session.UserID)
		}
		if len(ctx.Errors) > 0 {
			attrs = append(attrs, "errors", ctx.Errors.String())
		}

		level := slog.LevelInfo
		switch {
		case ctx.Writer.Status() >= 500:
			level = slog.LevelError
		case isQuietRoute(route):
			level = slog.LevelDebug
		}

		log.Log(ctx.Request.Context(), level, "http_request", attrs...)
	}
}

func isQuietRoute(route string) bool {
	switch route {
	case "/healthz", "/readyz", "/metrics", "/static/*filepath":
		return true
	}
	return false
}
