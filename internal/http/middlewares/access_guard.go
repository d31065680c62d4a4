package middlewares

import (
	"log/slog"
	"net/http"

	"github.com/geocoder89/incidentdesk/internal/domain/role"
	"github.com/geocoder89/incidentdesk/internal/guard"
	"github.com/gin-gonic/gin"
)

// LoadingRetrySeconds is how soon a client shown the loading placeholder
// should ask again.
const LoadingRetrySeconds = 1

// RequirePage guards an HTML page. A pending restore renders through
// loading, every denial is a 303 to the login page.
func RequirePage(route guard.Route, loading gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		d := guard.Decide(SessionStateFromContext(c), route, c.Request.URL.Path)

		switch d.Outcome {
		case guard.Loading:
			c.Header("Retry-After", "1")
			loading(c)
			c.Abort()
		case guard.RedirectLogin:
			slog.Default().DebugContext(c.Request.Context(), "page denied",
				"path", c.Request.URL.Path, "reason", d.Reason, "client_id", ClientIDFromContext(c))
			c.Redirect(http.StatusSeeOther, d.Redirect)
			c.Abort()
		default:
			c.Set(CtxLayout, d.Layout)
			c.Next()
		}
	}
}

// RequireAPI guards a JSON endpoint. No roles means any known role.
func RequireAPI(roles ...role.Role) gin.HandlerFunc {
	route := guard.Route{Roles: roles}

	return func(c *gin.Context) {
		d := guard.Decide(SessionStateFromContext(c), route, c.Request.URL.Path)

		switch d.Outcome {
		case guard.Loading:
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": gin.H{
					"code":      "session_loading",
					"message":   "Session is still loading",
					"requestId": c.GetString(CtxRequestID),
				},
			})
		case guard.RedirectLogin:
			status, code, msg := http.StatusUnauthorized, "unauthorized", "Sign in to continue"
			if d.Reason != "no_session" {
				status, code, msg = http.StatusForbidden, "forbidden", "Your role cannot access this resource"
			}
			c.AbortWithStatusJSON(status, gin.H{
				"error": gin.H{
					"code":      code,
					"message":   msg,
					"redirect":  d.Redirect,
					"requestId": c.GetString(CtxRequestID),
				},
			})
		default:
			c.Next()
		}
	}
}
