package middlewares

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	csrfCookieName = "csrf_token"
	csrfHeaderName = "X-CSRF-Token"
	csrfFormField  = "csrf_token"
)

type CSRFConfig struct {
	CookieSecure bool
}

// CSRF is a double-submit check: the cookie must match the X-CSRF-Token
// header or the csrf_token form field on every state-changing request.
// Safe requests get a cookie when they have none, and the token is put on
// the context for templates.
func CSRF(cfg CSRFConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, _ := c.Cookie(csrfCookieName)

		if isSafeMethod(c.Request.Method) {
			if cookie == "" {
				token, err := generateCSRFToken()
				if err != nil {
					slog.ErrorContext(c.Request.Context(), "failed to generate csrf token", "err", err)
					c.Next()
					return
				}
				cookie = token
				c.SetSameSite(http.SameSiteLaxMode)
				c.SetCookie(csrfCookieName, token, 86400, "/", "", cfg.CookieSecure, true)
			}
			c.Set(CtxCSRFToken, cookie)
			c.Next()
			return
		}

		sent := c.GetHeader(csrfHeaderName)
		if sent == "" {
			sent = c.PostForm(csrfFormField)
		}

		if cookie == "" || sent == "" || subtle.ConstantTimeCompare([]byte(cookie), []byte(sent)) != 1 {
			slog.WarnContext(c.Request.Context(), "csrf validation failed",
				"method", c.Request.Method, "path", c.Request.URL.Path, "client_id", ClientIDFromContext(c))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": gin.H{
					"code":      "csrf_failed",
					"message":   "CSRF token validation failed",
					"requestId": c.GetString(CtxRequestID),
				},
			})
			return
		}

		c.Set(CtxCSRFToken, cookie)
		c.Next()
	}
}

func CSRFTokenFromContext(c *gin.Context) string {
	return c.GetString(CtxCSRFToken)
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func generateCSRFToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
