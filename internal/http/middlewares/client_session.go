package middlewares

import (
	"context"
	"net/http"

	"github.com/geocoder89/incidentdesk/internal/actorctx"
	"github.com/geocoder89/incidentdesk/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ClientCookie identifies one browser. The session itself never leaves
// the server.
const ClientCookie = "incidentdesk_client"

// SessionResolver is the part of the session store the middleware needs.
type SessionResolver interface {
	Resolve(ctx context.Context, clientID string) session.State
}

type CookieConfig struct {
	Secure bool
	// MaxAge in seconds; 0 keeps the cookie for the browser session.
	MaxAge int
}

// ClientID makes sure every request carries a client id, issuing a new
// cookie when the browser has none or sends garbage.
func ClientID(cfg CookieConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := c.Cookie(ClientCookie)
		if err != nil || uuid.Validate(id) != nil {
			id = uuid.NewString()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(ClientCookie, id, cfg.MaxAge, "/", "", cfg.Secure, true)
		}

		c.Set(CtxClientID, id)
		c.Request = c.Request.WithContext(actorctx.WithClientID(c.Request.Context(), id))

		c.Next()
	}
}

// ResolveSession loads the client's session state for the handlers below.
// It must run after ClientID.
func ResolveSession(store SessionResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		st := store.Resolve(c.Request.Context(), c.GetString(CtxClientID))
		c.Set(CtxState, st)

		if st.Authenticated() {
			c.Request = c.Request.WithContext(actorctx.WithUserID(c.Request.Context(), st.Session.UserID))
		}

		c.Next()
	}
}

func ClientIDFromContext(c *gin.Context) string {
	return c.GetString(CtxClientID)
}

// SessionStateFromContext returns the state resolved for this request.
// Without ResolveSession in the chain the client is anonymous.
func SessionStateFromContext(c *gin.Context) session.State {
	st, ok := stateFrom(c)
	if !ok {
		return session.State{Status: session.StatusAnonymous}
	}
	return st
}

func SessionFromContext(c *gin.Context) (session.Session, bool) {
	st, ok := stateFrom(c)
	if !ok || !st.Authenticated() {
		return session.Session{}, false
	}
	return *st.Session, true
}

// LayoutFromContext reports whether the guard asked for the shared layout.
func LayoutFromContext(c *gin.Context) bool {
	return c.GetBool(CtxLayout)
}

func stateFrom(c *gin.Context) (session.State, bool) {
	v, ok := c.Get(CtxState)
	if !ok {
		return session.State{}, false
	}
	st, ok := v.(session.State)
	return st, ok
}
