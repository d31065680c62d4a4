package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/geocoder89/incidentdesk/internal/guard"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/geocoder89/incidentdesk/internal/session"
	"github.com/geocoder89/incidentdesk/internal/views"
	"github.com/gin-gonic/gin"
)

const dashboardPath = "/dashboard"

type AuthHandler struct {
	sessions Sessions
	views    *views.Renderer
	timeout  time.Duration
}

func NewAuthHandler(sessions Sessions, r *views.Renderer, timeout time.Duration) *AuthHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &AuthHandler{sessions: sessions, views: r, timeout: timeout}
}

// LoginPage serves "/". Signed-in clients go straight to their dashboard.
func (h *AuthHandler) LoginPage(ctx *gin.Context) {
	st := middlewares.SessionStateFromContext(ctx)

	switch {
	case st.Status == session.StatusLoading:
		LoadingPage(h.views)(ctx)
	case st.Authenticated():
		ctx.Redirect(http.StatusSeeOther, dashboardPath)
	default:
		h.renderLogin(ctx, http.StatusOK, "", "")
	}
}

func (h *AuthHandler) Login(ctx *gin.Context) {
	username := strings.TrimSpace(ctx.PostForm("username"))
	password := ctx.PostForm("password")

	if username == "" || password == "" {
		h.renderLogin(ctx, http.StatusBadRequest, username, "Enter your username and password.")
		return
	}

	cctx, cancel := context.WithTimeout(ctx.Request.Context(), h.timeout)
	defer cancel()

	_, err := h.sessions.Login(cctx, middlewares.ClientIDFromContext(ctx), username, password)
	if err != nil {
		msg := "Unable to sign in. Check your username and password."
		var le *session.LoginError
		if errors.As(err, &le) {
			msg = le.Message
		}
		h.renderLogin(ctx, http.StatusUnauthorized, username, msg)
		return
	}

	ctx.Redirect(http.StatusSeeOther, dashboardPath)
}

func (h *AuthHandler) Logout(ctx *gin.Context) {
	if err := h.sessions.Logout(ctx.Request.Context(), middlewares.ClientIDFromContext(ctx)); err != nil {
		_ = ctx.Error(err)
	}
	ctx.Redirect(http.StatusSeeOther, guard.LoginPath+"?notice=signed_out")
}

// Dashboard sends the user to the view of their role. Unknown roles get
// the notice page instead of any dashboard.
func (h *AuthHandler) Dashboard(ctx *gin.Context) {
	st := middlewares.SessionStateFromContext(ctx)

	switch {
	case st.Status == session.StatusLoading:
		LoadingPage(h.views)(ctx)
		return
	case !st.Authenticated():
		ctx.Redirect(http.StatusSeeOther, guard.LoginPath)
		return
	}

	view := views.ForRole(st.Session.Role)
	if view.Path == "" {
		p := basePage(ctx, view)
		renderPage(ctx, h.views, http.StatusOK, view.Name, false, p)
		return
	}

	target := view.Path
	if q := ctx.Request.URL.RawQuery; q != "" {
		target += "?" + q
	}
	ctx.Redirect(http.StatusSeeOther, target)
}

type sessionResponse struct {
	Status  string           `json:"status"`
	Session *session.Session `json:"session,omitempty"`
	View    string           `json:"view,omitempty"`
}

// Session reports the client's state to scripts.
func (h *AuthHandler) Session(ctx *gin.Context) {
	st := middlewares.SessionStateFromContext(ctx)

	resp := sessionResponse{Status: st.Status.String()}
	if st.Authenticated() {
		resp.Session = st.Session
		resp.View = views.ForRole(st.Session.Role).Name
	}

	status := http.StatusOK
	if st.Status == session.StatusLoading {
		ctx.Header("Retry-After", "1")
		status = http.StatusAccepted
	}
	ctx.JSON(status, resp)
}

func (h *AuthHandler) renderLogin(ctx *gin.Context, status int, username, errMsg string) {
	p := basePage(ctx, views.View{Title: "Sign in", Path: guard.LoginPath})
	p.Session = nil
	p.Username = username
	if errMsg != "" {
		p.Error = errMsg
	}
	renderPage(ctx, h.views, status, "login", false, p)
}
