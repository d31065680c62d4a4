// Package guard decides whether a protected page may be shown. It is pure:
// the HTTP layer turns a Decision into a placeholder, a redirect or the page.
package guard

import (
	"github.com/geocoder89/incidentdesk/internal/domain/role"
	"github.com/geocoder89/incidentdesk/internal/session"
)

// LoginPath is where every denied request is sent.
const LoginPath = "/"

type Outcome int

const (
	Loading Outcome = iota
	RedirectLogin
	Render
)

func (o Outcome) String() string {
	switch o {
	case Loading:
		return "loading"
	case RedirectLogin:
		return "redirect_login"
	case Render:
		return "render"
	}
	return "unknown"
}

// Route describes one protected page.
type Route struct {
	Path   string
	Roles  []role.Role
	Layout bool
}

type Decision struct {
	Outcome  Outcome
	Layout   bool
	Redirect string
	// Reason is for logs: loading, no_session, unknown_role, role_denied, ok.
	Reason string
}

// Decide applies the access rules in order: a pending restore shows the
// placeholder, a missing session or a role outside the route's set goes to
// the login page, everything else renders.
func Decide(st session.State, route Route, currentPath string) Decision {
	if st.Status == session.StatusLoading {
		return Decision{Outcome: Loading, Reason: "loading"}
	}

	if !st.Authenticated() {
		return deny(currentPath, "no_session")
	}

	r := st.Session.Role
	if !r.Valid() {
		return deny(currentPath, "unknown_role")
	}

	if len(route.Roles) > 0 && !r.In(route.Roles...) {
		return deny(currentPath, "role_denied")
	}

	return Decision{Outcome: Render, Layout: route.Layout, Reason: "ok"}
}

func deny(currentPath, reason string) Decision {
	// already on the login page: render it rather than loop
	if currentPath == LoginPath {
		return Decision{Outcome: Render, Reason: reason}
	}
	return Decision{Outcome: RedirectLogin, Redirect: LoginPath, Reason: reason}
}
