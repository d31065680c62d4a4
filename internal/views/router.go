// Package views maps roles to dashboards and renders the HTML pages.
package views

import (
	"github.com/geocoder89/incidentdesk/internal/domain/role"
	"github.com/geocoder89/incidentdesk/internal/guard"
)

type View struct {
	Name   string
	Path   string
	Title  string
	Layout bool
	Roles  []role.Role
}

var (
	AdminView = View{
		Name: "admin", Path: "/admin", Title: "Security overview",
		Layout: true, Roles: []role.Role{role.Admin},
	}
	AnalystView = View{
		Name: "analyst", Path: "/analyst", Title: "Triage queue",
		Layout: true, Roles: []role.Role{role.Analyst},
	}
	// employees get the focused reporting screen without the shared chrome
	EmployeeView = View{
		Name: "employee", Path: "/employee", Title: "Report suspicious activity",
		Layout: false, Roles: []role.Role{role.Employee},
	}
	ReportingView = View{
		Name: "reporting", Path: "/reporting", Title: "Report an incident",
		Layout: true, Roles: []role.Role{role.Employee, role.Analyst, role.Admin},
	}
	UnknownRoleView = View{
		Name: "unknown_role", Title: "Unknown role",
	}
)

// Protected lists every page behind the access guard.
func Protected() []View {
	return []View{AdminView, AnalystView, EmployeeView, ReportingView}
}

func (v View) Route() guard.Route {
	return guard.Route{Path: v.Path, Roles: v.Roles, Layout: v.Layout}
}

type dashboards struct{}

func (dashboards) Admin() View    { return AdminView }
func (dashboards) Analyst() View  { return AnalystView }
func (dashboards) Employee() View { return EmployeeView }

// ForRole picks the dashboard for r. Roles outside the enumeration get the
// unknown-role notice, never a privileged view.
func ForRole(r role.Role) View {
	v, err := role.Visit[View](r, dashboards{})
	if err != nil {
		return UnknownRoleView
	}
	return v
}
