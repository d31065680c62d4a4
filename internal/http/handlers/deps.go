package handlers

import (
	"context"

	"github.com/geocoder89/incidentdesk/internal/analysis"
	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/session"
)

// IncidentAPI is the incident API as the handlers use it; *backend.Client
// implements it.
type IncidentAPI interface {
	ListIncidents(ctx context.Context, token string, f incident.ListFilter) ([]incident.Incident, error)
	MyIncidents(ctx context.Context, token string, limit int) ([]incident.Incident, error)
	GetIncident(ctx context.Context, token string, id int64) (incident.Incident, error)
	CreateIncident(ctx context.Context, token string, in backend.CreateInput) (incident.Incident, error)
	UpdateIncident(ctx context.Context, token string, id int64, in backend.UpdateInput) (incident.Incident, error)
	Stats(ctx context.Context, token string) (incident.Stats, error)
	Export(ctx context.Context, token string, format backend.ExportFormat) (backend.Export, error)
}

type Sessions interface {
	Login(ctx context.Context, clientID, username, password string) (session.Session, error)
	Logout(ctx context.Context, clientID string) error
}

type LiveAnalysis interface {
	Submit(ctx context.Context, clientID, token string, req incident.AnalysisRequest) (analysis.Result, error)
	Latest(clientID string) (analysis.Result, bool)
}
