package backend

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/geocoder89/incidentdesk/internal/domain/incident"
)

type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

func ParseExportFormat(raw string) (ExportFormat, bool) {
	switch f := ExportFormat(raw); f {
	case ExportCSV, ExportPDF:
		return f, true
	}
	return "", false
}

// Export is a streamed report download. Body must be closed.
type Export struct {
	ContentType string
	Filename    string
	Length      int64
	Body        io.ReadCloser
}

type incidentsEnvelope struct {
	Incidents []incident.Incident `json:"incidents"`
}

type incidentEnvelope struct {
	Success  bool              `json:"success"`
	Incident incident.Incident `json:"incident"`
	Error    string            `json:"error,omitempty"`
}

type statsEnvelope struct {
	Stats incident.Stats `json:"stats"`
}

type analysisEnvelope struct {
	Success  bool              `json:"success"`
	Analysis incident.Analysis `json:"analysis"`
	Error    string            `json:"error,omitempty"`
}

// CreateInput is what gets posted for a new report.
type CreateInput struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url,omitempty"`
	Type        string `json:"incident_type"`
}

type UpdateInput struct {
	Status incident.Status `json:"status"`
	Notes  string          `json:"notes,omitempty"`
}

// ListIncidents returns the incidents visible to token, narrowed by f.
func (c *Client) ListIncidents(ctx context.Context, token string, f incident.ListFilter) ([]incident.Incident, error) {
	path := "/incidents"
	if q := f.Query(); len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out incidentsEnvelope
	if err := c.doJSON(ctx, "incidents_list", http.MethodGet, path, token, nil, &out); err != nil {
		return nil, err
	}
	return out.Incidents, nil
}

func (c *Client) MyIncidents(ctx context.Context, token string, limit int) ([]incident.Incident, error) {
	var out incidentsEnvelope
	if err := c.doJSON(ctx, "incidents_mine", http.MethodGet, "/incidents/my-incidents"+limitQuery(limit), token, nil, &out); err != nil {
		return nil, err
	}
	return out.Incidents, nil
}

func (c *Client) GetIncident(ctx context.Context, token string, id int64) (incident.Incident, error) {
	var out incidentEnvelope
	path := "/incidents/" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, "incidents_get", http.MethodGet, path, token, nil, &out); err != nil {
		return incident.Incident{}, err
	}
	return out.Incident, nil
}

func (c *Client) CreateIncident(ctx context.Context, token string, in CreateInput) (incident.Incident, error) {
	var out incidentEnvelope
	if err := c.doJSON(ctx, "incidents_create", http.MethodPost, "/incidents/create", token, in, &out); err != nil {
		return incident.Incident{}, err
	}
	return out.Incident, nil
}

func (c *Client) UpdateIncident(ctx context.Context, token string, id int64, in UpdateInput) (incident.Incident, error) {
	var out incidentEnvelope
	path := "/incidents/" + strconv.FormatInt(id, 10)
	if err := c.doJSON(ctx, "incidents_update", http.MethodPatch, path, token, in, &out); err != nil {
		return incident.Incident{}, err
	}
	return out.Incident, nil
}

func (c *Client) Stats(ctx context.Context, token string) (incident.Stats, error) {
	var out statsEnvelope
	if err := c.doJSON(ctx, "incidents_stats", http.MethodGet, "/incidents/stats", token, nil, &out); err != nil {
		return incident.Stats{}, err
	}
	return out.Stats, nil
}

func (c *Client) Analyze(ctx context.Context, token string, req incident.AnalysisRequest) (incident.Analysis, error) {
	var out analysisEnvelope
	if err := c.doJSON(ctx, "incidents_analyze", http.MethodPost, "/incidents/analyze", token, req, &out); err != nil {
		return incident.Analysis{}, err
	}
	if !out.Success && out.Error != "" {
		return incident.Analysis{}, &APIError{Endpoint: "incidents_analyze", Status: http.StatusOK, Message: out.Error}
	}
	return out.Analysis, nil
}

func (c *Client) Export(ctx context.Context, token string, format ExportFormat) (Export, error) {
	if _, ok := ParseExportFormat(string(format)); !ok {
		return Export{}, fmt.Errorf("backend: unsupported export format %q", format)
	}

	resp, err := c.do(ctx, "incidents_export", http.MethodGet, "/incidents/export/"+url.PathEscape(string(format)), token, nil)
	if err != nil {
		return Export{}, err
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = mime.TypeByExtension("." + string(format))
	}

	return Export{
		ContentType: ct,
		Filename:    exportFilename(resp.Header.Get("Content-Disposition"), format),
		Length:      resp.ContentLength,
		Body:        resp.Body,
	}, nil
}

func exportFilename(disposition string, format ExportFormat) string {
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil && params["filename"] != "" {
			return params["filename"]
		}
	}
	return "incident_report." + string(format)
}
