package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/incidentdesk/internal/analysis"
	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/cache"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/domain/role"
	"github.com/geocoder89/incidentdesk/internal/http/handlers"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/geocoder89/incidentdesk/internal/session"
	"github.com/geocoder89/incidentdesk/internal/views"
	"github.com/gin-gonic/gin"
)

type fakeAPI struct {
	mu sync.Mutex

	calls   map[string]int
	created []backend.CreateInput
	updated []backend.UpdateInput
	tokens  []string
	filters []incident.ListFilter

	items []incident.Incident
	stats incident.Stats
	err   error

	mine func(ctx context.Context, token string) ([]incident.Incident, error)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{calls: map[string]int{}}
}

func (f *fakeAPI) record(name, token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	f.tokens = append(f.tokens, token)
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ListIncidents(_ context.Context, token string, filter incident.ListFilter) ([]incident.Incident, error) {
	f.record("list", token)
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	return f.items, f.err
}

func (f *fakeAPI) MyIncidents(ctx context.Context, token string, _ int) ([]incident.Incident, error) {
	f.record("mine", token)
	if f.mine != nil {
		return f.mine(ctx, token)
	}
	return f.items, f.err
}

func (f *fakeAPI) GetIncident(_ context.Context, token string, id int64) (incident.Incident, error) {
	f.record("get", token)
	return incident.Incident{ID: id}, f.err
}

func (f *fakeAPI) CreateIncident(_ context.Context, token string, in backend.CreateInput) (incident.Incident, error) {
	f.record("create", token)
	f.mu.Lock()
	f.created = append(f.created, in)
	f.mu.Unlock()
	return incident.Incident{ID: 7, Title: in.Title, Status: incident.StatusNew}, f.err
}

func (f *fakeAPI) UpdateIncident(_ context.Context, token string, id int64, in backend.UpdateInput) (incident.Incident, error) {
	f.record("update", token)
	f.mu.Lock()
	f.updated = append(f.updated, in)
	f.mu.Unlock()
	return incident.Incident{ID: id, Status: in.Status}, f.err
}

func (f *fakeAPI) Stats(_ context.Context, token string) (incident.Stats, error) {
	f.record("stats", token)
	return f.stats, f.err
}

func (f *fakeAPI) Export(_ context.Context, token string, format backend.ExportFormat) (backend.Export, error) {
	f.record("export", token)
	if f.err != nil {
		return backend.Export{}, f.err
	}
	body := "id,title\n1,test\n"
	return backend.Export{
		ContentType: "text/csv",
		Filename:    "incidents." + string(format),
		Length:      int64(len(body)),
		Body:        io.NopCloser(strings.NewReader(body)),
	}, nil
}

type fakeLive struct {
	res    analysis.Result
	err    error
	latest *analysis.Result
	got    []incident.AnalysisRequest
}

func (f *fakeLive) Submit(_ context.Context, _, _ string, req incident.AnalysisRequest) (analysis.Result, error) {
	f.got = append(f.got, req)
	return f.res, f.err
}

func (f *fakeLive) Latest(string) (analysis.Result, bool) {
	if f.latest == nil {
		return analysis.Result{}, false
	}
	return *f.latest, true
}

const testClient = "client-1"

// withSession stands in for ClientID and ResolveSession.
func withSession(r role.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middlewares.CtxClientID, testClient)
		c.Set(middlewares.CtxState, session.State{
			Status:  session.StatusAuthenticated,
			Session: &session.Session{UserID: "1", Username: "ana", Role: r, Token: "tok-" + r.String()},
		})
		c.Next()
	}
}

func incidentsRouter(api *fakeAPI) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handlers.NewIncidentsHandler(api, handlers.NewSnapshots(api, cache.New(time.Minute), 0), time.Second)

	r := gin.New()
	r.Use(withSession(role.Analyst))
	r.GET("/incidents", h.List)
	r.GET("/incidents/:id", h.Get)
	r.POST("/incidents", h.Create)
	r.PATCH("/incidents/:id", h.Update)
	r.GET("/stats", h.Stats)
	r.GET("/export/:format", h.Export)
	return r
}

func serve(r http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error handlers.APIError `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) handlers.APIError {
	t.Helper()
	var env errorEnvelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("unmarshal error body: %v body=%s", err, w.Body.String())
	}
	return env.Error
}

func TestIncidents_CreateInvalidNeverCallsAPI(t *testing.T) {
	api := newFakeAPI()
	r := incidentsRouter(api)

	w := serve(r, http.MethodPost, "/incidents", `{"description":"tiny","url":"http://"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d body=%s", w.Code, w.Body.String())
	}
	if api.count("create") != 0 {
		t.Fatalf("invalid draft reached the API")
	}
}

func TestIncidents_CreateNormalizesAndDefaultsTitle(t *testing.T) {
	api := newFakeAPI()
	r := incidentsRouter(api)

	w := serve(r, http.MethodPost, "/incidents", `{"description":"  weird login page asking for my password  ","url":"example.com/login"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body=%s", w.Code, w.Body.String())
	}
	if len(api.created) != 1 {
		t.Fatalf("expected one create call, got %d", len(api.created))
	}

	in := api.created[0]
	if in.URL != "http://example.com/login" {
		t.Fatalf("url not normalized: %q", in.URL)
	}
	if in.Title != "Web: example.com" {
		t.Fatalf("unexpected default title %q", in.Title)
	}
	if in.Type != incident.DefaultType {
		t.Fatalf("unexpected type %q", in.Type)
	}
	if in.Description != "weird login page asking for my password" {
		t.Fatalf("description not trimmed: %q", in.Description)
	}
	if api.tokens[0] != "tok-analyst" {
		t.Fatalf("expected the session token, got %q", api.tokens[0])
	}
}

func TestIncidents_UpdateValidatesStatus(t *testing.T) {
	api := newFakeAPI()
	r := incidentsRouter(api)

	w := serve(r, http.MethodPatch, "/incidents/3", `{"status":"done"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if api.count("update") != 0 {
		t.Fatalf("invalid status reached the API")
	}

	w = serve(r, http.MethodPatch, "/incidents/3", `{"status":"resolved","notes":"blocked sender"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	if api.updated[0].Status != incident.StatusResolved || api.updated[0].Notes != "blocked sender" {
		t.Fatalf("unexpected update %+v", api.updated[0])
	}
}

func TestIncidents_BadParams(t *testing.T) {
	r := incidentsRouter(newFakeAPI())

	for _, path := range []string{"/incidents/abc", "/incidents/0", "/incidents?limit=0", "/incidents?limit=501", "/export/xlsx"} {
		if w := serve(r, http.MethodGet, path, ""); w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", path, w.Code)
		}
	}
}

func TestIncidents_ListETag(t *testing.T) {
	api := newFakeAPI()
	api.items = []incident.Incident{{ID: 1, Title: "a"}}
	r := incidentsRouter(api)

	w := serve(r, http.MethodGet, "/incidents", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("missing ETag")
	}
	if cc := w.Header().Get("Cache-Control"); cc != "private, no-cache" {
		t.Fatalf("unexpected Cache-Control %q", cc)
	}

	w = serve(r, http.MethodGet, "/incidents", "", "If-None-Match", etag)
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	api.items = append(api.items, incident.Incident{ID: 2})
	w = serve(r, http.MethodGet, "/incidents", "", "If-None-Match", etag)
	if w.Code != http.StatusOK {
		t.Fatalf("changed list should not match the old tag, got %d", w.Code)
	}
}

func TestIncidents_ListFilters(t *testing.T) {
	api := newFakeAPI()
	r := incidentsRouter(api)

	w := serve(r, http.MethodGet, "/incidents?start_date=2026-01-01&end_date=2026-01-31&type=phishing&user=employee&limit=20", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", w.Code, w.Body.String())
	}
	want := incident.ListFilter{Limit: 20, From: "2026-01-01", To: "2026-01-31", Type: "phishing", User: "employee"}
	if len(api.filters) != 1 || api.filters[0] != want {
		t.Fatalf("filters = %+v", api.filters)
	}

	tests := []struct {
		path  string
		field string
	}{
		{path: "/incidents?start_date=01/02/2026", field: "start_date"},
		{path: "/incidents?start_date=2026-02-01&end_date=2026-01-01", field: "end_date"},
	}
	for _, tt := range tests {
		w := serve(r, http.MethodGet, tt.path, "")
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tt.path, w.Code)
		}
		if !strings.Contains(w.Body.String(), `"field":"`+tt.field+`"`) {
			t.Fatalf("%s: body = %s", tt.path, w.Body.String())
		}
	}
	if api.count("list") != 1 {
		t.Fatalf("invalid filters reached the API")
	}
}

func TestIncidents_ExportStreams(t *testing.T) {
	r := incidentsRouter(newFakeAPI())

	w := serve(r, http.MethodGet, "/export/csv", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "attachment; filename=incidents.csv" {
		t.Fatalf("unexpected disposition %q", cd)
	}
	if !strings.HasPrefix(w.Body.String(), "id,title") {
		t.Fatalf("unexpected body %q", w.Body.String())
	}
}

func TestRespondUpstreamError_Mapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		status   int
		code     string
		redirect string
	}{
		{name: "auth", err: &backend.AuthError{Endpoint: "stats"}, status: http.StatusUnauthorized, code: "session_expired", redirect: "/"},
		{name: "network", err: &backend.NetworkError{Endpoint: "stats", Err: errors.New("refused")}, status: http.StatusBadGateway, code: "backend_unreachable"},
		{name: "not found", err: &backend.APIError{Endpoint: "stats", Status: http.StatusNotFound}, status: http.StatusNotFound, code: "not_found"},
		{name: "forbidden", err: &backend.APIError{Endpoint: "stats", Status: http.StatusForbidden, Message: "staff only"}, status: http.StatusForbidden, code: "backend_rejected"},
		{name: "server", err: &backend.APIError{Endpoint: "stats", Status: http.StatusInternalServerError}, status: http.StatusBadGateway, code: "backend_error"},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError, code: "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI()
			api.err = tt.err

			w := serve(incidentsRouter(api), http.MethodGet, "/stats", "")
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d body=%s", tt.status, w.Code, w.Body.String())
			}
			got := decodeError(t, w)
			if got.Code != tt.code || got.Redirect != tt.redirect {
				t.Fatalf("unexpected error %+v", got)
			}
		})
	}
}

func TestSnapshots_CachedUntilForgotten(t *testing.T) {
	api := newFakeAPI()
	snaps := handlers.NewSnapshots(api, cache.New(time.Minute), 10)
	sess := session.Session{Role: role.Admin, Token: "t"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		snap, err := snaps.Load(ctx, testClient, sess, views.AdminView)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if snap.Stats == nil {
			t.Fatalf("admin view should carry stats")
		}
	}
	if api.count("list") != 1 || api.count("stats") != 1 {
		t.Fatalf("expected one fetch each, got %v", api.calls)
	}

	snaps.Forget(testClient)
	if _, err := snaps.Load(ctx, testClient, sess, views.AdminView); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if api.count("list") != 2 {
		t.Fatalf("expected refetch after Forget, got %d", api.count("list"))
	}
}

func TestSnapshots_FetchRacingForgetIsNotCached(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	var gate sync.Once
	api := newFakeAPI()
	api.mine = func(_ context.Context, token string) ([]incident.Incident, error) {
		if token == "tok-alice" {
			gate.Do(func() {
				close(started)
				<-release
			})
			return []incident.Incident{{ID: 1, Title: "alice's report"}}, nil
		}
		return []incident.Incident{{ID: 2, Title: "bob's report"}}, nil
	}
	snaps := handlers.NewSnapshots(api, cache.New(time.Minute), 10)
	ctx := context.Background()

	alice := session.Session{UserID: "1", Role: role.Employee, Token: "tok-alice"}
	bob := session.Session{UserID: "2", Role: role.Employee, Token: "tok-bob"}

	done := make(chan error, 1)
	go func() {
		_, err := snaps.Load(ctx, testClient, alice, views.EmployeeView)
		done <- err
	}()

	<-started
	// alice signs out and bob signs in on the same browser
	snaps.Forget(testClient)
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Load: %v", err)
	}

	snap, err := snaps.Load(ctx, testClient, bob, views.EmployeeView)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Incidents) != 1 || snap.Incidents[0].ID != 2 {
		t.Fatalf("bob saw %+v", snap.Incidents)
	}

	// alice's late result was not kept for her either
	if _, err := snaps.Load(ctx, testClient, alice, views.EmployeeView); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if n := api.count("mine"); n != 3 {
		t.Fatalf("mine called %d times, want 3", n)
	}
}

func TestSnapshots_EmployeeUsesOwnReports(t *testing.T) {
	api := newFakeAPI()
	snaps := handlers.NewSnapshots(api, nil, 10)

	snap, err := snaps.Load(context.Background(), testClient, session.Session{Role: role.Employee}, views.EmployeeView)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if api.count("mine") != 1 || api.count("list") != 0 || api.count("stats") != 0 {
		t.Fatalf("unexpected calls %v", api.calls)
	}
	if snap.Stats != nil {
		t.Fatalf("employee view has no stats")
	}
}

func liveRouter(live *fakeLive) *gin.Engine {
	gin.SetMode(gin.TestMode)

	h := handlers.NewAnalysisHandler(live)
	r := gin.New()
	r.Use(withSession(role.Employee))
	r.POST("/analyze/live", h.SubmitLive)
	r.GET("/analyze/live", h.LatestLive)
	return r
}

func TestAnalysis_SubmitLive(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "applied", status: http.StatusOK},
		{name: "superseded", err: analysis.ErrSuperseded, status: http.StatusConflict, code: "superseded"},
		{name: "stale", err: analysis.ErrStale, status: http.StatusConflict, code: "stale"},
		{name: "breaker open", err: analysis.ErrCircuitOpen, status: http.StatusServiceUnavailable, code: "analysis_unavailable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			live := &fakeLive{
				res: analysis.Result{Seq: 4, Analysis: &incident.Analysis{RiskLevel: "high"}},
				err: tt.err,
			}

			w := serve(liveRouter(live), http.MethodPost, "/analyze/live", `{"description":" urgent reset ","url":"evil.test"}`)
			if w.Code != tt.status {
				t.Fatalf("expected %d, got %d body=%s", tt.status, w.Code, w.Body.String())
			}
			if live.got[0].URL != "http://evil.test" || live.got[0].Description != "urgent reset" {
				t.Fatalf("request not normalized: %+v", live.got[0])
			}
			if tt.code != "" {
				if got := decodeError(t, w); got.Code != tt.code {
					t.Fatalf("expected %q, got %+v", tt.code, got)
				}
				return
			}

			var body struct {
				Applied  bool               `json:"applied"`
				Seq      uint64             `json:"seq"`
				Analysis *incident.Analysis `json:"analysis"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !body.Applied || body.Seq != 4 || body.Analysis == nil || body.Analysis.RiskLevel != "high" {
				t.Fatalf("unexpected body %+v", body)
			}
		})
	}
}

func TestAnalysis_LatestLive(t *testing.T) {
	live := &fakeLive{}
	r := liveRouter(live)

	if w := serve(r, http.MethodGet, "/analyze/live", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	live.latest = &analysis.Result{Seq: 9, Analysis: &incident.Analysis{RiskLevel: "low"}}
	w := serve(r, http.MethodGet, "/analyze/live", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"seq":9`) {
		t.Fatalf("unexpected response %d %s", w.Code, w.Body.String())
	}
}

func TestHealth_Readyz(t *testing.T) {
	gin.SetMode(gin.TestMode)

	down := handlers.NewHealthHandler(func(context.Context) error { return errors.New("redis down") })
	r := gin.New()
	r.GET("/readyz", down.Readyz)

	if w := serve(r, http.MethodGet, "/readyz", ""); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	up := handlers.NewHealthHandler(nil)
	r = gin.New()
	r.GET("/readyz", up.Readyz)
	if w := serve(r, http.MethodGet, "/readyz", ""); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}
