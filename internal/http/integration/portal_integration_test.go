package integration_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/geocoder89/incidentdesk/internal/analysis"
	"github.com/geocoder89/incidentdesk/internal/backend"
	"github.com/geocoder89/incidentdesk/internal/cache"
	"github.com/geocoder89/incidentdesk/internal/config"
	"github.com/geocoder89/incidentdesk/internal/devapi"
	apphttp "github.com/geocoder89/incidentdesk/internal/http"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/geocoder89/incidentdesk/internal/session"
	"github.com/geocoder89/incidentdesk/internal/storage"
	"github.com/geocoder89/incidentdesk/internal/views"
	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

type env struct {
	api    *devapi.Server
	apiURL string
	kv     storage.Store
	log    *slog.Logger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))

	seeds := append(devapi.DefaultSeeds(), devapi.UserSeed{Username: "auditor", Password: "auditor123", Role: "auditor"})
	users, err := devapi.NewUsers(seeds, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewUsers: %v", err)
	}

	api := devapi.NewServer(users, devapi.Config{JWTSecret: "integration-secret", Log: log})
	apiSrv := httptest.NewServer(api.Router("/api"))
	t.Cleanup(apiSrv.Close)

	kv := storage.NewMemoryStore(time.Hour, nil)

	return &env{api: api, apiURL: apiSrv.URL + "/api", kv: kv, log: log}
}

func testConfig() config.Config {
	return config.Config{
		Env:                "test",
		ServiceName:        "incidentdesk-test",
		APITimeout:         5 * time.Second,
		TokenTTL:           time.Hour,
		RestoreWait:        5 * time.Second,
		RestoreTimeout:     5 * time.Second,
		AnalyzeDebounce:    20 * time.Millisecond,
		SnapshotTTL:        time.Second,
		LoginRatePerMinute: 100,
		APIRatePerMinute:   1000,
	}
}

// startPortal wires a portal the way cmd/portal does, against e's API and
// storage. Two portals on the same storage behave like a restart.
func (e *env) startPortal(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := testConfig()

	client := backend.New(backend.Config{BaseURL: e.apiURL, Timeout: cfg.APITimeout}, nil)
	sessions := session.NewStore(client, e.kv, session.Options{
		TokenTTL:       cfg.TokenTTL,
		RestoreWait:    cfg.RestoreWait,
		RestoreTimeout: cfg.RestoreTimeout,
		Log:            e.log,
	})
	client.OnUnauthorized(sessions.Teardown)

	live := analysis.NewLive(analysis.NewBreaker(client, analysis.BreakerConfig{}), analysis.Options{Window: cfg.AnalyzeDebounce, Log: e.log})
	snapshots := cache.New(cfg.SnapshotTTL)
	sessions.OnTeardown(live.Forget)
	sessions.OnTeardown(func(id string) { snapshots.ForgetClient(id) })

	renderer, err := views.NewRenderer()
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	router := apphttp.NewRouter(apphttp.Deps{
		Log:       e.log,
		Config:    cfg,
		Sessions:  sessions,
		API:       client,
		Live:      live,
		Snapshots: snapshots,
		Views:     renderer,
		Ping:      e.kv.Ping,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

type browser struct {
	t    *testing.T
	base string
	jar  *cookiejar.Jar
	c    *http.Client
}

func newBrowser(t *testing.T, base string) *browser {
	t.Helper()

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar: %v", err)
	}
	return &browser{
		t:    t,
		base: base,
		jar:  jar,
		c: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// moveTo points the browser at another portal. Cookies ignore ports, so
// the jar carries over.
func (b *browser) moveTo(base string) { b.base = base }

func (b *browser) cookie(name string) string {
	u, _ := url.Parse(b.base)
	for _, c := range b.jar.Cookies(u) {
		if c.Name == name {
			return c.Value
		}
	}
	return ""
}

func (b *browser) do(req *http.Request) (*http.Response, string) {
	b.t.Helper()

	resp, err := b.c.Do(req)
	if err != nil {
		b.t.Fatalf("%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	return resp, string(body)
}

func (b *browser) get(path string) (*http.Response, string) {
	b.t.Helper()
	req, _ := http.NewRequest(http.MethodGet, b.base+path, nil)
	return b.do(req)
}

func (b *browser) postForm(path string, form url.Values) (*http.Response, string) {
	b.t.Helper()
	if token := b.cookie("csrf_token"); token != "" && form.Get("csrf_token") == "" {
		form.Set("csrf_token", token)
	}
	req, _ := http.NewRequest(http.MethodPost, b.base+path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.do(req)
}

func (b *browser) sendJSON(method, path, body string) (*http.Response, string) {
	b.t.Helper()
	req, _ := http.NewRequest(method, b.base+path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", b.cookie("csrf_token"))
	return b.do(req)
}

func (b *browser) login(user, pass string) *http.Response {
	b.t.Helper()

	if resp, _ := b.get("/"); resp.StatusCode != http.StatusOK {
		b.t.Fatalf("login page: status %d", resp.StatusCode)
	}
	resp, _ := b.postForm("/login", url.Values{"username": {user}, "password": {pass}})
	return resp
}

type sessionBody struct {
	Status  string `json:"status"`
	View    string `json:"view"`
	Session *struct {
		Username string `json:"username"`
		Role     string `json:"role"`
	} `json:"session"`
}

func (b *browser) session() (int, sessionBody) {
	b.t.Helper()

	resp, body := b.get("/api/session")
	var out sessionBody
	if err := json.Unmarshal([]byte(body), &out); err != nil {
		b.t.Fatalf("session body: %v %s", err, body)
	}
	return resp.StatusCode, out
}

type errorBody struct {
	Error struct {
		Code     string `json:"code"`
		Redirect string `json:"redirect"`
	} `json:"error"`
}

func decodeErr(t *testing.T, body string) errorBody {
	t.Helper()
	var e errorBody
	if err := json.Unmarshal([]byte(body), &e); err != nil {
		t.Fatalf("error body: %v %s", err, body)
	}
	return e
}

func TestPortal_LoginRoutesToRoleDashboard(t *testing.T) {
	e := newEnv(t)
	portal := e.startPortal(t)

	tests := []struct {
		user, pass string
		path       string
	}{
		{"admin", "admin123", "/admin"},
		{"analyst", "analyst123", "/analyst"},
		{"employee", "employee123", "/employee"},
	}

	for _, tt := range tests {
		t.Run(tt.user, func(t *testing.T) {
			b := newBrowser(t, portal.URL)

			resp := b.login(tt.user, tt.pass)
			if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/dashboard" {
				t.Fatalf("login: status %d location %q", resp.StatusCode, resp.Header.Get("Location"))
			}

			resp, _ = b.get("/dashboard")
			if resp.Header.Get("Location") != tt.path {
				t.Fatalf("dashboard: expected %s, got %q", tt.path, resp.Header.Get("Location"))
			}

			resp, _ = b.get(tt.path)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("%s: status %d", tt.path, resp.StatusCode)
			}

			// signed in users skip the login form
			resp, _ = b.get("/")
			if resp.StatusCode != http.StatusSeeOther {
				t.Fatalf("login page while signed in: status %d", resp.StatusCode)
			}

			_, s := b.session()
			if s.Status != "authenticated" || s.Session == nil || s.Session.Role != tt.user {
				t.Fatalf("unexpected session %+v", s)
			}
		})
	}
}

func TestPortal_WrongPasswordStaysAnonymous(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e.startPortal(t).URL)

	resp := b.login("admin", "nope")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	_, s := b.session()
	if s.Status != "anonymous" {
		t.Fatalf("expected anonymous, got %q", s.Status)
	}

	tok, err := storage.LoadTokens(context.Background(), e.kv, b.cookie(middlewares.ClientCookie))
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected no stored tokens, got %+v err=%v", tok, err)
	}
}

func TestPortal_LoginWithoutCSRFIsRejected(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e.startPortal(t).URL)

	b.get("/")
	resp, _ := b.postForm("/login", url.Values{"username": {"admin"}, "password": {"admin123"}, "csrf_token": {"forged"}})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestPortal_RoleDenied(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e.startPortal(t).URL)

	if resp := b.login("employee", "employee123"); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login: status %d", resp.StatusCode)
	}

	for _, path := range []string{"/admin", "/analyst"} {
		resp, _ := b.get(path)
		if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
			t.Fatalf("%s: expected redirect to /, got %d %q", path, resp.StatusCode, resp.Header.Get("Location"))
		}
	}

	resp, body := b.get("/api/incidents")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
	if e := decodeErr(t, body); e.Error.Code != "forbidden" || e.Error.Redirect != "/" {
		t.Fatalf("unexpected error %+v", e)
	}

	// the session survives a denial
	if _, s := b.session(); s.Status != "authenticated" {
		t.Fatalf("expected session kept, got %q", s.Status)
	}
}

func TestPortal_AnonymousAPIGetsRedirect(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e.startPortal(t).URL)

	resp, body := b.get("/api/incidents/mine")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if e := decodeErr(t, body); e.Error.Redirect != "/" {
		t.Fatalf("expected redirect to /, got %+v", e)
	}

	resp, _ = b.get("/employee")
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestPortal_UnknownRoleNotice(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e.startPortal(t).URL)

	if resp := b.login("auditor", "auditor123"); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login: status %d", resp.StatusCode)
	}

	resp, body := b.get("/dashboard")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected notice page, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "Unknown role") || !strings.Contains(body, "auditor") {
		t.Fatalf("notice page missing role text")
	}

	for _, path := range []string{"/admin", "/analyst", "/employee", "/reporting"} {
		if resp, _ := b.get(path); resp.StatusCode != http.StatusSeeOther {
			t.Fatalf("%s: unknown role must not render, got %d", path, resp.StatusCode)
		}
	}
}

func TestPortal_EmployeeReportFlow(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e.startPortal(t).URL)
	b.login("employee", "employee123")

	// local validation fails before any call
	resp, body := b.postForm("/employee/report", url.Values{"description": {"short"}})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if !strings.Contains(body, "at least 10 characters") {
		t.Fatalf("expected inline field message")
	}
	if got := len(e.api.Incidents().List(nil, 0)); got != 0 {
		t.Fatalf("invalid report was created: %d", got)
	}

	resp, _ = b.postForm("/employee/report", url.Values{
		"description": {"Got an email asking to verify my password urgently"},
		"url":         {"secure-login.example.xyz/verify"},
	})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/employee?notice=report_sent" {
		t.Fatalf("submit: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	resp, body = b.get("/api/incidents/mine")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("mine: %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, "Web: secure-login.example.xyz") {
		t.Fatalf("expected default title in %s", body)
	}
}

func TestPortal_AnalystTriage(t *testing.T) {
	e := newEnv(t)
	portal := e.startPortal(t)

	emp := newBrowser(t, portal.URL)
	emp.login("employee", "employee123")
	resp, body := emp.sendJSON(http.MethodPost, "/api/incidents", `{"description":"invoice attachment from unknown sender"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}

	var created struct {
		Incident struct {
			ID int64 `json:"id"`
		} `json:"incident"`
	}
	_ = json.Unmarshal([]byte(body), &created)

	an := newBrowser(t, portal.URL)
	an.login("analyst", "analyst123")

	resp, body = an.sendJSON(http.MethodPatch, "/api/incidents/"+strconv.FormatInt(created.Incident.ID, 10), `{"status":"resolved","notes":"sender blocked"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("update: %d %s", resp.StatusCode, body)
	}
	if !strings.Contains(body, `"status":"resolved"`) {
		t.Fatalf("unexpected body %s", body)
	}

	resp, body = an.get("/api/stats")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"closed":1`) {
		t.Fatalf("stats: %d %s", resp.StatusCode, body)
	}
}

func TestPortal_RevokedTokenTearsDownSession(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e.startPortal(t).URL)

	if resp := b.login("admin", "admin123"); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	clientID := b.cookie(middlewares.ClientCookie)

	if _, err := storage.LoadTokens(context.Background(), e.kv, clientID); err != nil {
		t.Fatalf("tokens should be stored after login: %v", err)
	}

	if n := e.api.Revoke("admin"); n == 0 {
		t.Fatalf("expected revoked tokens")
	}

	resp, body := b.get("/api/incidents")
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", resp.StatusCode, body)
	}
	if e := decodeErr(t, body); e.Error.Code != "session_expired" || e.Error.Redirect != "/" {
		t.Fatalf("unexpected error %+v", e)
	}

	if _, s := b.session(); s.Status != "anonymous" {
		t.Fatalf("expected anonymous after teardown, got %q", s.Status)
	}
	if _, err := storage.LoadTokens(context.Background(), e.kv, clientID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("tokens should be cleared, got %v", err)
	}

	resp, _ = b.get("/admin")
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}
}

func TestPortal_SessionRestoredAfterRestart(t *testing.T) {
	e := newEnv(t)
	first := e.startPortal(t)

	b := newBrowser(t, first.URL)
	if resp := b.login("analyst", "analyst123"); resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("login: status %d", resp.StatusCode)
	}
	first.Close()

	b.moveTo(e.startPortal(t).URL)

	status, s := b.session()
	if status != http.StatusOK || s.Status != "authenticated" {
		t.Fatalf("expected restored session, got %d %+v", status, s)
	}
	if s.Session.Username != "analyst" || s.View != "analyst" {
		t.Fatalf("unexpected restored session %+v", s)
	}
}

func TestPortal_RestoreWithRevokedTokenClearsStorage(t *testing.T) {
	e := newEnv(t)
	first := e.startPortal(t)

	b := newBrowser(t, first.URL)
	b.login("employee", "employee123")
	clientID := b.cookie(middlewares.ClientCookie)
	first.Close()

	e.api.Revoke("employee")
	b.moveTo(e.startPortal(t).URL)

	if _, s := b.session(); s.Status != "anonymous" {
		t.Fatalf("expected anonymous, got %q", s.Status)
	}
	if _, err := storage.LoadTokens(context.Background(), e.kv, clientID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("tokens should be cleared, got %v", err)
	}
}

func TestPortal_LogoutClearsEverything(t *testing.T) {
	e := newEnv(t)
	b := newBrowser(t, e.startPortal(t).URL)
	b.login("admin", "admin123")
	clientID := b.cookie(middlewares.ClientCookie)

	resp, _ := b.postForm("/logout", url.Values{})
	if resp.StatusCode != http.StatusSeeOther || resp.Header.Get("Location") != "/?notice=signed_out" {
		t.Fatalf("logout: %d %q", resp.StatusCode, resp.Header.Get("Location"))
	}

	if _, s := b.session(); s.Status != "anonymous" {
		t.Fatalf("expected anonymous, got %q", s.Status)
	}
	if _, err := storage.LoadTokens(context.Background(), e.kv, clientID); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("tokens should be cleared, got %v", err)
	}
}
