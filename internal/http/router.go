package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/geocoder89/incidentdesk/internal/cache"
	"github.com/geocoder89/incidentdesk/internal/config"
	"github.com/geocoder89/incidentdesk/internal/domain/role"
	"github.com/geocoder89/incidentdesk/internal/guard"
	"github.com/geocoder89/incidentdesk/internal/http/handlers"
	"github.com/geocoder89/incidentdesk/internal/http/middlewares"
	"github.com/geocoder89/incidentdesk/internal/observability"
	"github.com/geocoder89/incidentdesk/internal/session"
	"github.com/geocoder89/incidentdesk/internal/views"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

// SessionStore is what the portal needs from *session.Store.
type SessionStore interface {
	Resolve(ctx context.Context, clientID string) session.State
	handlers.Sessions
}

type Deps struct {
	Log    *slog.Logger
	Config config.Config

	Sessions  SessionStore
	API       handlers.IncidentAPI
	Live      handlers.LiveAnalysis
	Snapshots *cache.Cache
	Views     *views.Renderer

	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
	// Ping checks client storage for /readyz.
	Ping func(ctx context.Context) error

	LoginLimiter *middlewares.RateLimiter
	APILimiter   *middlewares.RateLimiter
}

func NewRouter(d Deps) *gin.Engine {
	if d.Config.Env != "dev" && d.Config.Env != "test" {
		gin.SetMode(gin.ReleaseMode)
	}
	if d.Log == nil {
		d.Log = slog.Default()
	}
	if d.LoginLimiter == nil {
		d.LoginLimiter = middlewares.NewRateLimiter(d.Config.LoginRatePerMinute, 10*time.Minute)
	}
	if d.APILimiter == nil {
		d.APILimiter = middlewares.NewRateLimiter(d.Config.APIRatePerMinute, 10*time.Minute)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middlewares.RequestID())
	r.Use(otelgin.Middleware(d.Config.ServiceName))
	r.Use(middlewares.RequestLogger(d.Log))
	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
	}
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Config.AllowedOrigins))

	// ops
	health := handlers.NewHealthHandler(d.Ping)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	r.StaticFS("/static", http.FS(views.Static()))

	snapshots := handlers.NewSnapshots(d.API, d.Snapshots, handlers.DefaultListLimit)
	auth := handlers.NewAuthHandler(d.Sessions, d.Views, d.Config.APITimeout)
	pages := handlers.NewPagesHandler(d.API, snapshots, d.Live, d.Views, d.Config.APITimeout)
	incidents := handlers.NewIncidentsHandler(d.API, snapshots, d.Config.APITimeout)
	live := handlers.NewAnalysisHandler(d.Live)
	loading := handlers.LoadingPage(d.Views)

	app := r.Group("",
		middlewares.MaxBodyBytes(maxBodyBytes),
		middlewares.ClientID(middlewares.CookieConfig{Secure: d.Config.CookieSecure}),
		middlewares.CSRF(middlewares.CSRFConfig{CookieSecure: d.Config.CookieSecure}),
		middlewares.ResolveSession(d.Sessions),
	)

	// pages
	app.GET(guard.LoginPath, auth.LoginPage)
	app.POST("/login", d.LoginLimiter.RateLimiterMiddleware(middlewares.KeyByIP), auth.Login)
	app.POST("/logout", auth.Logout)
	app.GET("/dashboard", auth.Dashboard)

	for _, v := range []views.View{views.AdminView, views.AnalystView, views.EmployeeView} {
		app.GET(v.Path, middlewares.RequirePage(v.Route(), loading), pages.Dashboard(v))
	}
	app.GET(views.ReportingView.Path, middlewares.RequirePage(views.ReportingView.Route(), loading), pages.Reporting)

	for _, v := range []views.View{views.EmployeeView, views.ReportingView} {
		app.POST(v.Path+"/report", middlewares.RequirePage(v.Route(), loading), pages.SubmitReport(v))
	}

	triage := guard.Route{Path: "/dashboard", Roles: []role.Role{role.Admin, role.Analyst}, Layout: true}
	app.POST("/incidents/:id/status", middlewares.RequirePage(triage, loading), pages.UpdateStatus)

	// JSON API
	api := app.Group("/api", d.APILimiter.RateLimiterMiddleware(middlewares.KeyByClientOrIP), middlewares.RequireJSON())
	api.GET("/session", auth.Session)

	staff := middlewares.RequireAPI(role.Admin, role.Analyst)
	anyRole := middlewares.RequireAPI()

	api.GET("/incidents", staff, incidents.List)
	api.GET("/incidents/mine", anyRole, incidents.Mine)
	api.GET("/incidents/:id", anyRole, incidents.Get)
	api.POST("/incidents", anyRole, incidents.Create)
	api.PATCH("/incidents/:id", staff, incidents.Update)
	api.GET("/stats", staff, incidents.Stats)
	api.GET("/export/:format", staff, incidents.Export)
	api.POST("/analyze/live", anyRole, live.SubmitLive)
	api.GET("/analyze/live", anyRole, live.LatestLive)

	return r
}
