// Package devapi is an in-memory stand-in for the incident API. It serves
// the same routes and payload shapes so the portal can run and be tested
// without the real service.
package devapi

import (
	"bytes"
	"encoding/csv"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/incidentdesk/internal/auth"
	"github.com/geocoder89/incidentdesk/internal/domain/incident"
	"github.com/geocoder89/incidentdesk/internal/domain/role"
	"github.com/gin-gonic/gin"
)

const ctxClaims = "devapi.claims"

type Config struct {
	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Log        *slog.Logger
}

type Server struct {
	users     *Users
	incidents *IncidentsRepo
	tokens    *auth.Manager
	log       *slog.Logger

	mu      sync.Mutex
	issued  map[int64][]string
	revoked map[string]struct{}
}

func NewServer(users *Users, cfg Config) *Server {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = time.Hour
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 7 * 24 * time.Hour
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}

	return &Server{
		users:     users,
		incidents: NewIncidentsRepo(),
		tokens:    auth.NewManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL),
		log:       cfg.Log,
		issued:    make(map[int64][]string),
		revoked:   make(map[string]struct{}),
	}
}

func (s *Server) Tokens() *auth.Manager     { return s.tokens }
func (s *Server) Incidents() *IncidentsRepo { return s.incidents }
func (s *Server) Users() *Users             { return s.users }

// Revoke invalidates every access token issued so far to username and
// returns how many there were.
func (s *Server) Revoke(username string) int {
	usr, ok := s.users.Lookup(username)
	if !ok {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	jtis := s.issued[usr.ID]
	for _, jti := range jtis {
		s.revoked[jti] = struct{}{}
	}
	delete(s.issued, usr.ID)
	return len(jtis)
}

func (s *Server) isRevoked(jti string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[jti]
	return ok
}

func (s *Server) remember(userID int64, jti string) {
	s.mu.Lock()
	s.issued[userID] = append(s.issued[userID], jti)
	s.mu.Unlock()
}

// Router mounts the API under basePath, e.g. "/api".
func (s *Server) Router(basePath string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	api := r.Group(basePath)
	api.POST("/auth/token", s.token)

	authed := api.Group("", s.requireAuth())
	authed.GET("/auth/profile", s.profile)
	authed.GET("/incidents", s.listIncidents)
	authed.GET("/incidents/my-incidents", s.myIncidents)
	authed.GET("/incidents/stats", s.requireStaff(), s.stats)
	authed.GET("/incidents/export/:format", s.requireStaff(), s.export)
	authed.GET("/incidents/:id", s.getIncident)
	authed.POST("/incidents/create", s.createIncident)
	authed.POST("/incidents/analyze", s.analyze)
	authed.PATCH("/incidents/:id", s.requireStaff(), s.updateIncident)

	return r
}

func detail(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": msg})
}

func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			detail(c, http.StatusUnauthorized, "Not authenticated")
			return
		}

		claims, err := s.tokens.VerifyAccessToken(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil || s.isRevoked(claims.ID) {
			detail(c, http.StatusUnauthorized, "Could not validate credentials")
			return
		}

		c.Set(ctxClaims, claims)
		c.Next()
	}
}

func (s *Server) requireStaff() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isStaff(claimsFrom(c)) {
			detail(c, http.StatusForbidden, "Insufficient permissions")
			return
		}
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *auth.Claims {
	v, _ := c.Get(ctxClaims)
	claims, _ := v.(*auth.Claims)
	return claims
}

func isStaff(claims *auth.Claims) bool {
	if claims == nil {
		return false
	}
	r, ok := role.Parse(claims.Role)
	return ok && r.In(role.Admin, role.Analyst)
}

type tokenRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, "username and password are required")
		return
	}

	usr, err := s.users.Authenticate(req.Username, req.Password)
	if err != nil {
		detail(c, http.StatusUnauthorized, "Incorrect username or password")
		return
	}

	pair, err := s.tokens.Issue(usr.ID, usr.Username, usr.Role)
	if err != nil {
		s.log.Error("devapi: issue token", "err", err)
		detail(c, http.StatusInternalServerError, "could not issue token")
		return
	}
	s.remember(usr.ID, pair.AccessJTI)

	c.JSON(http.StatusOK, gin.H{"access": pair.Access, "refresh": pair.Refresh})
}

func (s *Server) profile(c *gin.Context) {
	claims := claimsFrom(c)
	usr, ok := s.users.Get(claims.UserID)
	if !ok {
		detail(c, http.StatusUnauthorized, "User no longer exists")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       usr.ID,
		"username": usr.Username,
		"email":    usr.Email,
		"role":     usr.Role,
	})
}

func limitParam(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("limit"))
	if err != nil || n <= 0 {
		return 100
	}
	return n
}

// visibleTo limits employees to their own reports.
func visibleTo(claims *auth.Claims) func(incident.Incident) bool {
	if isStaff(claims) {
		return nil
	}
	return func(inc incident.Incident) bool { return inc.ReportedBy == claims.Username }
}

func (s *Server) listIncidents(c *gin.Context) {
	filter := incident.ParseListFilter(c.Request.URL.Query())
	if err := filter.Validate(); err != nil {
		detail(c, http.StatusBadRequest, err.Error())
		return
	}

	visible := visibleTo(claimsFrom(c))
	items := s.incidents.List(func(inc incident.Incident) bool {
		return (visible == nil || visible(inc)) && filter.Match(inc)
	}, limitParam(c))
	c.JSON(http.StatusOK, gin.H{"incidents": items})
}

// myIncidents is the reporter's own list; analysts also get the open queue.
func (s *Server) myIncidents(c *gin.Context) {
	claims := claimsFrom(c)
	analyst := claims.Role == string(role.Analyst)

	items := s.incidents.List(func(inc incident.Incident) bool {
		return inc.ReportedBy == claims.Username || (analyst && inc.Status.Open())
	}, limitParam(c))
	c.JSON(http.StatusOK, gin.H{"incidents": items})
}

func (s *Server) getIncident(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid incident id")
		return
	}

	inc, err := s.incidents.Get(id)
	keep := visibleTo(claimsFrom(c))
	if err != nil || (keep != nil && !keep(inc)) {
		detail(c, http.StatusNotFound, "Incident not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "incident": inc})
}

type createRequest struct {
	Title       string `json:"title"`
	Description string `json:"description" binding:"required_without=URL"`
	URL         string `json:"url"`
	Type        string `json:"incident_type"`
}

const urlOnlyDescription = "Automatic report without a text description (see URL)."

func (s *Server) createIncident(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusBadRequest, "a description or a URL is required")
		return
	}
	if strings.TrimSpace(req.Description) == "" {
		req.Description = urlOnlyDescription
	}

	a := Analyze(incident.AnalysisRequest{Description: req.Description, URL: req.URL})
	inc := s.incidents.Create(NewIncident{
		Title:       req.Title,
		Description: req.Description,
		URL:         req.URL,
		Type:        req.Type,
		ReportedBy:  claimsFrom(c).Username,
		Analysis:    a,
	})

	c.JSON(http.StatusOK, gin.H{"success": true, "incident": inc})
}

func (s *Server) analyze(c *gin.Context) {
	var req incident.AnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid analysis request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "analysis": Analyze(req)})
}

type updateRequest struct {
	Status string `json:"status" binding:"required"`
	Notes  string `json:"notes"`
}

func (s *Server) updateIncident(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		detail(c, http.StatusUnprocessableEntity, "invalid incident id")
		return
	}

	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		detail(c, http.StatusUnprocessableEntity, "status is required")
		return
	}
	st, ok := incident.ParseStatus(req.Status)
	if !ok {
		detail(c, http.StatusUnprocessableEntity, "unknown status "+req.Status)
		return
	}

	inc, err := s.incidents.Update(id, st, req.Notes)
	if errors.Is(err, ErrIncidentNotFound) {
		detail(c, http.StatusNotFound, "Incident not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "incident": inc})
}

func (s *Server) stats(c *gin.Context) {
	st := s.incidents.Stats(nil)

	if claimsFrom(c).Role == string(role.Admin) {
		counts := s.users.CountByRole()
		total := 0
		for _, n := range counts {
			total += n
		}
		st.AdminExtra = &incident.AdminStats{
			TotalUsers:         total,
			TotalAnalysts:      counts[string(role.Analyst)],
			TotalEmployees:     counts[string(role.Employee)],
			CriticalUnresolved: s.incidents.CriticalUnresolved(),
		}
	}

	c.JSON(http.StatusOK, gin.H{"stats": st})
}

func (s *Server) export(c *gin.Context) {
	switch c.Param("format") {
	case "csv":
	case "pdf":
		detail(c, http.StatusNotImplemented, "PDF export is not available")
		return
	default:
		detail(c, http.StatusNotFound, "unknown export format")
		return
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"id", "title", "type", "severity", "status", "confidence", "reported_by", "url", "created_at"})
	for _, inc := range s.incidents.List(nil, 0) {
		_ = w.Write([]string{
			strconv.FormatInt(inc.ID, 10),
			inc.Title,
			inc.Type,
			string(inc.Severity),
			string(inc.Status),
			strconv.FormatFloat(inc.Confidence, 'f', 2, 64),
			inc.ReportedBy,
			inc.URL,
			inc.CreatedAt.Format(time.RFC3339),
		})
	}
	w.Flush()

	name := "incident_report_" + time.Now().UTC().Format("20060102") + ".csv"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}
