package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/agenticscrum/agentmon/internal/metrics"
	"github.com/agenticscrum/agentmon/internal/monitor"
)

// Router exposes the monitor's operation surface over HTTP.
// Endpoints under basePath:
//
//	POST /agents                       register (JSON body)
//	GET  /agents                       list (?include_dead=true)
//	POST /agents/:session/heartbeat    heartbeat
//	GET  /agents/:session/metrics      metrics report (?minutes=60)
//	POST /agents/:session/terminate    terminate (?force=true)
//	GET  /agents/:session/logs         log tail (?lines=100)
//	POST /agents/:session/events       append a caller event (JSON body)
//	POST /cleanup                      purge dead sessions (?older_than_hours=24)
//
// plus GET /healthz and, optionally, GET /metrics (Prometheus) at the root.
type Router struct {
	mon      *monitor.Monitor
	basePath string
	promOn   bool
}

// NewRouter constructs a Router with a configurable basePath, e.g. "/api".
func NewRouter(mon *monitor.Monitor, basePath string, promOn bool) *Router {
	return &Router{mon: mon, basePath: sanitizeBase(basePath), promOn: promOn}
}

// Handler returns a gin-powered http.Handler mountable in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	g.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	if r.promOn {
		g.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	group := g.Group(r.basePath)
	group.POST("/agents", r.handleRegister)
	group.GET("/agents", r.handleList)
	group.POST("/agents/:session/heartbeat", r.handleHeartbeat)
	group.GET("/agents/:session/metrics", r.handleMetrics)
	group.POST("/agents/:session/terminate", r.handleTerminate)
	group.GET("/agents/:session/logs", r.handleLogs)
	group.POST("/agents/:session/events", r.handleAppendEvent)
	group.POST("/cleanup", r.handleCleanup)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, router *Router) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}

// --- envelope ---

// Every operation returns this flat shape: success plus either data or a
// human-readable error with its kind.
type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, response{Success: true, Data: data})
}

func fail(c *gin.Context, err error) {
	kind := monitor.Kind(err)
	status := http.StatusInternalServerError
	switch kind {
	case monitor.KindSessionNotFound, monitor.KindLogNotFound:
		status = http.StatusNotFound
	case monitor.KindDuplicateSession:
		status = http.StatusConflict
	}
	c.JSON(status, response{Success: false, Error: err.Error(), Kind: string(kind)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, response{Success: false, Error: msg, Kind: "bad_request"})
}

// --- handlers ---

type registerRequest struct {
	PID       int    `json:"pid"`
	AgentType string `json:"agent_type"`
	StoryID   string `json:"story_id"`
	SessionID string `json:"session_id"`
}

func (r *Router) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if !isSafeName(req.SessionID) {
		badRequest(c, "invalid session_id: allowed [A-Za-z0-9._-], no '..' or path separators")
		return
	}
	res, err := r.mon.Register(c.Request.Context(), req.PID, req.AgentType, req.StoryID, req.SessionID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (r *Router) handleList(c *gin.Context) {
	includeDead := c.Query("include_dead") == "true"
	res, err := r.mon.List(c.Request.Context(), includeDead)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (r *Router) handleHeartbeat(c *gin.Context) {
	session, valid := sessionParam(c)
	if !valid {
		return
	}
	res, err := r.mon.Heartbeat(c.Request.Context(), session)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (r *Router) handleMetrics(c *gin.Context) {
	session, valid := sessionParam(c)
	if !valid {
		return
	}
	minutes := 0
	if s := c.Query("minutes"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			badRequest(c, "invalid minutes")
			return
		}
		minutes = v
	}
	res, err := r.mon.GetMetrics(c.Request.Context(), session, minutes)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (r *Router) handleTerminate(c *gin.Context) {
	session, valid := sessionParam(c)
	if !valid {
		return
	}
	force := c.Query("force") == "true"
	res, err := r.mon.Terminate(c.Request.Context(), session, force)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func (r *Router) handleLogs(c *gin.Context) {
	session, valid := sessionParam(c)
	if !valid {
		return
	}
	lines := 0
	if s := c.Query("lines"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil || v < 0 {
			badRequest(c, "invalid lines")
			return
		}
		lines = v
	}
	res, err := r.mon.GetLogs(session, lines)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

type appendEventRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (r *Router) handleAppendEvent(c *gin.Context) {
	session, valid := sessionParam(c)
	if !valid {
		return
	}
	var req appendEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if req.Type == "" {
		badRequest(c, "event type required")
		return
	}
	if err := r.mon.AppendEvent(c.Request.Context(), session, req.Type, req.Message); err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"session_id": session})
}

func (r *Router) handleCleanup(c *gin.Context) {
	hours := 24.0
	if s := c.Query("older_than_hours"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			badRequest(c, "invalid older_than_hours")
			return
		}
		hours = v
	}
	res, err := r.mon.CleanupDead(c.Request.Context(), hours)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, res)
}

func sessionParam(c *gin.Context) (string, bool) {
	session := c.Param("session")
	if !isSafeName(session) {
		badRequest(c, "invalid session id")
		return "", false
	}
	return session, true
}
