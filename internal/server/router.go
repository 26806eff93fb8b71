package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/portkeeper/internal/controlloop"
	"github.com/loykin/portkeeper/internal/supervisor"
)

// Router provides the operator-facing HTTP surface. Every command either
// no-ops with a logged reason or begins an async operation; completion is
// observed through the event stream (GET /events), never synchronously.
//
// Endpoints:
//
//	POST {basePath}/start
//	POST {basePath}/stop
//	POST {basePath}/restart
//	POST {basePath}/refresh
//	POST {basePath}/resolve-port
//	GET  {basePath}/status
//	GET  {basePath}/events
type Router struct {
	sup      *supervisor.Supervisor
	loop     *controlloop.Loop
	basePath string
}

// NewRouter constructs a Router with a configurable basePath.
// Example basePath: "/api" results in /api/start, /api/status, ...
func NewRouter(sup *supervisor.Supervisor, loop *controlloop.Loop, basePath string) *Router {
	return &Router{sup: sup, loop: loop, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in
// any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/start", r.handleStart)
	group.POST("/stop", r.handleStop)
	group.POST("/restart", r.handleRestart)
	group.POST("/refresh", r.handleRefresh)
	group.POST("/resolve-port", r.handleResolvePort)
	group.GET("/status", r.handleStatus)
	group.GET("/events", r.handleEvents)
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, loop *controlloop.Loop) *http.Server {
	r := NewRouter(sup, loop, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type okResp struct {
	OK bool `json:"ok"`
}

// StatusResp is the GET /status payload.
type StatusResp struct {
	supervisor.Snapshot
	Displayed   string `json:"displayed"`
	PortBlocked bool   `json:"port_blocked"`
}

func (r *Router) handleStart(c *gin.Context) {
	r.sup.Start()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	r.sup.Stop()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleRestart(c *gin.Context) {
	r.sup.Restart()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleRefresh(c *gin.Context) {
	r.sup.Refresh()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleResolvePort(c *gin.Context) {
	r.sup.ResolvePortConflict()
	c.JSON(http.StatusAccepted, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.statusResp())
}

func (r *Router) handleEvents(c *gin.Context) {
	c.JSON(http.StatusOK, r.loop.Events())
}

func (r *Router) statusResp() StatusResp {
	return StatusResp{
		Snapshot:    r.sup.Status(),
		Displayed:   r.loop.Displayed().String(),
		PortBlocked: r.loop.PortBlocked(),
	}
}

func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}
