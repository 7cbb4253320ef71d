// Package server exposes the supervisor over HTTP: lifecycle commands,
// configuration, port inspection, env-file editing, a live output
// stream, and Prometheus metrics.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/servman/servman/internal/config"
	"github.com/servman/servman/internal/envfile"
	"github.com/servman/servman/internal/event"
	"github.com/servman/servman/internal/history"
	"github.com/servman/servman/internal/metrics"
	"github.com/servman/servman/internal/portprobe"
	"github.com/servman/servman/internal/supervisor"
)

// Router mounts the management API. Endpoints:
//
//	POST {basePath}/server/start     body: {"port": 9000} (optional)
//	POST {basePath}/server/stop
//	POST {basePath}/server/restart   body: {"port": 9000} (optional)
//	GET  {basePath}/server/status
//	GET  {basePath}/server/config
//	PUT  {basePath}/server/config    body: Config JSON
//	GET  {basePath}/server/output    query: limit=N (default 100)
//	GET  {basePath}/server/events    SSE stream of output events
//	GET  {basePath}/server/env
//	PUT  {basePath}/server/env       body: raw .env content
//	GET  {basePath}/server/workdir/suggested
//	GET  {basePath}/ports/:port      listeners on the port
//	DELETE {basePath}/ports/:port    evict listeners from the port
//	GET  {basePath}/metrics          Prometheus exposition
type Router struct {
	sup      *supervisor.Supervisor
	prober   *portprobe.Prober
	bus      *event.Bus
	hist     history.Store
	basePath string
	log      *slog.Logger
}

func NewRouter(sup *supervisor.Supervisor, prober *portprobe.Prober, bus *event.Bus, hist history.Store, basePath string, log *slog.Logger) *Router {
	if log == nil {
		log = slog.Default()
	}
	return &Router{
		sup:      sup,
		prober:   prober,
		bus:      bus,
		hist:     hist,
		basePath: sanitizeBase(basePath),
		log:      log,
	}
}

// Handler returns a gin-powered http.Handler mountable in any mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)

	srv := group.Group("/server")
	srv.POST("/start", r.handleStart)
	srv.POST("/stop", r.handleStop)
	srv.POST("/restart", r.handleRestart)
	srv.GET("/status", r.handleStatus)
	srv.GET("/config", r.handleGetConfig)
	srv.PUT("/config", r.handleSetConfig)
	srv.GET("/output", r.handleOutput)
	srv.GET("/events", r.handleEvents)
	srv.GET("/env", r.handleGetEnv)
	srv.PUT("/env", r.handleSetEnv)
	srv.GET("/workdir/suggested", r.handleSuggestedWorkDir)

	group.GET("/ports/:port", r.handlePortCheck)
	group.DELETE("/ports/:port", r.handlePortEvict)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr string, r *Router) *http.Server {
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("management API server failed", "addr", addr, "error", err)
		}
	}()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

// portReq is the optional body for start and restart.
type portReq struct {
	Port *int `json:"port"`
}

func bindPortReq(c *gin.Context) (*int, bool) {
	if c.Request.ContentLength == 0 {
		return nil, true
	}
	var req portReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return nil, false
	}
	if req.Port != nil && !validPort(*req.Port) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: fmt.Sprintf("port %d out of range", *req.Port)})
		return nil, false
	}
	return req.Port, true
}

func (r *Router) handleStart(c *gin.Context) {
	port, ok := bindPortReq(c)
	if !ok {
		return
	}
	st, err := r.sup.Start(port)
	if err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStop(c *gin.Context) {
	st, err := r.sup.Stop()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleRestart(c *gin.Context) {
	port, ok := bindPortReq(c)
	if !ok {
		return
	}
	st, err := r.sup.Restart(port)
	if err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status())
}

func (r *Router) handleGetConfig(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Config())
}

func (r *Router) handleSetConfig(c *gin.Context) {
	var cfg config.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	saved, err := r.sup.SetConfig(cfg)
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, saved)
}

func (r *Router) handleOutput(c *gin.Context) {
	if r.hist == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "output history not configured"})
		return
	}
	limit := intQuery(c, "limit", 100)
	records, err := r.hist.RecentOutput(c.Request.Context(), limit)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, records)
}

// handleEvents streams output events as server-sent events until the
// client disconnects.
func (r *Router) handleEvents(c *gin.Context) {
	if r.bus == nil {
		writeJSON(c, http.StatusNotFound, errorResp{Error: "event stream not configured"})
		return
	}
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: "streaming unsupported"})
		return
	}
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Status(http.StatusOK)
	flusher.Flush()

	events, cancel := r.bus.Subscribe()
	defer cancel()
	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case e, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(e.Output)
			if err != nil {
				continue
			}
			_, _ = fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", e.Type, payload)
			flusher.Flush()
		}
	}
}

func (r *Router) handleGetEnv(c *gin.Context) {
	workDir, err := r.workDir()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	content, err := envfile.Load(workDir)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(content))
}

func (r *Router) handleSetEnv(c *gin.Context) {
	workDir, err := r.workDir()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	body, err := c.GetRawData()
	if err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "read body: " + err.Error()})
		return
	}
	if err := envfile.Save(workDir, string(body)); err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"path": envfile.Path(workDir)})
}

func (r *Router) handleSuggestedWorkDir(c *gin.Context) {
	dir, err := r.sup.SuggestedWorkDir()
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"path": dir})
}

func (r *Router) handlePortCheck(c *gin.Context) {
	port, ok := portParam(c)
	if !ok {
		return
	}
	listeners, err := r.prober.Check(port)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"port": port, "listeners": listeners})
}

func (r *Router) handlePortEvict(c *gin.Context) {
	port, ok := portParam(c)
	if !ok {
		return
	}
	// Never evict the supervised server through this path; stop exists
	// for that and keeps the status consistent.
	if pid := r.sup.CurrentPID(); pid != 0 {
		if st := r.sup.Status(); st.Port != nil && *st.Port == port {
			writeJSON(c, http.StatusConflict, errorResp{Error: "port is held by the supervised server, use stop"})
			return
		}
	}
	evicted, err := r.prober.Evict(port)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"port": port, "evicted": evicted})
}

// workDir resolves the directory env-file operations act on: the
// configured override, else the suggested default.
func (r *Router) workDir() (string, error) {
	if cfg := r.sup.Config(); cfg.WorkingDirectory != "" {
		return cfg.WorkingDirectory, nil
	}
	return r.sup.SuggestedWorkDir()
}
