package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/devsrv/internal/metrics"
	"github.com/loykin/devsrv/internal/supervisor"
)

// Router provides embeddable HTTP handlers for managing dev servers.
// Endpoints:
//   GET    {basePath}/servers                    list
//   POST   {basePath}/servers                    body: {"name","type"} creates, {"path"} adds
//   GET    {basePath}/servers/:name              one entry
//   DELETE {basePath}/servers/:name
//   POST   {basePath}/servers/:name/start|stop|restart
//   POST   {basePath}/servers/:name/monitor      body: {"state":"on"|"off"}
//   POST   {basePath}/servers/:name/auto_restart body: {"state":"on"|"off"}
//   POST   {basePath}/servers/:name/send         body: {"text"}
//   GET    {basePath}/servers/:name/log          query: after=<seq>&wait=<duration>
//   GET    {basePath}/servers/:name/usage
//   GET    {basePath}/servers/:name/path
//   GET    {basePath}/metrics                    when metrics are enabled
// basePath may be empty or start with '/'; no trailing slash.
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
	metrics  bool
}

// maxLogWait bounds long-polling so responses finish inside the write timeout.
const maxLogWait = 10 * time.Second

// NewRouter constructs a new Router with configurable basePath.
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// WithMetrics exposes the Prometheus handler under {basePath}/metrics.
func (r *Router) WithMetrics(on bool) *Router {
	r.metrics = on
	return r
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/servers", r.handleList)
	group.POST("/servers", r.handleCreate)
	group.GET("/servers/:name", r.handleGet)
	group.DELETE("/servers/:name", r.handleDelete)
	group.POST("/servers/:name/start", r.handleStart)
	group.POST("/servers/:name/stop", r.handleStop)
	group.POST("/servers/:name/restart", r.handleRestart)
	group.POST("/servers/:name/monitor", r.handleMonitor)
	group.POST("/servers/:name/auto_restart", r.handleAutoRestart)
	group.POST("/servers/:name/send", r.handleSend)
	group.GET("/servers/:name/log", r.handleLog)
	group.GET("/servers/:name/usage", r.handleUsage)
	group.GET("/servers/:name/path", r.handlePath)
	if r.metrics {
		group.GET("/metrics", gin.WrapH(metrics.Handler()))
	}
	return g
}

// NewServer builds a standalone HTTP server on addr using this router. The
// caller runs ListenAndServe and shuts it down with Shutdown or Close.
func NewServer(addr, basePath string, sup *supervisor.Supervisor, withMetrics bool) (*http.Server, error) {
	r := NewRouter(sup, basePath).WithMetrics(withMetrics)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return server, nil
}

// --- Handlers ---

type okResp struct {
	OK bool `json:"ok"`
}

type createReq struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
}

type toggleReq struct {
	State string `json:"state"`
}

type sendReq struct {
	Text string `json:"text"`
}

type logResp struct {
	Log  []string `json:"log"`
	Next uint64   `json:"next"`
}

type pathResp struct {
	Path string `json:"path"`
}

func (r *Router) handleList(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.List())
}

func (r *Router) handleGet(c *gin.Context) {
	st, err := r.sup.Get(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleCreate(c *gin.Context) {
	var req createReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	var (
		st  supervisor.Status
		err error
	)
	switch {
	case req.Path != "" && req.Name == "":
		if !isSafeAbsPath(req.Path) {
			badRequest(c, "invalid path: must be absolute path without traversal")
			return
		}
		st, err = r.sup.Add(c.Request.Context(), req.Path)
	case req.Name != "" && req.Path == "":
		kind := req.Type
		if kind == "" {
			kind = "python"
		}
		st, err = r.sup.Create(c.Request.Context(), req.Name, kind)
	default:
		badRequest(c, "exactly one of name or path required")
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, st)
}

func (r *Router) handleDelete(c *gin.Context) {
	if err := r.sup.Delete(c.Request.Context(), c.Param("name")); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStart(c *gin.Context) {
	st, err := r.sup.Start(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleStop(c *gin.Context) {
	st, err := r.sup.Stop(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleRestart(c *gin.Context) {
	st, err := r.sup.Restart(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func parseToggle(c *gin.Context) (bool, bool) {
	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(req.State)) {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	badRequest(c, `state must be "on" or "off"`)
	return false, false
}

func (r *Router) handleMonitor(c *gin.Context) {
	on, ok := parseToggle(c)
	if !ok {
		return
	}
	name := c.Param("name")
	if err := r.sup.SetMonitoring(c.Request.Context(), name, on); err != nil {
		writeError(c, err)
		return
	}
	st, err := r.sup.Get(name)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleAutoRestart(c *gin.Context) {
	on, ok := parseToggle(c)
	if !ok {
		return
	}
	name := c.Param("name")
	if err := r.sup.SetAutoRestart(c.Request.Context(), name, on); err != nil {
		writeError(c, err)
		return
	}
	st, err := r.sup.Get(name)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, st)
}

func (r *Router) handleSend(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid JSON: "+err.Error())
		return
	}
	if strings.ContainsAny(req.Text, "\r\n") {
		badRequest(c, "text must be a single line")
		return
	}
	if err := r.sup.Send(c.Param("name"), req.Text); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleLog(c *gin.Context) {
	name := c.Param("name")
	var after uint64
	if s := c.Query("after"); s != "" {
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			badRequest(c, "invalid after: "+err.Error())
			return
		}
		after = v
	}
	var wait time.Duration
	if s := c.Query("wait"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil || d < 0 {
			badRequest(c, "invalid wait duration")
			return
		}
		wait = min(d, maxLogWait)
	}

	lines, next, err := r.sup.LogSince(name, after)
	if err != nil {
		writeError(c, err)
		return
	}
	if len(lines) == 0 && wait > 0 {
		ctx, cancel := context.WithTimeout(c.Request.Context(), wait)
		err := r.sup.LogWait(ctx, name, next)
		cancel()
		if err != nil && !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			writeError(c, err)
			return
		}
		if lines, next, err = r.sup.LogSince(name, after); err != nil {
			writeError(c, err)
			return
		}
	}
	out := logResp{Log: make([]string, 0, len(lines)), Next: next}
	for _, l := range lines {
		out.Log = append(out.Log, l.Text)
	}
	writeJSON(c, http.StatusOK, out)
}

func (r *Router) handleUsage(c *gin.Context) {
	sm, err := r.sup.Usage(c.Request.Context(), c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, sm)
}

func (r *Router) handlePath(c *gin.Context) {
	p, err := r.sup.Path(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, pathResp{Path: p})
}
