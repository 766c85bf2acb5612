// Package web provides the HTTP status server of the heater controller:
// a status page, JSON status, live outcome push over a websocket, metrics
// and schedule updates.
package web

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/logic"
	"github.com/sweeney/heater-controller/internal/mqtt"
	"github.com/sweeney/heater-controller/internal/recorder"
	"github.com/sweeney/heater-controller/internal/status"
)

const (
	maxHeaderBytes    = 1 << 20
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 60 * time.Second
	recentAlerts      = 20
)

// ScheduleUpdater applies schedule updates and exposes the stored schedule.
// *logic.ScheduleStore satisfies it.
type ScheduleUpdater interface {
	Apply(field logic.Field, value string) error
	Schedule() logic.Schedule
}

// Options configures a Server.
type Options struct {
	Addr        string
	Tracker     *status.Tracker
	Schedule    ScheduleUpdater
	Recorder    recorder.Recorder // optional
	Metrics     http.Handler      // optional
	TokenSecret string            // when set, schedule updates need a bearer token
	Log         *logger.Logger
}

// Server serves the status page and API over HTTP.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	tracker    *status.Tracker
	schedule   ScheduleUpdater
	recorder   recorder.Recorder
	secret     []byte
	hub        *hub
	log        *logger.Logger
}

// New creates a Server that reads state from o.Tracker.
func New(o Options) *Server {
	if o.Log == nil {
		o.Log = logger.Nop()
	}
	if o.Recorder == nil {
		o.Recorder = recorder.NewNoopRecorder()
	}
	s := &Server{
		tracker:  o.Tracker,
		schedule: o.Schedule,
		recorder: o.Recorder,
		hub:      newHub(),
		log:      o.Log,
	}
	if o.TokenSecret != "" {
		s.secret = []byte(o.TokenSecret)
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.requestLog)
	r.SetHTMLTemplate(indexTmpl)

	r.GET("/", s.handleIndex)
	r.GET("/index.html", s.handleIndex)
	r.GET("/index.json", s.handleJSON)
	r.GET("/health", s.handleHealth)
	r.GET("/ws", s.wsConnect)
	if o.Metrics != nil {
		r.GET("/metrics", gin.WrapH(o.Metrics))
	}

	api := r.Group("/api")
	{
		api.GET("/schedule", s.getSchedule)
		api.GET("/alerts", s.getAlerts)
		api.PUT("/schedule/:field", s.bearerAuth, s.putSchedule)
	}

	s.engine = r
	s.httpServer = &http.Server{
		Addr:              o.Addr,
		Handler:           r,
		MaxHeaderBytes:    maxHeaderBytes,
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

// Handler returns the router. Useful for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe starts listening. It blocks until the server is shut down
// and returns nil after a clean shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve accepts connections on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown closes websocket streams and gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.close()
	return s.httpServer.Shutdown(ctx)
}

// Broadcast pushes an outcome to every websocket client.
func (s *Server) Broadcast(o logic.Outcome) {
	payload, err := mqtt.FormatPayload(o)
	if err != nil {
		s.log.Warnw("format outcome for websocket", "err", err)
		return
	}
	s.hub.broadcast(envelope("outcome", payload))
}

func (s *Server) requestLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debugw("http request",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"status", c.Writer.Status(),
		"duration", time.Since(start),
	)
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index", newPageData(s.tracker.Snapshot()))
}

func (s *Server) handleJSON(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", status.FormatJSON(s.tracker.Snapshot()))
}

func (s *Server) handleHealth(c *gin.Context) {
	snap := s.tracker.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"mqtt":           snap.MQTTConnected,
		"cycles":         snap.Cycles,
		"uptime_seconds": int64(snap.Uptime().Seconds()),
	})
}
