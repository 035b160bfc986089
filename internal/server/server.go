// Package server exposes the engine's state as a small JSON API with
// prometheus metrics, for running the monitor headless.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/luki/hydromonitor/internal/configsync"
	"github.com/luki/hydromonitor/internal/engine"
	"github.com/luki/hydromonitor/internal/entry"
	"github.com/luki/hydromonitor/internal/history"
	"github.com/luki/hydromonitor/internal/sensor"
)

const (
	configTimeout   = 15 * time.Second
	shutdownTimeout = 10 * time.Second
	defaultPoints   = 120
)

// Monitor is the part of the engine the server drives.
type Monitor interface {
	Snapshot() engine.Snapshot
	Refresh()
	ReadConfig(ctx context.Context) (configsync.Values, error)
	WriteConfig(ctx context.Context, v configsync.Values) error
	SubmitManual(f entry.Form) (sensor.Reading, error)
	Series(key string, n int) (history.Series, bool)
}

// Server bundles the router and its dependencies.
type Server struct {
	addr     string
	monitor  Monitor
	gatherer prometheus.Gatherer
	log      zerolog.Logger
	engine   *gin.Engine
}

// New constructs a server with routes and middleware.
func New(addr string, m Monitor, g prometheus.Gatherer, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(corsMiddleware())

	if g == nil {
		g = prometheus.DefaultGatherer
	}
	s := &Server{addr: addr, monitor: m, gatherer: g, log: log, engine: r}
	s.registerRoutes()
	return s
}

// Engine exposes the underlying gin engine (for tests).
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("status server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))

	api := s.engine.Group("/api")
	{
		api.GET("/state", s.handleState)
		api.GET("/ranking", s.handleRanking)
		api.GET("/notifications", s.handleNotifications)
		api.GET("/history/:metric", s.handleHistory)
		api.GET("/config", s.handleGetConfig)
		api.POST("/config", s.handlePostConfig)
		api.POST("/refresh", s.handleRefresh)
		api.POST("/manual", s.handleManual)
	}
}

func (s *Server) handleState(c *gin.Context) {
	c.JSON(http.StatusOK, s.monitor.Snapshot())
}

func (s *Server) handleRanking(c *gin.Context) {
	snap := s.monitor.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"data": snap.Ranking.Value,
		"meta": gin.H{
			"count":        len(snap.Ranking.Value),
			"connectivity": snap.Ranking.Connectivity,
			"last_update":  snap.Ranking.LastUpdate,
		},
	})
}

func (s *Server) handleNotifications(c *gin.Context) {
	ns := s.monitor.Snapshot().Notifications
	c.JSON(http.StatusOK, gin.H{
		"data": ns,
		"meta": gin.H{"count": len(ns)},
	})
}

func (s *Server) handleHistory(c *gin.Context) {
	key := c.Param("metric")
	if _, ok := sensor.Lookup(key); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown metric"})
		return
	}
	n := defaultPoints
	if v := c.Query("last_n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid last_n"})
			return
		}
		n = parsed
	}
	series, _ := s.monitor.Series(key, n)
	c.JSON(http.StatusOK, gin.H{"data": series})
}

func (s *Server) handleGetConfig(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), configTimeout)
	defer cancel()

	v, err := s.monitor.ReadConfig(ctx)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "data": v})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": v})
}

func (s *Server) handlePostConfig(c *gin.Context) {
	var v configsync.Values
	if err := c.ShouldBindJSON(&v); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid config body"})
		return
	}
	if v.CycleMinutes < 0 || v.TargetConductivity < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "values must not be negative"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), configTimeout)
	defer cancel()

	if err := s.monitor.WriteConfig(ctx, v); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": v})
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.monitor.Refresh()
	c.Status(http.StatusAccepted)
}

func (s *Server) handleManual(c *gin.Context) {
	var f entry.Form
	if err := c.ShouldBindJSON(&f); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reading body"})
		return
	}
	r, err := s.monitor.SubmitManual(f)
	if err != nil {
		var verr entry.ValidationError
		if errors.As(err, &verr) {
			fields := make(gin.H, len(verr))
			for _, fe := range verr {
				fields[fe.Field] = fe.Reason
			}
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid reading", "fields": fields})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": r})
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
