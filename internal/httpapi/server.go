// Package httpapi is the agent's local status surface: liveness, the live
// door set and Prometheus metrics.  It is read-only.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/BrandonDHaskell/Portunus/agent/internal/observability"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/service"
	"github.com/BrandonDHaskell/Portunus/agent/internal/portunus/types"
)

// DoorLister reports the live doors.
type DoorLister interface {
	Doors() []types.DoorStatus
}

// StateReporter reports the orchestrator state.
type StateReporter interface {
	State() service.State
}

type Dependencies struct {
	Logger zerolog.Logger
	Addr   string
	Doors  DoorLister
	State  StateReporter
}

type Server struct {
	httpServer *http.Server
	logger     zerolog.Logger
	doors      DoorLister
	state      StateReporter
	started    time.Time
}

type healthResponse struct {
	Status string `json:"status"`
	State  string `json:"state"`
	Uptime string `json:"uptime"`
}

type doorsResponse struct {
	Doors []types.DoorStatus `json:"doors"`
}

func NewServer(d Dependencies) *Server {
	observability.RegisterMetrics()
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		logger:  d.Logger.With().Str("component", "httpapi").Logger(),
		doors:   d.Doors,
		state:   d.State,
		started: time.Now(),
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(s.logger))

	r.GET("/healthz", s.handleHealth)
	r.GET("/v1/doors", s.handleDoors)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start serves until Shutdown.  A clean shutdown returns nil.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("status server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	st := s.state.State()
	resp := healthResponse{
		Status: "ok",
		State:  st.String(),
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
	}
	if !st.Serving() {
		resp.Status = "unavailable"
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDoors(c *gin.Context) {
	c.JSON(http.StatusOK, doorsResponse{Doors: s.doors.Doors()})
}
