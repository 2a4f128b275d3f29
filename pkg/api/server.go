// Package api provides the REST API server for midi2atem
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/james-see/midi2atem/pkg/bridge"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title MIDI2ATEM API
// @version 1.0
// @description API for inspecting switchers and triggering note scenarios
// @host localhost:8080
// @BasePath /api/v1

// Bridge is the part of the bridge the API drives
type Bridge interface {
	Status() []bridge.Status
	Mapping() bridge.Mapping
	Trigger(source string, note uint8) bool
	Dropped() int64
	Closed() bool
}

// EventSource returns recent operator events
type EventSource interface {
	Events() []bridge.Event
}

// Server serves the REST API
type Server struct {
	bridge Bridge
	events EventSource
	log    zerolog.Logger
	engine *gin.Engine
}

// NewServer builds the router
func NewServer(b Bridge, events EventSource, log zerolog.Logger) *Server {
	s := &Server{bridge: b, events: events, log: log}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(log))
	r.Use(corsMiddleware())

	r.GET("/health", s.healthCheck)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/health", s.healthCheck)
		v1.GET("/switchers", s.listSwitchers)
		v1.GET("/scenarios", s.listScenarios)
		v1.POST("/notes/:note", s.triggerNote)
		v1.GET("/events", s.listEvents)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	s.engine = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on port until ctx is done
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("api request")
	}
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// healthCheck godoc
// @Summary Health check endpoint
// @Description Returns the health status of the API and the switcher sessions
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *Server) healthCheck(c *gin.Context) {
	connected := 0
	status := s.bridge.Status()
	for _, st := range status {
		if st.Connected {
			connected++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   "midi2atem",
		"switchers": len(status),
		"connected": connected,
		"dropped":   s.bridge.Dropped(),
	})
}

// listSwitchers godoc
// @Summary List switchers
// @Description Returns connection state, model and current input of every switcher
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]bridge.Status
// @Router /api/v1/switchers [get]
func (s *Server) listSwitchers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"switchers": s.bridge.Status()})
}

// listScenarios godoc
// @Summary List scenarios
// @Description Returns the note table ordered by note
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]bridge.Scenario
// @Router /api/v1/scenarios [get]
func (s *Server) listScenarios(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"scenarios": s.bridge.Mapping().Scenarios()})
}

// triggerNote godoc
// @Summary Trigger a note
// @Description Queues a note on as if the pad had been pressed
// @Tags control
// @Produce json
// @Param note path int true "MIDI note number (0-127)"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /api/v1/notes/{note} [post]
func (s *Server) triggerNote(c *gin.Context) {
	n, err := strconv.ParseUint(c.Param("note"), 10, 8)
	if err != nil || n > 127 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "note must be a number between 0 and 127"})
		return
	}
	note := uint8(n)

	sc, ok := s.bridge.Mapping().Lookup(note)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unassigned note %d", note)})
		return
	}
	if !s.bridge.Trigger("api", note) {
		msg := "event queue full"
		if s.bridge.Closed() {
			msg = "bridge is shutting down"
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"note":   note,
		"label":  sc.Label,
		"queued": true,
	})
}

// listEvents godoc
// @Summary Recent events
// @Description Returns the most recent operator events, oldest first
// @Tags info
// @Produce json
// @Success 200 {object} map[string][]bridge.Event
// @Router /api/v1/events [get]
func (s *Server) listEvents(c *gin.Context) {
	var events []bridge.Event
	if s.events != nil {
		events = s.events.Events()
	}
	if events == nil {
		events = []bridge.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}
