// Package api provides the HTTP server for the health recorder: the record
// submission and chat pages, their JSON counterparts, and the operational
// endpoints (health, metrics, log tail). Configuration and the chat pipeline
// can be swapped at runtime on config reload.
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/health-recorder-ai/health-recorder/internal/api/middleware"
	"github.com/health-recorder-ai/health-recorder/internal/chat"
	"github.com/health-recorder-ai/health-recorder/internal/config"
	"github.com/health-recorder-ai/health-recorder/internal/logging"
	log "github.com/sirupsen/logrus"
)

//go:embed templates/*.html
var templatesFS embed.FS

type serverOptionConfig struct {
	extraMiddleware    []gin.HandlerFunc
	engineConfigurator func(*gin.Engine)
	logBuffer          *logging.RingBuffer
}

// ServerOption customises HTTP server construction.
type ServerOption func(*serverOptionConfig)

// WithMiddleware appends additional Gin middleware during server construction.
func WithMiddleware(mw ...gin.HandlerFunc) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.extraMiddleware = append(cfg.extraMiddleware, mw...)
	}
}

// WithEngineConfigurator allows callers to mutate the Gin engine prior to middleware setup.
func WithEngineConfigurator(fn func(*gin.Engine)) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.engineConfigurator = fn
	}
}

// WithLogBuffer serves /api/logs from rb instead of the global buffer.
func WithLogBuffer(rb *logging.RingBuffer) ServerOption {
	return func(cfg *serverOptionConfig) {
		cfg.logBuffer = rb
	}
}

// Server represents the HTTP server.
type Server struct {
	engine *gin.Engine
	server *http.Server

	// cfg and service are replaced together on config reload.
	cfg     atomic.Pointer[config.Config]
	service atomic.Pointer[chat.Service]

	logBuffer *logging.RingBuffer
}

// NewServer creates the server, registers middleware and routes, and binds
// the listen address from cfg.
func NewServer(cfg *config.Config, svc *chat.Service, opts ...ServerOption) *Server {
	optionState := &serverOptionConfig{}
	for i := range opts {
		opts[i](optionState)
	}
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if optionState.engineConfigurator != nil {
		optionState.engineConfigurator(engine)
	}

	middleware.SetMetricsEnabled(cfg.IsMetricsEnabled())

	engine.Use(logging.GinLogrusLogger())
	engine.Use(logging.GinLogrusRecovery())
	engine.Use(middleware.PrometheusMiddleware())
	for _, mw := range optionState.extraMiddleware {
		engine.Use(mw)
	}

	pages := template.Must(template.New("").ParseFS(templatesFS, "templates/*.html"))
	engine.SetHTMLTemplate(pages)

	s := &Server{
		engine:    engine,
		logBuffer: optionState.logBuffer,
	}
	if s.logBuffer == nil {
		s.logBuffer = logging.GlobalBuffer
	}
	s.cfg.Store(cfg)
	s.service.Store(svc)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/", s.showRecordForm)
	s.engine.POST("/", s.submitRecord)
	s.engine.GET("/chat", s.showChat)
	s.engine.POST("/chat", s.submitChat)

	api := s.engine.Group("/api")
	api.Use(middleware.RequestDecompressionMiddleware())
	{
		api.GET("/records", s.listRecords)
		api.POST("/chat", s.chatJSON)
		api.GET("/logs", s.tailLogs)
	}

	s.engine.GET("/healthz", s.healthz)
	s.engine.GET("/metrics", middleware.MetricsHandler())
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins listening for and serving HTTP requests.
// It's a blocking call and will only return on an unrecoverable error.
func (s *Server) Start() error {
	if s == nil || s.server == nil {
		return fmt.Errorf("failed to start HTTP server: server not initialized")
	}
	log.Infof("health recorder listening on %s", s.server.Addr)
	if errServe := s.server.ListenAndServe(); errServe != nil && !errors.Is(errServe, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %v", errServe)
	}
	return nil
}

// Stop gracefully shuts down the server without interrupting active requests.
func (s *Server) Stop(ctx context.Context) error {
	log.Debug("Stopping API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %v", err)
	}
	log.Debug("API server stopped")
	return nil
}

// UpdateConfig installs a reloaded config and, when non-nil, a chat service
// rebuilt from it. The listen address is not changed at runtime.
func (s *Server) UpdateConfig(cfg *config.Config, svc *chat.Service) {
	if cfg == nil {
		return
	}
	old := s.cfg.Swap(cfg)
	if svc != nil {
		s.service.Store(svc)
	}
	middleware.SetMetricsEnabled(cfg.IsMetricsEnabled())
	if old != nil && old.Addr() != cfg.Addr() {
		log.Warnf("listen address change to %s requires a restart", cfg.Addr())
	}
	log.WithFields(log.Fields{
		"model":    cfg.Model,
		"endpoint": cfg.GenerateEndpoint,
	}).Info("configuration updated")
}

func (s *Server) getConfig() *config.Config {
	return s.cfg.Load()
}

func (s *Server) getService() *chat.Service {
	return s.service.Load()
}
