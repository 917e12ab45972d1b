package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/isectech/hospital-threat-engine/pkg/logging"
	"github.com/isectech/hospital-threat-engine/shared/common"
)

// APIPrefix is the path prefix of every versioned route
const APIPrefix = "/api/v1"

// Server is the HTTP API server
type Server struct {
	server     *http.Server
	router     *gin.Engine
	handlers   *Handlers
	middleware *Middleware
	logger     *logging.Logger
}

// NewServer builds the gin router and the http.Server around it
func NewServer(cfg common.HTTPConfig, handlers *Handlers, middleware *Middleware, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	router := gin.New()
	s := &Server{
		router:     router,
		handlers:   handlers,
		middleware: middleware,
		logger:     logger.WithComponent("http_server"),
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.middleware.Recovery())
	s.router.Use(s.middleware.RequestContext())
	s.router.Use(s.middleware.RequestLogger())
	s.router.Use(s.middleware.BodyLimit())
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handlers.Health)
	s.router.GET("/ready", s.handlers.Ready)

	v1 := s.router.Group(APIPrefix)
	{
		v1.POST("/classify", s.handlers.Classify)
		v1.POST("/classify/batch", s.handlers.ClassifyBatch)
		v1.GET("/classifications/recent", s.handlers.RecentClassifications)

		model := v1.Group("/model")
		{
			model.GET("/metrics", s.handlers.ModelMetrics)
			model.POST("/retrain", s.handlers.Retrain)
			model.POST("/training-samples", s.handlers.AddTrainingSample)
			model.GET("/snapshot", s.handlers.ExportSnapshot)
			model.PUT("/snapshot", s.handlers.ImportSnapshot)
			model.POST("/snapshot/persist", s.handlers.PersistSnapshot)
			model.POST("/snapshot/restore", s.handlers.RestoreSnapshot)
		}
	}

	s.router.NoRoute(func(c *gin.Context) {
		abortWithError(c, common.ErrNotFound("route "+c.Request.URL.Path))
	})
}

// Handler returns the router, used by tests and embedding servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.server.Addr
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server", logging.String("address", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}
