package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"stocklink/internal/api/handlers"
	"stocklink/internal/api/middleware"
	"stocklink/internal/catalog"
	"stocklink/internal/config"
	"stocklink/internal/database"
	"stocklink/internal/events"
	"stocklink/internal/logger"
	syncengine "stocklink/internal/sync"
)

type Server struct {
	config *config.Config
	logger *logger.Logger
	db     *database.Database
	router *gin.Engine
	server *http.Server
}

func New(cfg *config.Config, logger *logger.Logger, db *database.Database, publisher events.Publisher) *Server {
	// Set Gin mode
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.CORS())

	// Sync engine
	repo := catalog.NewRepository(db.DB)
	states := syncengine.NewStateStore(db.DB, time.Duration(cfg.SyncStaleMinutes)*time.Minute)
	matcher := syncengine.NewMatcher(repo, logger, cfg.MatchThreshold, cfg.MatchGroupSize)
	writer := syncengine.NewWriter(db.DB, logger, cfg.WriteChunkSize, cfg.WriteConcurrency)
	orchestrator := syncengine.NewOrchestrator(db.DB, states, matcher, writer, publisher, logger)

	// Initialize handlers
	connectionHandler := handlers.NewConnectionHandler(db.DB, logger)
	productHandler := handlers.NewProductHandler(db.DB, logger)
	canonicalHandler := handlers.NewCanonicalHandler(db.DB, logger)
	syncHandler := handlers.NewSyncHandler(db.DB, logger, cfg, orchestrator, states)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Routes
	v1 := router.Group("/api/v1")
	{
		// POS connections
		connections := v1.Group("/connections")
		{
			connections.GET("", connectionHandler.List)
			connections.GET("/:id", connectionHandler.Get)
			connections.POST("", connectionHandler.Create)
			connections.PUT("/:id", connectionHandler.Update)
			connections.DELETE("/:id", connectionHandler.Delete)

			connections.POST("/:id/sync", syncHandler.Sync)
			connections.GET("/:id/sync/stream", syncHandler.Stream)
			connections.POST("/:id/sync/cancel", syncHandler.Cancel)
			connections.GET("/:id/sync/status", syncHandler.Status)
			connections.POST("/:id/sync/continue", syncHandler.Continue)
		}

		// Mirrored product rows
		products := v1.Group("/products")
		{
			products.GET("", productHandler.List)
			products.GET("/:id", productHandler.Get)
		}

		// Canonical catalog
		canonical := v1.Group("/canonical-products")
		{
			canonical.GET("", canonicalHandler.List)
			canonical.GET("/:id", canonicalHandler.Get)
		}
	}

	return &Server{
		config: cfg,
		logger: logger,
		db:     db,
		router: router,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.config.APIHost, s.config.APIPort)

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		// Sync requests and their SSE streams run for minutes.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting server on %s", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	return s.server.Shutdown(ctx)
}
