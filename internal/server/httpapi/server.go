// Package httpapi exposes the orchestration engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/futuravault/futuravault/internal/logging"
	"github.com/futuravault/futuravault/internal/server/services"
)

// Server wraps the gin engine and the two orchestration services.
type Server struct {
	address    string
	engine     *gin.Engine
	httpServer *http.Server
	logger     logging.Logger

	uploads   *services.UploadService
	memories  *services.MemoryService
	jwtSecret []byte
}

func NewServer(address string, logger logging.Logger, uploads *services.UploadService,
	memories *services.MemoryService, secretKey string) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		address:   address,
		engine:    engine,
		logger:    logger.With("module", "httpapi"),
		uploads:   uploads,
		memories:  memories,
		jwtSecret: []byte(secretKey),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         address,
		Handler:      engine,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
	}
	return s
}

func (s *Server) routes() {
	s.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := s.engine.Group("/api", s.authMiddleware())
	{
		api.POST("/upload/intent", s.handleUploadIntent)
		api.POST("/upload/verify", s.handleUploadVerify)
		api.POST("/uploads", s.handleUploads)

		api.POST("/memories", s.handleCreateMemory)
		api.GET("/memories/:id", s.handleGetMemory)
		api.DELETE("/memories/:id", s.handleDeleteMemory)

		api.GET("/users/me/storage-preference", s.handleGetPreference)
		api.PUT("/users/me/storage-preference", s.handleSetPreference)
	}
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error(ctx, "shutdown error", "error", err)
		}
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
