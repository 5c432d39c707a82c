// Package http exposes the selection API, the scheduler stats endpoint and
// the thin admin settings surface over gin.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/modelrelay/modelrelay/internal/catalog"
	"github.com/modelrelay/modelrelay/internal/config"
	"github.com/modelrelay/modelrelay/internal/scheduler"
	"github.com/modelrelay/modelrelay/internal/settings"
)

// Server wraps the gin engine and the underlying http.Server.
type Server struct {
	engine *gin.Engine
	server *http.Server
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	DB        *gorm.DB
	Catalog   *catalog.Store
	Scheduler *scheduler.Scheduler
	Settings  *settings.Store
	JWT       config.JWTConfig
}

// NewServer builds the router with all routes registered.
func NewServer(addr string, deps Deps) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	registerRoutes(engine, deps)

	return &Server{
		engine: engine,
		server: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Engine exposes the router, used by tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run serves until the listener fails or Shutdown is called.
func (s *Server) Run() error {
	errServe := s.server.ListenAndServe()
	if errors.Is(errServe, http.ErrServerClosed) {
		return nil
	}
	return errServe
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func registerRoutes(engine *gin.Engine, deps Deps) {
	healthHandler := newHealthHandler(deps.DB)
	engine.GET("/healthz", healthHandler.Healthz)

	selectionHandler := newSelectionHandler(deps.Catalog, deps.Scheduler)
	v1 := engine.Group("/v1")
	v1.Use(callerAuthMiddleware(deps.Catalog))
	v1.POST("/select", selectionHandler.Select)
	v1.POST("/release", selectionHandler.Release)

	stats := engine.Group("/v1/scheduler")
	stats.Use(adminAuthMiddleware(deps.JWT))
	stats.GET("/stats", selectionHandler.Stats)

	admin := engine.Group("/v0/admin")
	admin.Use(adminAuthMiddleware(deps.JWT))

	settingHandler := newSettingHandler(deps.DB, deps.Settings)
	admin.GET("/settings", settingHandler.List)
	admin.GET("/settings/:key", settingHandler.Get)
	admin.PUT("/settings/:key", settingHandler.Update)

	providerHandler := newProviderHandler(deps.Catalog)
	admin.GET("/providers", providerHandler.Search)
	admin.GET("/provider-keys", providerHandler.KeysForModel)
	admin.PUT("/provider-keys/:id/learned-limit", providerHandler.UpdateLearnedLimit)
}
