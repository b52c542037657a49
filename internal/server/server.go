package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
)

type Config struct {
	Host string
	Port string
}

type Server struct {
	echo    *echo.Echo
	cfg     Config
	logger  *slog.Logger
	handler *Handler
	auth    *AuthManager
}

func New(cfg Config, logger *slog.Logger, handler *Handler, auth *AuthManager) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{echo: e, cfg: cfg, logger: logger, handler: handler, auth: auth}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%s", s.cfg.Host, s.cfg.Port)
	s.logger.Info("starting http server", "address", addr)
	return s.echo.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}

func (s *Server) setupMiddleware() {
	s.echo.Use(echoMiddleware.Recover())
	s.echo.Use(echoMiddleware.CORS())
	s.echo.Use(RequestID())
	s.echo.Use(Logging(s.logger))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handler.Health)
	s.echo.POST("/api/login", s.handler.Login)

	api := s.echo.Group("/api", RequireToken(s.auth))
	api.POST("/records", s.handler.Submit)
	api.GET("/records", s.handler.List)
	api.GET("/records/exists", s.handler.Exists)
	api.GET("/records/export", s.handler.Export)
	api.GET("/records/:id", s.handler.Get)
	api.PUT("/records/:id", s.handler.Update)
	api.DELETE("/records/:id", s.handler.Delete)
	api.GET("/signatures/:name", s.handler.Signature)
	api.POST("/recognize", s.handler.Recognize)
}

// Handler exposes the configured echo instance for tests.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}
