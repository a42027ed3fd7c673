package server

import (
	"context"
	"fmt"
	"html/template"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/da-stoaz/carrera-dash/internal/config"
	"github.com/da-stoaz/carrera-dash/internal/coordinator"
)

// BusPinger reports sensor bus reachability for the readiness check.
// Implemented by bus.Client.
type BusPinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	echo              *echo.Echo
	config            *config.Config
	coordinator       *coordinator.Coordinator
	busClient         BusPinger
	dashboardTemplate *template.Template
}

func NewServer(cfg *config.Config, coord *coordinator.Coordinator, busClient BusPinger) (*Server, error) {
	// The dashboard is a required asset: refuse to start without it.
	dashboardTmpl, err := template.ParseFiles(cfg.DashboardTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dashboard template: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:              e,
		config:            cfg,
		coordinator:       coord,
		busClient:         busClient,
		dashboardTemplate: dashboardTmpl,
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
