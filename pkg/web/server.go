// Package web serves the go-astro status surface: a health check wired to
// the capture pipeline, a JSON status snapshot, Prometheus metrics, a
// command injection endpoint, and a websocket pushing state transitions
// to dashboard clients.
package web

import (
	"log/slog"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/teslashibe/go-astro/internal/log"
	"github.com/teslashibe/go-astro/pkg/hub"
	"github.com/teslashibe/go-astro/pkg/orchestrator"
)

// Config holds the status server wiring.
type Config struct {
	// Addr to listen on, e.g. ":8090".
	Addr string

	// Status returns the current orchestrator snapshot.
	Status func() orchestrator.Status

	// Inject hands text to the orchestrator's dispatch path. Optional;
	// when nil the command endpoint returns 503.
	Inject func(source, text string)
}

// Server is the status server.
type Server struct {
	app    *fiber.App
	cfg    Config
	logger *slog.Logger

	statusHub *hub.Hub
}

// NewServer builds the server and its routes.
func NewServer(cfg Config) *Server {
	s := &Server{
		cfg:       cfg,
		logger:    log.Component("web"),
		statusHub: hub.New("status"),
	}

	app := fiber.New(fiber.Config{
		AppName:               "astro",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/healthz", s.handleHealthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Post("/command", s.handleCommand)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// Start runs the hub and listens. Blocks until Shutdown.
func (s *Server) Start() error {
	go s.statusHub.Run()
	s.logger.Info("status server listening", "addr", s.cfg.Addr)
	return s.app.Listen(s.cfg.Addr)
}

// StartAsync runs the server in a goroutine, logging any listen error.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("status server failed", "error", err)
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// BroadcastStatus pushes the current snapshot to websocket clients.
// Wire it to the orchestrator's transition observer.
func (s *Server) BroadcastStatus() {
	if err := s.statusHub.BroadcastJSON(s.cfg.Status()); err != nil {
		s.logger.Warn("status broadcast failed", "error", err)
	}
}
