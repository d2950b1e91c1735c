package web

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-astro/pkg/hub"
)

// handleHealthz reports capture pipeline health. A dead audio device is
// the one fatal failure mode, and this is where it becomes observable.
func (s *Server) handleHealthz(c *fiber.Ctx) error {
	status := s.cfg.Status()
	if !status.CaptureHealthy {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unhealthy",
			"reason": "capture pipeline stalled",
		})
	}
	return c.JSON(fiber.Map{"status": "ok"})
}

// handleStatus returns the orchestrator snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.cfg.Status())
}

// CommandRequest is the body for POST /api/command.
type CommandRequest struct {
	Text string `json:"text"`
}

// handleCommand injects text into the dispatch path, same as a spoken
// utterance or a remote command. Dispatch runs in the background; the
// request returns as soon as the hand-off is accepted.
func (s *Server) handleCommand(c *fiber.Ctx) error {
	if s.cfg.Inject == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "command injection not configured",
		})
	}

	var req CommandRequest
	if err := c.BodyParser(&req); err != nil || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "body must be {\"text\": \"...\"}",
		})
	}

	go s.cfg.Inject("web", req.Text)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": true})
}

// handleStatusWS streams state transitions. The current snapshot is sent
// on connect so clients do not wait for the next transition.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	c.WriteJSON(s.cfg.Status())

	client := hub.NewClient(s.statusHub, c)
	client.Run()
}
