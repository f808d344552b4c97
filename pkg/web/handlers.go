package web

import (
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-luckycat/pkg/hub"
	"github.com/teslashibe/go-luckycat/pkg/turn"
)

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.state(s.ctrl.Status()))
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	return c.JSON(s.ctrl.History())
}

// handleTalk starts a turn. A turn already in progress is a conflict.
func (s *Server) handleTalk(c *fiber.Ctx) error {
	s.mu.Lock()
	ctx := s.turnCtx
	s.mu.Unlock()

	id, err := s.ctrl.Trigger(ctx)
	if errors.Is(err, turn.ErrBusy) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
			"state": s.ctrl.Status().State,
		})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"turn_id": id})
}

func (s *Server) handleStop(c *fiber.Ctx) error {
	if err := s.ctrl.Stop(); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleCancel(c *fiber.Ctx) error {
	s.ctrl.Cancel()
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleRobotReset(c *fiber.Ctx) error {
	if s.config.Robot == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "robot API not configured"})
	}
	if err := s.config.Robot.Reset(c.UserContext()); err != nil {
		s.logger.Warn("robot reset failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handlePromptSets(c *fiber.Ctx) error {
	if s.config.PromptSets == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "prompt sets not available for this chat backend"})
	}
	sets, err := s.config.PromptSets.PromptSets(c.UserContext())
	if err != nil {
		s.logger.Warn("list prompt sets failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(sets)
}

// handleStatusWS sends the current state, then every change.
func (s *Server) handleStatusWS(conn *websocket.Conn) {
	data, err := json.Marshal(s.state(s.ctrl.Status()))
	if err != nil {
		s.logger.Warn("encode state", "error", err)
		return
	}
	hub.NewClient(s.statusHub, conn, hub.NewJSONMessage(data)).Run()
}
