package web

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-pilot/pkg/session"
	"github.com/teslashibe/go-pilot/pkg/video"
)

// ActionResponse reports whether a console action was accepted.
type ActionResponse struct {
	Action   string `json:"action"`
	Accepted bool   `json:"accepted"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// action wraps a state machine input. Accepted inputs answer 202 since the
// controller call runs in the background; inputs the current state ignores
// answer 409.
func (s *Server) action(name string, fn func() bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !fn() {
			return s.rejectAction(c, name)
		}
		return c.Status(fiber.StatusAccepted).JSON(ActionResponse{
			Action:   name,
			Accepted: true,
			State:    s.pilot.Machine.State().String(),
		})
	}
}

func (s *Server) rejectAction(c *fiber.Ctx, name string) error {
	state := s.pilot.Machine.State().String()
	return c.Status(fiber.StatusConflict).JSON(ActionResponse{
		Action: name,
		State:  state,
		Error:  name + " not allowed while " + state,
	})
}

// handleDisconnect needs ?confirm=true when the console is configured to ask
// first; without it the page gets the prompt to show.
func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	confirmed, _ := strconv.ParseBool(c.Query("confirm"))
	confirm := session.ConfirmFunc(func(string) bool {
		return confirmed || !s.cfg.ConfirmDisconnect
	})

	m := s.pilot.Machine
	st := m.State()
	if st != session.Connected && st != session.VideoOn {
		return s.rejectAction(c, "disconnect")
	}
	if !m.DisconnectWith(confirm) {
		if m.State() == session.Disconnected {
			return s.rejectAction(c, "disconnect")
		}
		return c.Status(fiber.StatusPreconditionRequired).JSON(ActionResponse{
			Action: "disconnect",
			State:  m.State().String(),
			Error:  "confirmation required",
			Prompt: session.DisconnectPrompt,
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(ActionResponse{
		Action:   "disconnect",
		Accepted: true,
		State:    m.State().String(),
	})
}

// handleStatus returns the pilot status
func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.status())
}

// handleSticks returns the last drawn frame of each joystick.
func (s *Server) handleSticks(c *fiber.Ctx) error {
	out := make(map[string]any, len(s.sticks))
	for name, rec := range s.sticks {
		f, _ := rec.Last()
		out[name] = f
	}
	return c.JSON(out)
}

// handleSnapshot returns the last video keyframe as a JPEG.
func (s *Server) handleSnapshot(c *fiber.Ctx) error {
	jpeg, err := s.pilot.Snapshots.JPEG()
	switch {
	case errors.Is(err, video.ErrNoFrame):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no video frame yet"})
	case err != nil:
		s.logger.Warn("snapshot failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	c.Set(fiber.HeaderContentType, "image/jpeg")
	return c.Send(jpeg)
}
