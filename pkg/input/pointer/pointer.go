// Package pointer drives joysticks from pointer events sent by the console
// page over a websocket.
//
// The page reports each stick's area position (layout) and raw pointer
// events in page coordinates. Engines re-measure their area from the latest
// layout on every engage.
package pointer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/geometry"
	"github.com/teslashibe/go-pilot/pkg/joystick"
	"github.com/teslashibe/go-pilot/pkg/protocol"
)

// Layout holds the page offset of each stick's area.
type Layout struct {
	mu      sync.RWMutex
	offsets map[string]geometry.Point
}

// NewLayout creates an empty Layout; unknown sticks sit at the page origin.
func NewLayout() *Layout {
	return &Layout{offsets: make(map[string]geometry.Point)}
}

// Set records the top-left corner of stick's area.
func (l *Layout) Set(stick string, offset geometry.Point) {
	l.mu.Lock()
	l.offsets[stick] = offset
	l.mu.Unlock()
}

// Offset returns the last recorded corner of stick's area.
func (l *Layout) Offset(stick string) geometry.Point {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.offsets[stick]
}

// Measurer returns a joystick.Measurer reading stick's offset.
func (l *Layout) Measurer(stick string) joystick.Measurer {
	return joystick.MeasurerFunc(func() geometry.Point { return l.Offset(stick) })
}

// EngineLookup resolves a stick name to its engine.
type EngineLookup func(stick string) (*joystick.Engine, bool)

// Stats counts handled input.
type Stats struct {
	Connections uint64 `json:"connections"`
	Events      uint64 `json:"events"`
	Rejected    uint64 `json:"rejected"`
}

// Handler serves the input websocket.
type Handler struct {
	layout  *Layout
	engines EngineLookup
	logger  *slog.Logger

	connections atomic.Uint64
	events      atomic.Uint64
	rejected    atomic.Uint64
}

// NewHandler creates a Handler feeding engines and updating layout.
func NewHandler(layout *Layout, engines EngineLookup) *Handler {
	return &Handler{
		layout:  layout,
		engines: engines,
		logger:  log.Component("pointer"),
	}
}

// RegisterRoutes mounts the input socket at path, e.g. "/ws/input".
func (h *Handler) RegisterRoutes(router fiber.Router, path string) {
	router.Use(path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get(path, websocket.New(h.serve))
}

// Stats returns the handler counters.
func (h *Handler) Stats() Stats {
	return Stats{
		Connections: h.connections.Load(),
		Events:      h.events.Load(),
		Rejected:    h.rejected.Load(),
	}
}

// session is one page connection. It remembers which sticks it engaged so
// they can be released if the page goes away mid-gesture.
type session struct {
	id      string
	conn    *websocket.Conn
	wmu     sync.Mutex
	engaged map[string]bool
}

func (s *session) send(msg *protocol.Message) error {
	data, err := msg.Bytes()
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

func (h *Handler) serve(c *websocket.Conn) {
	s := &session{id: uuid.NewString(), conn: c, engaged: make(map[string]bool)}
	logger := h.logger.With("conn", s.id)
	h.connections.Add(1)
	logger.Info("input connected")

	defer func() {
		for stick := range s.engaged {
			if e, ok := h.engines(stick); ok {
				e.Release()
				logger.Warn("released stick on disconnect", "stick", stick)
			}
		}
		logger.Info("input disconnected")
	}()

	for {
		_, data, err := c.ReadMessage()
		if err != nil {
			logger.Debug("read ended", "error", err)
			return
		}
		if reply := h.handle(s, data); reply != nil {
			if err := s.send(reply); err != nil {
				return
			}
		}
	}
}

// handle applies one message and returns an optional reply.
func (h *Handler) handle(s *session, data []byte) *protocol.Message {
	msg, err := protocol.ParseMessage(data)
	if err != nil {
		return h.reject("%v", err)
	}

	switch msg.Type {
	case protocol.TypeLayout:
		l, err := msg.GetLayoutData()
		if err != nil {
			return h.reject("bad layout: %v", err)
		}
		if _, ok := h.engines(l.Stick); !ok {
			return h.reject("unknown stick %q", l.Stick)
		}
		h.layout.Set(l.Stick, geometry.Point{X: l.Left, Y: l.Top})
		return nil

	case protocol.TypePointer:
		p, err := msg.GetPointerData()
		if err != nil {
			return h.reject("bad pointer: %v", err)
		}
		return h.pointer(s, p)

	case protocol.TypePing:
		pong, err := protocol.NewPongMessage(msg)
		if err != nil {
			return h.reject("bad ping: %v", err)
		}
		return pong

	default:
		return h.reject("unsupported message type %q", msg.Type)
	}
}

func (h *Handler) pointer(s *session, p *protocol.PointerData) *protocol.Message {
	e, ok := h.engines(p.Stick)
	if !ok {
		return h.reject("unknown stick %q", p.Stick)
	}
	h.events.Add(1)
	page := geometry.Point{X: p.X, Y: p.Y}

	switch p.Kind {
	case protocol.PointerDown:
		e.Press(page)
		s.engaged[p.Stick] = true
	case protocol.PointerMove:
		e.Move(page)
	case protocol.PointerUp:
		e.Release()
		delete(s.engaged, p.Stick)
	default:
		return h.reject("unknown pointer kind %q", p.Kind)
	}
	return nil
}

func (h *Handler) reject(format string, args ...any) *protocol.Message {
	h.rejected.Add(1)
	msg, err := protocol.NewErrorMessage(format, args...)
	if err != nil {
		return nil
	}
	h.logger.Debug("input rejected", "reason", string(msg.Data))
	return msg
}
