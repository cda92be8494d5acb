// Package controllertest provides a drone controller simulator: every
// endpoint the pilot calls, a recorded call log, a movement safety watchdog
// and a WebRTC answerer that streams a synthetic H.264 track.
//
// It backs the controller-sim command and the integration tests of the
// controller, video and app packages.
package controllertest

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/controller"
	"github.com/teslashibe/go-pilot/pkg/joystick"
)

// DefaultWatchdog is how long a non-neutral vector survives without input.
const DefaultWatchdog = 500 * time.Millisecond

// Call is one recorded request.
type Call struct {
	Path   string             `json:"path"`
	Body   map[string]float64 `json:"body,omitempty"`
	Status int                `json:"status"`
	At     time.Time          `json:"at"`
}

// Vector is the drone's flight vector. X is forward, Y is lateral, Z is
// vertical and R is yaw.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	R float64 `json:"r"`
}

// IsZero reports whether the drone is holding position.
func (v Vector) IsZero() bool {
	return v == Vector{}
}

// State is the simulated drone.
type State struct {
	Connected        bool    `json:"connected"`
	Halted           bool    `json:"halted"`
	Flying           bool    `json:"flying"`
	Vector           Vector  `json:"vector"`
	Streams          int     `json:"streams"`
	KeyframeRequests int     `json:"keyframe_requests"`
	BitrateMbps      float64 `json:"bitrate_mbps"`
	WatchdogTrips    int     `json:"watchdog_trips"`
}

// Option configures a Server.
type Option func(*Server)

// WithWatchdog sets the safety timeout. Zero disables it.
func WithWatchdog(d time.Duration) Option {
	return func(s *Server) { s.watchdog = d }
}

// WithFrameInterval sets the synthetic stream's frame period.
func WithFrameInterval(d time.Duration) Option {
	return func(s *Server) { s.frameInterval = d }
}

// WithAPI builds answering peer connections from api.
func WithAPI(api *webrtc.API) Option {
	return func(s *Server) { s.api = api }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server simulates the controller process.
type Server struct {
	app           *fiber.App
	api           *webrtc.API
	watchdog      time.Duration
	frameInterval time.Duration
	logger        *slog.Logger

	mu      sync.Mutex
	state   State
	calls   []Call
	timer   *time.Timer
	armed   uint64
	streams map[*stream]struct{}
}

// New creates a simulator with all routes registered.
func New(opts ...Option) *Server {
	s := &Server{
		watchdog:      DefaultWatchdog,
		frameInterval: DefaultFrameInterval,
		logger:        log.Component("controller-sim"),
		streams:       make(map[*stream]struct{}),
		state:         State{BitrateMbps: 4},
	}
	for _, opt := range opts {
		opt(s)
	}

	app := fiber.New(fiber.Config{
		AppName:               "controller-sim",
		DisableStartupMessage: true,
		// The call log keeps request paths past the handler.
		Immutable: true,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	app.Get(controller.PathConnect, s.handleConnect)
	app.Get(controller.PathTakeoff, s.guarded(s.handleTakeoff))
	app.Get(controller.PathLand, s.guarded(s.handleLand))
	app.Get(controller.PathDisconnect, s.guarded(s.handleDisconnect))
	app.Get(controller.PathVideoOff, s.handleVideoOff)
	app.Post(controller.PathOffer, s.handleOffer)
	app.Post(joystick.XY.Path, s.guarded(s.handleMoveXY))
	app.Post(joystick.ZR.Path, s.guarded(s.handleMoveZR))
	app.Get("/state", s.handleState)

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Handler adapts the app for net/http, e.g. httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return adaptor.FiberApp(s.app)
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("controller simulator listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops streams, the watchdog and the HTTP server.
func (s *Server) Shutdown() error {
	s.Close()
	return s.app.Shutdown()
}

// Close stops every stream and the watchdog without stopping the app.
func (s *Server) Close() {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.armed++
	s.mu.Unlock()
	s.stopStreams()
}

// State returns a copy of the simulated drone.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.state
	st.Streams = len(s.streams)
	return st
}

// Calls returns every recorded request in arrival order.
func (s *Server) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// Count returns how many requests hit path.
func (s *Server) Count(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

func (s *Server) record(path string, body map[string]float64, status int) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Path: path, Body: body, Status: status, At: time.Now()})
	s.mu.Unlock()
}

// guarded refuses commands until the drone is connected.
func (s *Server) guarded(next fiber.Handler) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s.mu.Lock()
		ok := s.state.Connected && !s.state.Halted
		s.mu.Unlock()
		if !ok {
			s.logger.Warn("drone not initialized", "path", c.Path())
			s.record(c.Path(), decodeBody(c), fiber.StatusInternalServerError)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return next(c)
	}
}

func (s *Server) handleConnect(c *fiber.Ctx) error {
	s.mu.Lock()
	already := s.state.Connected
	s.state.Connected = true
	s.state.Halted = false
	s.mu.Unlock()
	if already {
		s.logger.Info("drone already initialized")
	} else {
		s.logger.Info("drone connected")
	}
	s.record(c.Path(), nil, fiber.StatusOK)
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleTakeoff(c *fiber.Ctx) error {
	s.mu.Lock()
	s.state.Flying = true
	s.mu.Unlock()
	s.logger.Info("takeoff")
	s.record(c.Path(), nil, fiber.StatusOK)
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleLand(c *fiber.Ctx) error {
	s.mu.Lock()
	s.state.Flying = false
	s.state.Vector = Vector{}
	s.mu.Unlock()
	s.logger.Info("land")
	s.record(c.Path(), nil, fiber.StatusOK)
	return c.SendStatus(fiber.StatusOK)
}

// handleDisconnect lands and halts; the simulator keeps serving so the
// halted state can be inspected.
func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	s.mu.Lock()
	s.state.Flying = false
	s.state.Vector = Vector{}
	s.state.Halted = true
	s.state.Connected = false
	s.mu.Unlock()
	s.stopStreams()
	s.logger.Info("disconnect: landed and halted")
	s.record(c.Path(), nil, fiber.StatusOK)
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleVideoOff(c *fiber.Ctx) error {
	s.stopStreams()
	s.logger.Info("video off")
	s.record(c.Path(), nil, fiber.StatusOK)
	return c.SendStatus(fiber.StatusOK)
}

// handleMoveXY maps the stick's vertical axis to forward motion and its
// horizontal axis to lateral motion.
func (s *Server) handleMoveXY(c *fiber.Ctx) error {
	body := decodeBody(c)
	s.mu.Lock()
	s.state.Vector.X = body["y"]
	s.state.Vector.Y = body["x"]
	s.armLocked()
	s.mu.Unlock()
	s.record(c.Path(), body, fiber.StatusOK)
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleMoveZR(c *fiber.Ctx) error {
	body := decodeBody(c)
	s.mu.Lock()
	s.state.Vector.Z = body["z"]
	s.state.Vector.R = body["r"]
	s.armLocked()
	s.mu.Unlock()
	s.record(c.Path(), body, fiber.StatusOK)
	return c.SendStatus(fiber.StatusOK)
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.State())
}

func decodeBody(c *fiber.Ctx) map[string]float64 {
	body := make(map[string]float64)
	if len(c.Body()) == 0 {
		return body
	}
	_ = json.Unmarshal(c.Body(), &body)
	return body
}
