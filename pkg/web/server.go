// Package web serves the pilot console: a page with two on-screen joysticks
// and the connection buttons, backed by REST actions and websocket feeds.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-pilot/internal/config"
	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/app"
	"github.com/teslashibe/go-pilot/pkg/hub"
	"github.com/teslashibe/go-pilot/pkg/input/pointer"
	"github.com/teslashibe/go-pilot/pkg/joystick"
	"github.com/teslashibe/go-pilot/pkg/protocol"
	"github.com/teslashibe/go-pilot/pkg/session"
)

//go:embed static
var static embed.FS

// statusInterval refreshes the status feed so dispatch counters stay live.
const statusInterval = time.Second

// videoBuffer is how many access units the console forwarder may lag by.
const videoBuffer = 64

// ErrRunning is returned by Run when the console is already serving.
var ErrRunning = errors.New("web: console already running")

// Status is the console's view of the pilot.
type Status struct {
	app.Status
	Input   pointer.Stats  `json:"input"`
	Clients map[string]int `json:"clients"`
}

// Server is the pilot console.
type Server struct {
	cfg    config.Pilot
	pilot  *app.Pilot
	app    *fiber.App
	logger *slog.Logger

	layout *pointer.Layout
	input  *pointer.Handler
	sticks map[string]*joystick.Recorder

	// Hubs for websocket broadcast
	statusHub *hub.Hub
	videoHub  *hub.Hub
	stickHub  *hub.Hub

	runMu   sync.Mutex
	running bool
}

// NewServer builds the console and the pilot behind it. opts are passed to
// app.New; the console supplies the joystick measurers and renderers itself.
func NewServer(cfg config.Pilot, opts ...app.Option) (*Server, error) {
	s := &Server{
		cfg:       cfg,
		logger:    log.Component("web"),
		layout:    pointer.NewLayout(),
		sticks:    make(map[string]*joystick.Recorder),
		statusHub: hub.New("status"),
		videoHub:  hub.New("video"),
		stickHub:  hub.New("sticks"),
	}
	for _, axes := range []joystick.Axes{joystick.XY, joystick.ZR} {
		s.sticks[axes.Name] = &joystick.Recorder{}
	}

	opts = append(opts, app.WithEngineOptions(s.engineOptions))
	p, err := app.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	s.pilot = p
	s.input = pointer.NewHandler(s.layout, p.Engine)
	p.Machine.OnChange(func(from, to session.State) {
		s.publishStatus()
	})

	s.app = s.routes()
	return s, nil
}

func (s *Server) routes() *fiber.App {
	a := fiber.New(fiber.Config{
		AppName:               "go-pilot console",
		DisableStartupMessage: true,
	})

	a.Use(recover.New())
	a.Use(cors.New())
	if log.ParseLevel(s.cfg.LogLevel) == slog.LevelDebug {
		a.Use(logger.New())
	}

	api := a.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/sticks", s.handleSticks)
	api.Get("/video/snapshot", s.handleSnapshot)
	api.Post("/connect", s.action("connect", s.pilot.Machine.Connect))
	api.Post("/takeoff", s.action("takeoff", s.pilot.Machine.Takeoff))
	api.Post("/land", s.action("land", s.pilot.Machine.Land))
	api.Post("/video/on", s.action("video-on", s.pilot.Machine.VideoOn))
	api.Post("/video/off", s.action("video-off", s.pilot.Machine.VideoOff))
	api.Post("/disconnect", s.handleDisconnect)

	// WebSocket upgrade middleware
	a.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	a.Get("/ws/status", websocket.New(s.statusHub.Serve))
	a.Get("/ws/video", websocket.New(s.videoHub.Serve))
	a.Get("/ws/sticks", websocket.New(s.stickHub.Serve))
	s.input.RegisterRoutes(a, "/ws/input")

	page, err := fs.Sub(static, "static")
	if err != nil {
		panic(err) // embedded at build time
	}
	a.Use("/", filesystem.New(filesystem.Config{
		Root:  http.FS(page),
		Index: "index.html",
	}))
	return a
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App { return s.app }

// Pilot returns the pilot behind the console.
func (s *Server) Pilot() *app.Pilot { return s.pilot }

// Run serves the console on the configured address and runs the pilot until
// ctx is done or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		return ErrRunning
	}
	s.running = true
	s.runMu.Unlock()

	go s.statusHub.Run()
	go s.videoHub.Run()
	go s.stickHub.Run()
	defer func() {
		s.statusHub.Stop()
		s.videoHub.Stop()
		s.stickHub.Stop()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := s.pilot.Run(ctx); err != nil {
			s.logger.Error("pilot stopped", "error", err)
		}
	}()
	go func() {
		defer wg.Done()
		s.forwardVideo(ctx)
	}()
	go func() {
		defer wg.Done()
		s.refreshStatus(ctx)
	}()

	errc := make(chan error, 1)
	go func() { errc <- s.app.Listen(s.cfg.ConsoleAddr) }()
	s.logger.Info("console listening", "addr", s.cfg.ConsoleAddr, "controller", s.pilot.Client.BaseURL())

	var err error
	select {
	case <-ctx.Done():
	case err = <-errc:
		s.logger.Error("console listener failed", "error", err)
	}

	cancel()
	if shutdownErr := s.app.Shutdown(); shutdownErr != nil {
		s.logger.Warn("console shutdown", "error", shutdownErr)
	}
	wg.Wait()
	return err
}

// engineOptions measures each engine from the page layout and mirrors its
// drawing to the stick feed.
func (s *Server) engineOptions(axes joystick.Axes) []joystick.Option {
	rec := s.sticks[axes.Name]
	return []joystick.Option{
		joystick.WithMeasurer(s.layout.Measurer(axes.Name)),
		joystick.WithRenderer(joystick.RendererFunc(func(f joystick.Frame) {
			rec.Render(f)
			msg, err := protocol.NewMessage(protocol.TypeJoystick, f)
			if err != nil {
				return
			}
			if err := s.stickHub.BroadcastJSON(msg); err != nil {
				s.logger.Debug("stick frame dropped", "error", err)
			}
		})),
	}
}

// status assembles the console status.
func (s *Server) status() Status {
	return Status{
		Status: s.pilot.Status(),
		Input:  s.input.Stats(),
		Clients: map[string]int{
			"status": s.statusHub.ClientCount(),
			"video":  s.videoHub.ClientCount(),
			"sticks": s.stickHub.ClientCount(),
		},
	}
}

// publishStatus retains the current status for status clients.
func (s *Server) publishStatus() {
	msg, err := protocol.NewMessage(protocol.TypeStatus, s.status())
	if err != nil {
		s.logger.Warn("encode status", "error", err)
		return
	}
	if err := s.statusHub.Retain(msg); err != nil {
		s.logger.Warn("publish status", "error", err)
	}
}

func (s *Server) refreshStatus(ctx context.Context) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	s.publishStatus()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.publishStatus()
		}
	}
}

// forwardVideo sends each access unit to video clients as a frame header
// followed by the Annex-B bytes.
func (s *Server) forwardVideo(ctx context.Context) {
	frames, cancel := s.pilot.Frames.Subscribe(videoBuffer)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			msg, err := protocol.NewMessage(protocol.TypeFrame, protocol.FrameData{
				Seq:       f.Seq,
				Keyframe:  f.Keyframe,
				Timestamp: f.Timestamp,
				Size:      len(f.Data),
			})
			if err != nil {
				continue
			}
			if err := s.videoHub.BroadcastFrame(msg, f.Data, f.Keyframe); err != nil {
				s.logger.Debug("video frame dropped", "seq", f.Seq, "error", err)
			}
		}
	}
}
