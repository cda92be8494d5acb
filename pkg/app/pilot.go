// Package app wires the pilot together: two joysticks with their dispatch
// loops, the connection state machine and the video negotiator, all talking
// to one controller.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/teslashibe/go-pilot/internal/config"
	"github.com/teslashibe/go-pilot/internal/httpc"
	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/command"
	"github.com/teslashibe/go-pilot/pkg/controller"
	"github.com/teslashibe/go-pilot/pkg/joystick"
	"github.com/teslashibe/go-pilot/pkg/session"
	"github.com/teslashibe/go-pilot/pkg/video"
)

var (
	_ command.Sender     = (*controller.Client)(nil)
	_ session.Controller = (*controller.Client)(nil)
	_ session.Video      = (*video.Negotiator)(nil)
	_ video.Offerer      = (*controller.Client)(nil)
)

// Status is a snapshot of the whole pilot.
type Status struct {
	State    session.State            `json:"state"`
	Video    video.Status             `json:"video"`
	Dispatch map[string]command.Stats `json:"dispatch"`
	Sticks   map[string]bool          `json:"sticks_active"`
}

// Option configures a Pilot.
type Option func(*options)

type options struct {
	httpClient *http.Client
	api        *webrtc.API
	confirmer  session.Confirmer
	engineOpts func(joystick.Axes) []joystick.Option
	sinks      []video.Sink
	logger     *slog.Logger
}

// WithHTTPClient overrides the controller HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// WithWebRTCAPI builds peer connections from api.
func WithWebRTCAPI(api *webrtc.API) Option {
	return func(o *options) { o.api = api }
}

// WithConfirmer sets the disconnect confirmation used by Disconnect.
func WithConfirmer(c session.Confirmer) Option {
	return func(o *options) { o.confirmer = c }
}

// WithEngineOptions adds per-joystick engine options, e.g. a measurer or
// renderer owned by the input surface.
func WithEngineOptions(fn func(joystick.Axes) []joystick.Option) Option {
	return func(o *options) { o.engineOpts = fn }
}

// WithSinks adds video sinks next to the built-in ones.
func WithSinks(sinks ...video.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sinks...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Pilot owns every component of one pilot session.
type Pilot struct {
	cfg    config.Pilot
	logger *slog.Logger

	Client     *controller.Client
	Machine    *session.Machine
	Negotiator *video.Negotiator
	Display    *video.Display
	Frames     *video.FrameSink
	Recorder   *video.Recorder
	Snapshots  *video.Snapshotter

	engines     map[string]*joystick.Engine
	dispatchers map[string]*command.Dispatcher

	runOnce  sync.Once
	stopOnce sync.Once
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

// New builds a Pilot from cfg. Nothing runs until Run.
func New(cfg config.Pilot, opts ...Option) (*Pilot, error) {
	o := options{logger: log.Component("pilot")}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = httpc.NewClient(cfg.RequestTimeout)
	}
	if o.confirmer == nil {
		o.confirmer = session.AlwaysConfirm
	}

	client, err := controller.New(cfg.ControllerURL, controller.WithHTTPClient(o.httpClient))
	if err != nil {
		return nil, err
	}
	area, err := joystick.NewArea(cfg.JoystickRadius, cfg.PointerRadius)
	if err != nil {
		return nil, err
	}

	p := &Pilot{
		cfg:         cfg,
		logger:      o.logger,
		Client:      client,
		Display:     &video.Display{},
		Frames:      video.NewFrameSink(),
		engines:     make(map[string]*joystick.Engine),
		dispatchers: make(map[string]*command.Dispatcher),
	}
	p.Snapshots = video.NewSnapshotter(p.Frames)

	sinks := video.MultiSink{p.Display, p.Frames}
	if cfg.RecordPath != "" {
		p.Recorder = video.NewRecorder(cfg.RecordPath)
		sinks = append(sinks, p.Recorder)
	}
	sinks = append(sinks, o.sinks...)

	nopts := []video.Option{
		video.WithICEServers(cfg.ICEServers...),
		video.WithKeyframeInterval(cfg.KeyframeInterval),
	}
	if o.api != nil {
		nopts = append(nopts, video.WithAPI(o.api))
	}
	p.Negotiator = video.New(client, sinks, nopts...)
	p.Machine = session.New(client, p.Negotiator, session.WithConfirmer(o.confirmer))

	for _, axes := range []joystick.Axes{joystick.XY, joystick.ZR} {
		var eopts []joystick.Option
		if o.engineOpts != nil {
			eopts = o.engineOpts(axes)
		}
		e := joystick.New(area, axes, eopts...)
		d := command.New(axes, client, command.WithPeriod(cfg.DispatchPeriod))
		d.Bind(e)
		p.engines[axes.Name] = e
		p.dispatchers[axes.Name] = d
	}
	return p, nil
}

// Config returns the configuration the pilot was built with.
func (p *Pilot) Config() config.Pilot { return p.cfg }

// Engine returns the joystick for an axes name ("xy" or "zr").
func (p *Pilot) Engine(name string) (*joystick.Engine, bool) {
	e, ok := p.engines[name]
	return e, ok
}

// Dispatcher returns the dispatch loop for an axes name.
func (p *Pilot) Dispatcher(name string) (*command.Dispatcher, bool) {
	d, ok := p.dispatchers[name]
	return d, ok
}

// Run starts both dispatch loops and blocks until ctx is done, then stops.
func (p *Pilot) Run(ctx context.Context) error {
	started := false
	p.runOnce.Do(func() {
		started = true
		ctx, p.cancel = context.WithCancel(ctx)
		for name, d := range p.dispatchers {
			p.wg.Add(1)
			go func(name string, d *command.Dispatcher) {
				defer p.wg.Done()
				d.Run(ctx)
				p.logger.Debug("dispatch loop stopped", "axes", name)
			}(name, d)
		}
		p.logger.Info("pilot running", "controller", p.Client.BaseURL(), "period", p.cfg.DispatchPeriod)
	})
	if !started {
		return fmt.Errorf("pilot: already running")
	}
	<-ctx.Done()
	p.Stop()
	return nil
}

// Stop releases both sticks, stops the dispatch loops, waits for the neutral
// commands to go out, tears down video and waits for in-flight controller
// calls.
func (p *Pilot) Stop() {
	p.stopOnce.Do(func() {
		for _, e := range p.engines {
			e.Release()
		}
		for _, d := range p.dispatchers {
			d.Stop()
		}
		if p.cancel != nil {
			p.cancel()
		}
		p.wg.Wait()
		for _, d := range p.dispatchers {
			d.Wait()
		}
		p.Negotiator.Teardown()
		p.Machine.Wait()
		p.logger.Info("pilot stopped")
	})
}

// Status reports the state machine, video session and dispatch counters.
func (p *Pilot) Status() Status {
	st := Status{
		State:    p.Machine.State(),
		Video:    p.Negotiator.Status(),
		Dispatch: make(map[string]command.Stats, len(p.dispatchers)),
		Sticks:   make(map[string]bool, len(p.engines)),
	}
	for name, d := range p.dispatchers {
		st.Dispatch[name] = d.Stats()
	}
	for name, e := range p.engines {
		st.Sticks[name] = e.Active()
	}
	return st
}
