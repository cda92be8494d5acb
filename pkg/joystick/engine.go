// Package joystick turns pointer input on a circular area into a bounded,
// normalized 2-D control vector.
//
// An Engine owns pointer capture for one area. It is engaged by a pointer
// press, emits a Sample for every move while engaged and emits a release once
// when the pointer is lifted, wherever that happens.
package joystick

import (
	"log/slog"
	"sync"

	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/geometry"
)

// Sample is emitted for every pointer move while the engine is engaged.
type Sample struct {
	Coord  geometry.Point `json:"coord"`
	Vector Vector         `json:"vector"`
}

// Measurer reports the page position of the area's top-left corner.
// The engine calls it on every engage because the area may have moved.
type Measurer interface {
	Offset() geometry.Point
}

// MeasurerFunc adapts a function to Measurer.
type MeasurerFunc func() geometry.Point

// Offset implements Measurer.
func (f MeasurerFunc) Offset() geometry.Point { return f() }

// Option configures an Engine.
type Option func(*Engine)

// WithMeasurer sets the area offset source. Without one the area sits at the
// page origin.
func WithMeasurer(m Measurer) Option {
	return func(e *Engine) { e.measurer = m }
}

// WithRenderer attaches visual feedback.
func WithRenderer(r Renderer) Option {
	return func(e *Engine) { e.renderer = r }
}

// WithLogger overrides the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// Engine tracks one joystick.
//
// Input methods are serialized: a listener never observes a move that
// started before a release it already saw. Listeners run on the caller's
// goroutine and must not call the engine's input methods.
type Engine struct {
	area     Area
	axes     Axes
	measurer Measurer
	renderer Renderer
	logger   *slog.Logger

	mu     sync.Mutex // serializes input handling
	active bool
	offset geometry.Point

	lmu       sync.RWMutex
	onEngage  []func()
	onSample  []func(Sample)
	onRelease []func()
}

// New creates an engine for the given area and axis mapping.
func New(area Area, axes Axes, opts ...Option) *Engine {
	e := &Engine{
		area: area,
		axes: axes,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = log.Component("joystick").With("axes", axes.Name)
	}
	e.render(false, geometry.Point{})
	return e
}

// Area returns the engine's area.
func (e *Engine) Area() Area { return e.area }

// Axes returns the engine's axis mapping.
func (e *Engine) Axes() Axes { return e.axes }

// Active reports whether the pointer is currently engaged.
func (e *Engine) Active() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}

// OnEngage registers a listener for engagement start.
func (e *Engine) OnEngage(fn func()) *Engine {
	e.lmu.Lock()
	e.onEngage = append(e.onEngage, fn)
	e.lmu.Unlock()
	return e
}

// OnSample registers a listener for pointer moves while engaged.
func (e *Engine) OnSample(fn func(Sample)) *Engine {
	e.lmu.Lock()
	e.onSample = append(e.onSample, fn)
	e.lmu.Unlock()
	return e
}

// OnRelease registers a listener for engagement end.
func (e *Engine) OnRelease(fn func()) *Engine {
	e.lmu.Lock()
	e.onRelease = append(e.onRelease, fn)
	e.lmu.Unlock()
	return e
}

// Engage starts an engagement and re-measures the area offset.
func (e *Engine) Engage() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.engageLocked()
}

func (e *Engine) engageLocked() {
	if e.measurer != nil {
		e.offset = e.measurer.Offset()
	}
	e.active = true
	e.logger.Debug("engaged", "offset", e.offset)

	e.lmu.RLock()
	listeners := e.onEngage
	e.lmu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// Move handles a pointer position in page coordinates. It is ignored while
// disengaged.
func (e *Engine) Move(page geometry.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.moveLocked(page)
}

func (e *Engine) moveLocked(page geometry.Point) {
	if !e.active {
		return
	}
	s := e.locate(page)
	e.render(true, s.Coord)

	e.lmu.RLock()
	listeners := e.onSample
	e.lmu.RUnlock()
	for _, fn := range listeners {
		fn(s)
	}
}

// Press is a pointer-down on the area: engage, then treat the press
// position as the first move.
func (e *Engine) Press(page geometry.Point) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.engageLocked()
	e.moveLocked(page)
}

// Release ends the engagement. Release listeners fire exactly once per
// engagement; a release without an engagement does nothing.
func (e *Engine) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.active {
		return
	}
	e.active = false
	e.render(false, geometry.Point{})
	e.logger.Debug("released")

	e.lmu.RLock()
	listeners := e.onRelease
	e.lmu.RUnlock()
	for _, fn := range listeners {
		fn()
	}
}

// locate converts a page position into a clamped, normalized sample using the
// offset measured at engage time.
func (e *Engine) locate(page geometry.Point) Sample {
	coord := e.area.Coord(page.Sub(e.offset))
	return Sample{
		Coord:  coord,
		Vector: e.area.Normalize(coord),
	}
}

func (e *Engine) render(active bool, coord geometry.Point) {
	if e.renderer == nil {
		return
	}
	e.renderer.Render(NewFrame(e.area, e.axes, active, coord))
}
