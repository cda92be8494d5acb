package gamepad

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"

	"github.com/jupiterrider/purego-sdl3/sdl"

	"github.com/teslashibe/go-pilot/internal/log"
)

const pollDelayNS = 10_000_000 // 100Hz

// ErrSDLInit is returned when the SDL joystick subsystem cannot start.
var ErrSDLInit = errors.New("gamepad: SDL init failed")

type pad struct {
	js      *sdl.Joystick
	id      sdl.JoystickID
	name    string
	mapping Mapping
}

// Reader polls the first connected SDL3 joystick and emits its State.
type Reader struct {
	deadzone float64
	logger   *slog.Logger

	pads   map[sdl.JoystickID]*pad
	active *pad
	prev   State
	states chan State
}

// NewReader creates a Reader applying deadzone to every stick axis.
func NewReader(deadzone float64) *Reader {
	return &Reader{
		deadzone: deadzone,
		logger:   log.Component("gamepad"),
		pads:     make(map[sdl.JoystickID]*pad),
		states:   make(chan State, 64),
	}
}

// States delivers every changed State. It is closed when Run returns.
func (r *Reader) States() <-chan State {
	return r.states
}

// Run initializes SDL and polls until ctx is done. SDL wants a single OS
// thread, so Run locks the calling goroutine to it.
func (r *Reader) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(r.states)

	if !sdl.Init(sdl.InitJoystick) {
		return fmt.Errorf("%w: %s", ErrSDLInit, sdl.GetError())
	}
	defer sdl.Quit()
	r.logger.Info("SDL joystick subsystem initialized")

	for _, id := range sdl.GetJoysticks() {
		r.open(id)
	}

	for {
		select {
		case <-ctx.Done():
			r.closeAll()
			return nil
		default:
		}
		r.events()
		r.poll()
		sdl.DelayNS(pollDelayNS)
	}
}

func (r *Reader) events() {
	var event sdl.Event
	for sdl.PollEvent(&event) {
		switch event.Type() {
		case sdl.EventJoystickAdded:
			r.open(event.JDevice().Which)
		case sdl.EventJoystickRemoved:
			r.remove(event.JDevice().Which)
		}
	}
}

func (r *Reader) open(id sdl.JoystickID) {
	if _, ok := r.pads[id]; ok {
		return
	}
	js := sdl.OpenJoystick(id)
	if js == nil {
		r.logger.Warn("open joystick failed", "id", id, "error", sdl.GetError())
		return
	}
	p := &pad{
		js:      js,
		id:      sdl.GetJoystickID(js),
		name:    sdl.GetJoystickName(js),
		mapping: MappingFor(sdl.GetJoystickVendor(js), sdl.GetJoystickProduct(js)),
	}
	r.pads[p.id] = p
	r.logger.Info("joystick connected", "name", p.name, "mapping", p.mapping.Name)
	if r.active == nil {
		r.active = p
	}
}

func (r *Reader) remove(id sdl.JoystickID) {
	p, ok := r.pads[id]
	if !ok {
		return
	}
	sdl.CloseJoystick(p.js)
	delete(r.pads, id)
	r.logger.Info("joystick disconnected", "name", p.name)

	if r.active != p {
		return
	}
	r.active = nil
	for _, next := range r.pads {
		if sdl.JoystickConnected(next.js) {
			r.active = next
			r.logger.Info("active joystick switched", "name", next.name)
			break
		}
	}
	if r.active == nil {
		r.emit(State{})
	}
}

func (r *Reader) closeAll() {
	for id, p := range r.pads {
		sdl.CloseJoystick(p.js)
		delete(r.pads, id)
	}
	r.active = nil
}

func (r *Reader) poll() {
	p := r.active
	if p == nil || !sdl.JoystickConnected(p.js) {
		return
	}
	m := p.mapping
	axis := func(i int32, invert bool) float64 {
		v := NormalizeAxis(sdl.GetJoystickAxis(p.js, i))
		if invert {
			v = -v
		}
		return ApplyDeadzone(v, r.deadzone)
	}
	button := func(i int32) bool {
		return i < sdl.GetNumJoystickButtons(p.js) && sdl.GetJoystickButton(p.js, i)
	}

	r.emit(State{
		Connected: true,
		Name:      p.name,
		Left:      Stick{X: axis(m.LeftX, false), Y: axis(m.LeftY, true)},
		Right:     Stick{X: axis(m.RightX, false), Y: axis(m.RightY, true)},
		Buttons: Buttons{
			A:     button(m.A),
			B:     button(m.B),
			X:     button(m.X),
			Y:     button(m.Y),
			Back:  button(m.Back),
			Start: button(m.Start),
		},
	})
}

// emit sends s when it differs from the last state. A full channel drops the
// state rather than block the SDL thread.
func (r *Reader) emit(s State) {
	if s == r.prev {
		return
	}
	select {
	case r.states <- s:
		r.prev = s
	default:
	}
}
