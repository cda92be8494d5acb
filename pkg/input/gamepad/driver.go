// Package gamepad flies the drone from a game controller: the left stick is
// the xy joystick, the right stick the zr joystick, and face buttons drive
// the connection state machine.
package gamepad

import (
	"log/slog"

	"github.com/teslashibe/go-pilot/internal/log"
	"github.com/teslashibe/go-pilot/pkg/geometry"
	"github.com/teslashibe/go-pilot/pkg/joystick"
	"github.com/teslashibe/go-pilot/pkg/session"
)

// Actions is the state machine surface the buttons reach.
type Actions interface {
	State() session.State
	Connect() bool
	Takeoff() bool
	Land() bool
	VideoOn() bool
	VideoOff() bool
	DisconnectWith(c session.Confirmer) bool
}

// Driver turns gamepad states into joystick input and session actions.
// Buttons fire on press; Back+Start together disconnect, the chord itself
// being the operator's confirmation. Driver is not safe for concurrent use;
// feed it from one goroutine.
type Driver struct {
	left, right *joystick.Engine
	actions     Actions
	logger      *slog.Logger
	prev        State
}

// NewDriver creates a Driver for the xy (left) and zr (right) engines.
func NewDriver(left, right *joystick.Engine, actions Actions) *Driver {
	return &Driver{
		left:    left,
		right:   right,
		actions: actions,
		logger:  log.Component("gamepad"),
	}
}

// Apply processes one state.
func (d *Driver) Apply(s State) {
	if !s.Connected {
		// Pad unplugged mid-flight: let go of both sticks.
		s.Left, s.Right = Stick{}, Stick{}
		s.Buttons = Buttons{}
	}
	d.stick(d.left, d.prev.Left, s.Left)
	d.stick(d.right, d.prev.Right, s.Right)
	d.buttons(d.prev.Buttons, s.Buttons)
	d.prev = s
}

// Release lets go of both sticks.
func (d *Driver) Release() {
	d.left.Release()
	d.right.Release()
	d.prev.Left, d.prev.Right = Stick{}, Stick{}
}

func (d *Driver) stick(e *joystick.Engine, prev, cur Stick) {
	switch {
	case cur.IsCentered():
		e.Release()
	case prev.IsCentered() || !e.Active():
		e.Press(stickPage(e.Area(), cur))
	case cur != prev:
		e.Move(stickPage(e.Area(), cur))
	}
}

// stickPage places a deflection on the engine's area as a pointer position.
// Engines driven by a pad have no page offset.
func stickPage(a joystick.Area, s Stick) geometry.Point {
	c := a.Center()
	return geometry.Point{
		X: c.X + s.X*a.Radius,
		Y: c.Y - s.Y*a.Radius,
	}
}

func (d *Driver) buttons(prev, cur Buttons) {
	pressed := func(was, is bool) bool { return is && !was }

	if cur.Back && cur.Start && !(prev.Back && prev.Start) {
		d.logger.Info("disconnect chord")
		d.actions.DisconnectWith(session.AlwaysConfirm)
		return
	}
	if pressed(prev.A, cur.A) {
		d.actions.Connect()
	}
	if pressed(prev.Y, cur.Y) {
		d.actions.Takeoff()
	}
	if pressed(prev.X, cur.X) {
		d.actions.Land()
	}
	if pressed(prev.B, cur.B) {
		if d.actions.State() == session.VideoOn {
			d.actions.VideoOff()
		} else {
			d.actions.VideoOn()
		}
	}
}
