// Package session tracks the pilot's connection lifecycle and gates which
// actions are legal in each state.
//
// Transitions apply immediately. The controller calls they trigger run in the
// background, in the order they were issued; failures are logged and never
// roll a transition back.
package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"

	"github.com/teslashibe/go-pilot/internal/log"
)

// State is the connection lifecycle state.
type State int

// States. Disconnected is terminal.
const (
	Idle State = iota
	Connected
	VideoOn
	Disconnected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connected:
		return "connected"
	case VideoOn:
		return "video-on"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Controller is the subset of the controller client the machine drives.
type Controller interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	Takeoff(ctx context.Context) error
	Land(ctx context.Context) error
	VideoOff(ctx context.Context) error
}

// Video starts and tears down the video session.
type Video interface {
	Start(ctx context.Context) error
	Teardown()
}

// Confirmer asks the operator to approve a destructive action.
type Confirmer interface {
	Confirm(prompt string) bool
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(prompt string) bool { return f(prompt) }

// AlwaysConfirm approves every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(string) bool { return true })

// DisconnectPrompt is shown before disconnecting.
const DisconnectPrompt = "Disconnect? The drone will land and the controller will shut down."

// Option configures a Machine.
type Option func(*Machine)

// WithConfirmer sets the disconnect confirmation. The default approves.
func WithConfirmer(c Confirmer) Option {
	return func(m *Machine) { m.confirm = c }
}

// WithContext sets the parent context of background controller calls.
func WithContext(ctx context.Context) Option {
	return func(m *Machine) { m.ctx = ctx }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// Machine is the connection state machine. It is safe for concurrent use.
type Machine struct {
	ctrl    Controller
	video   Video
	confirm Confirmer
	ctx     context.Context
	logger  *slog.Logger

	mu          sync.Mutex
	state       State
	videoCancel context.CancelFunc

	lmu       sync.Mutex
	listeners []func(from, to State)

	wg   sync.WaitGroup
	qmu  sync.Mutex
	tail chan struct{}
}

// New creates a Machine in Idle.
func New(ctrl Controller, video Video, opts ...Option) *Machine {
	m := &Machine{
		ctrl:    ctrl,
		video:   video,
		confirm: AlwaysConfirm,
		ctx:     context.Background(),
		logger:  log.Component("session"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// OnChange registers fn to run after every transition, in registration order.
func (m *Machine) OnChange(fn func(from, to State)) *Machine {
	m.lmu.Lock()
	m.listeners = append(m.listeners, fn)
	m.lmu.Unlock()
	return m
}

// Wait blocks until every background controller call has settled.
func (m *Machine) Wait() {
	m.wg.Wait()
}

// Connect moves Idle to Connected and notifies the controller.
func (m *Machine) Connect() bool {
	if !m.transition("connect", Connected, Idle) {
		return false
	}
	m.spawn("connect", m.ctrl.Connect)
	return true
}

// Takeoff asks the drone to take off. Legal while connected.
func (m *Machine) Takeoff() bool {
	if !m.in("takeoff", Connected, VideoOn) {
		return false
	}
	m.spawn("takeoff", m.ctrl.Takeoff)
	return true
}

// Land asks the drone to land. Legal while connected.
func (m *Machine) Land() bool {
	if !m.in("land", Connected, VideoOn) {
		return false
	}
	m.spawn("land", m.ctrl.Land)
	return true
}

// VideoOn moves Connected to VideoOn and starts negotiation.
func (m *Machine) VideoOn() bool {
	m.mu.Lock()
	if m.state != Connected {
		s := m.state
		m.mu.Unlock()
		m.logger.Debug("action ignored", "action", "video-on", "state", s.String())
		return false
	}
	m.state = VideoOn
	vctx, cancel := context.WithCancel(m.ctx)
	m.videoCancel = cancel
	m.mu.Unlock()

	m.changed(Connected, VideoOn)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.video.Start(vctx); err != nil {
			m.logger.Warn("video negotiation failed", "error", err)
		}
	}()
	return true
}

// VideoOff moves VideoOn to Connected, tears the video session down and
// notifies the controller.
func (m *Machine) VideoOff() bool {
	m.mu.Lock()
	if m.state != VideoOn {
		s := m.state
		m.mu.Unlock()
		m.logger.Debug("action ignored", "action", "video-off", "state", s.String())
		return false
	}
	m.state = Connected
	cancel := m.takeVideoCancel()
	m.mu.Unlock()

	m.stopVideo(cancel)
	m.changed(VideoOn, Connected)
	m.spawn("video-off", m.ctrl.VideoOff)
	return true
}

// Disconnect moves Connected or VideoOn to Disconnected after the operator
// confirms. The video session, if any, is torn down.
func (m *Machine) Disconnect() bool {
	return m.DisconnectWith(m.confirm)
}

// DisconnectWith is Disconnect with a one-off confirmation, for input
// surfaces that collect it themselves.
func (m *Machine) DisconnectWith(c Confirmer) bool {
	if !m.in("disconnect", Connected, VideoOn) {
		return false
	}
	if !c.Confirm(DisconnectPrompt) {
		m.logger.Debug("disconnect declined")
		return false
	}

	m.mu.Lock()
	from := m.state
	if from != Connected && from != VideoOn {
		m.mu.Unlock()
		return false
	}
	m.state = Disconnected
	cancel := m.takeVideoCancel()
	m.mu.Unlock()

	if from == VideoOn {
		m.stopVideo(cancel)
	}
	m.changed(from, Disconnected)
	m.spawn("disconnect", m.ctrl.Disconnect)
	return true
}

// in reports whether the state is one of allowed.
func (m *Machine) in(action string, allowed ...State) bool {
	m.mu.Lock()
	s := m.state
	m.mu.Unlock()
	for _, a := range allowed {
		if s == a {
			return true
		}
	}
	m.logger.Debug("action ignored", "action", action, "state", s.String())
	return false
}

// transition moves from to target when the state is from.
func (m *Machine) transition(action string, to, from State) bool {
	m.mu.Lock()
	if m.state != from {
		s := m.state
		m.mu.Unlock()
		m.logger.Debug("action ignored", "action", action, "state", s.String())
		return false
	}
	m.state = to
	m.mu.Unlock()

	m.changed(from, to)
	return true
}

// takeVideoCancel clears the negotiation cancel func. m.mu must be held.
func (m *Machine) takeVideoCancel() context.CancelFunc {
	cancel := m.videoCancel
	m.videoCancel = nil
	return cancel
}

// stopVideo aborts a negotiation still in flight before tearing the session
// down, so a Start that has not registered yet never will.
func (m *Machine) stopVideo(cancel context.CancelFunc) {
	if cancel != nil {
		cancel()
	}
	m.video.Teardown()
}

func (m *Machine) changed(from, to State) {
	m.logger.Info("state changed", "from", from.String(), "to", to.String())

	m.lmu.Lock()
	listeners := slices.Clone(m.listeners)
	m.lmu.Unlock()
	for _, fn := range listeners {
		fn(from, to)
	}
}

// spawn runs a controller call in the background once every previously
// spawned call has settled.
func (m *Machine) spawn(action string, call func(context.Context) error) {
	m.qmu.Lock()
	prev := m.tail
	done := make(chan struct{})
	m.tail = done
	m.qmu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(done)
		if prev != nil {
			<-prev
		}
		if err := call(m.ctx); err != nil {
			m.logger.Warn("controller call failed", "action", action, "error", err)
		}
	}()
}
