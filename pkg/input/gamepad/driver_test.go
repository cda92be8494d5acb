package gamepad

import (
	"math"
	"reflect"
	"sync"
	"testing"

	"github.com/teslashibe/go-pilot/pkg/joystick"
	"github.com/teslashibe/go-pilot/pkg/session"
)

type mockActions struct {
	mu        sync.Mutex
	state     session.State
	calls     []string
	confirmer session.Confirmer
}

func (m *mockActions) record(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, name)
	return true
}

func (m *mockActions) State() session.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *mockActions) Connect() bool  { return m.record("connect") }
func (m *mockActions) Takeoff() bool  { return m.record("takeoff") }
func (m *mockActions) Land() bool     { return m.record("land") }
func (m *mockActions) VideoOn() bool  { return m.record("videoOn") }
func (m *mockActions) VideoOff() bool { return m.record("videoOff") }

func (m *mockActions) DisconnectWith(c session.Confirmer) bool {
	m.mu.Lock()
	m.confirmer = c
	m.mu.Unlock()
	return m.record("disconnect")
}

func (m *mockActions) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type stickLog struct {
	mu       sync.Mutex
	vectors  []joystick.Vector
	releases int
}

func (l *stickLog) Vectors() []joystick.Vector {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]joystick.Vector(nil), l.vectors...)
}

func (l *stickLog) Releases() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.releases
}

func newEngine(t *testing.T, axes joystick.Axes) (*joystick.Engine, *stickLog) {
	t.Helper()
	area, err := joystick.NewArea(100, 40)
	if err != nil {
		t.Fatalf("NewArea: %v", err)
	}
	l := &stickLog{}
	e := joystick.New(area, axes).
		OnSample(func(s joystick.Sample) {
			l.mu.Lock()
			l.vectors = append(l.vectors, s.Vector)
			l.mu.Unlock()
		}).
		OnRelease(func() {
			l.mu.Lock()
			l.releases++
			l.mu.Unlock()
		})
	return e, l
}

func newTestDriver(t *testing.T) (*Driver, *mockActions, *stickLog, *stickLog) {
	t.Helper()
	left, ll := newEngine(t, joystick.XY)
	right, rl := newEngine(t, joystick.ZR)
	actions := &mockActions{state: session.Connected}
	return NewDriver(left, right, actions), actions, ll, rl
}

func near(a, b joystick.Vector) bool {
	return math.Abs(a.X-b.X) < 1e-9 && math.Abs(a.Y-b.Y) < 1e-9
}

func TestDriverSticks(t *testing.T) {
	d, _, left, right := newTestDriver(t)

	d.Apply(State{Connected: true, Left: Stick{X: 0.5, Y: 0.25}})
	d.Apply(State{Connected: true, Left: Stick{X: -0.6, Y: -0.5}, Right: Stick{Y: 1}})
	d.Apply(State{Connected: true, Right: Stick{Y: 1}})

	got := left.Vectors()
	want := []joystick.Vector{{X: 0.5, Y: 0.25}, {X: -0.6, Y: -0.5}}
	if len(got) != len(want) {
		t.Fatalf("left vectors = %v, want %v", got, want)
	}
	for i := range want {
		if !near(got[i], want[i]) {
			t.Errorf("left vector %d = %v, want %v", i, got[i], want[i])
		}
	}
	if left.Releases() != 1 {
		t.Errorf("left releases = %d, want 1", left.Releases())
	}

	// Holding the right stick still sends nothing new.
	if rv := right.Vectors(); len(rv) != 1 || !near(rv[0], joystick.Vector{Y: 1}) {
		t.Errorf("right vectors = %v, want [{0 1}]", rv)
	}
	if right.Releases() != 0 {
		t.Errorf("right releases = %d, want 0", right.Releases())
	}
}

func TestDriverUnplugReleases(t *testing.T) {
	d, _, left, right := newTestDriver(t)

	d.Apply(State{Connected: true, Left: Stick{X: 1}, Right: Stick{X: -1}})
	d.Apply(State{Connected: false})

	if left.Releases() != 1 || right.Releases() != 1 {
		t.Errorf("releases = %d/%d, want 1/1", left.Releases(), right.Releases())
	}
}

func TestDriverRelease(t *testing.T) {
	d, _, left, _ := newTestDriver(t)

	d.Apply(State{Connected: true, Left: Stick{Y: 1}})
	d.Release()
	if left.Releases() != 1 {
		t.Fatalf("releases = %d, want 1", left.Releases())
	}

	// The same deflection after a release engages again.
	d.Apply(State{Connected: true, Left: Stick{Y: 1}})
	if n := len(left.Vectors()); n != 2 {
		t.Errorf("vectors after re-engage = %d, want 2", n)
	}
}

func TestDriverButtonsFireOnPress(t *testing.T) {
	d, actions, _, _ := newTestDriver(t)

	d.Apply(State{Connected: true, Buttons: Buttons{A: true}})
	d.Apply(State{Connected: true, Buttons: Buttons{A: true}})
	d.Apply(State{Connected: true})
	d.Apply(State{Connected: true, Buttons: Buttons{Y: true}})
	d.Apply(State{Connected: true, Buttons: Buttons{X: true}})
	d.Apply(State{Connected: true, Buttons: Buttons{B: true}})

	want := []string{"connect", "takeoff", "land", "videoOn"}
	if got := actions.Calls(); !reflect.DeepEqual(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
}

func TestDriverVideoToggle(t *testing.T) {
	d, actions, _, _ := newTestDriver(t)
	actions.state = session.VideoOn

	d.Apply(State{Connected: true, Buttons: Buttons{B: true}})

	if got := actions.Calls(); !reflect.DeepEqual(got, []string{"videoOff"}) {
		t.Errorf("calls = %v, want [videoOff]", got)
	}
}

func TestDriverDisconnectChord(t *testing.T) {
	d, actions, _, _ := newTestDriver(t)

	d.Apply(State{Connected: true, Buttons: Buttons{Back: true}})
	d.Apply(State{Connected: true, Buttons: Buttons{Back: true, Start: true}})
	d.Apply(State{Connected: true, Buttons: Buttons{Back: true, Start: true}})

	if got := actions.Calls(); !reflect.DeepEqual(got, []string{"disconnect"}) {
		t.Fatalf("calls = %v, want [disconnect]", got)
	}
	if actions.confirmer == nil || !actions.confirmer.Confirm(session.DisconnectPrompt) {
		t.Error("chord should disconnect with a confirming confirmer")
	}
}
