package joystick

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/teslashibe/go-pilot/pkg/geometry"
)

const floatTolerance = 1e-9

func floatEquals(a, b float64) bool {
	return math.Abs(a-b) < floatTolerance
}

// eventLog records engine events in order.
type eventLog struct {
	mu      sync.Mutex
	events  []string
	samples []Sample
}

func (l *eventLog) add(ev string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) sample(s Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "sample")
	l.samples = append(l.samples, s)
}

func (l *eventLog) snapshot() ([]string, []Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...), append([]Sample(nil), l.samples...)
}

func newTestEngine(t *testing.T, axes Axes, opts ...Option) (*Engine, *eventLog) {
	t.Helper()
	area, err := NewArea(100, 40)
	if err != nil {
		t.Fatalf("NewArea: %v", err)
	}
	e := New(area, axes, opts...)
	l := &eventLog{}
	e.OnEngage(func() { l.add("engage") }).
		OnSample(l.sample).
		OnRelease(func() { l.add("release") })
	return e, l
}

// page converts a center-relative coordinate (Y up) to page pixels for an
// area of radius 100 at the page origin.
func page(x, y float64) geometry.Point {
	return geometry.Point{X: 100 + x, Y: 100 - y}
}

func TestNewArea(t *testing.T) {
	a, err := NewArea(0, 0)
	if err != nil {
		t.Fatalf("NewArea defaults: %v", err)
	}
	if a.Radius != DefaultRadius || a.PointerRadius != DefaultRadius*DefaultPointerRatio {
		t.Errorf("defaults = %+v", a)
	}

	for _, tc := range []struct{ r, p float64 }{{-1, 0}, {100, 100}, {100, 150}, {100, -1}} {
		if _, err := NewArea(tc.r, tc.p); !errors.Is(err, ErrInvalidArea) {
			t.Errorf("NewArea(%v, %v) err = %v, want ErrInvalidArea", tc.r, tc.p, err)
		}
	}
}

func TestEngine_ClampScenarioRight(t *testing.T) {
	e, l := newTestEngine(t, XY)

	e.Press(page(150, 0))

	_, samples := l.snapshot()
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	s := samples[0]
	if !floatEquals(s.Coord.X, 100) || !floatEquals(s.Coord.Y, 0) {
		t.Errorf("coord = %+v, want (100, 0)", s.Coord)
	}
	if !floatEquals(s.Vector.X, 1) || !floatEquals(s.Vector.Y, 0) {
		t.Errorf("vector = %+v, want (1, 0)", s.Vector)
	}
}

func TestEngine_ClampScenarioVertical(t *testing.T) {
	e, l := newTestEngine(t, XY)

	e.Press(page(0, -250))

	_, samples := l.snapshot()
	if len(samples) != 1 {
		t.Fatalf("got %d samples, want 1", len(samples))
	}
	s := samples[0]
	if s.Coord.X != 0 || !floatEquals(s.Coord.Y, -100) {
		t.Errorf("coord = %+v, want (0, -100)", s.Coord)
	}
	if s.Vector.X != 0 || !floatEquals(s.Vector.Y, -1) {
		t.Errorf("vector = %+v, want (0, -1)", s.Vector)
	}
}

func TestEngine_NormalizedRange(t *testing.T) {
	e, l := newTestEngine(t, XY)
	e.Engage()
	for x := -400.0; x <= 400; x += 37 {
		for y := -400.0; y <= 400; y += 41 {
			e.Move(page(x, y))
		}
	}
	_, samples := l.snapshot()
	if len(samples) == 0 {
		t.Fatal("no samples")
	}
	for _, s := range samples {
		if s.Vector.X < -1 || s.Vector.X > 1 || s.Vector.Y < -1 || s.Vector.Y > 1 {
			t.Fatalf("vector out of range: %+v", s.Vector)
		}
		if s.Coord.Len() > 100+floatTolerance {
			t.Fatalf("coord outside area: %+v", s.Coord)
		}
	}
}

func TestEngine_NoSampleWhileDisengaged(t *testing.T) {
	e, l := newTestEngine(t, XY)

	e.Move(page(10, 10))
	e.Press(page(0, 0))
	e.Release()
	e.Move(page(20, 20))

	events, samples := l.snapshot()
	if len(samples) != 1 {
		t.Errorf("got %d samples, want 1 (only the press)", len(samples))
	}
	want := []string{"engage", "sample", "release"}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("event[%d] = %s, want %s", i, events[i], want[i])
		}
	}
}

func TestEngine_ReleaseIdempotent(t *testing.T) {
	e, l := newTestEngine(t, XY)

	e.Release() // no engagement yet
	e.Press(page(5, 5))
	e.Release()
	e.Release()

	events, _ := l.snapshot()
	releases := 0
	for _, ev := range events {
		if ev == "release" {
			releases++
		}
	}
	if releases != 1 {
		t.Errorf("got %d releases, want 1", releases)
	}
	if e.Active() {
		t.Error("engine still active after release")
	}
}

func TestEngine_RemeasuresOnEveryEngage(t *testing.T) {
	offset := geometry.Point{X: 0, Y: 0}
	var calls int
	m := MeasurerFunc(func() geometry.Point {
		calls++
		return offset
	})
	e, l := newTestEngine(t, XY, WithMeasurer(m))

	e.Press(geometry.Point{X: 150, Y: 100}) // 50 right of center
	e.Release()

	// the area moved 200px right and 30px down
	offset = geometry.Point{X: 200, Y: 30}
	e.Press(geometry.Point{X: 350, Y: 130})
	e.Release()

	if calls != 2 {
		t.Errorf("measurer called %d times, want 2", calls)
	}
	_, samples := l.snapshot()
	if len(samples) != 2 {
		t.Fatalf("got %d samples", len(samples))
	}
	for i, s := range samples {
		if !floatEquals(s.Vector.X, 0.5) || !floatEquals(s.Vector.Y, 0) {
			t.Errorf("sample %d vector = %+v, want (0.5, 0)", i, s.Vector)
		}
	}
}

func TestEngine_ListenerOrder(t *testing.T) {
	area, _ := NewArea(100, 0)
	e := New(area, ZR)

	var order []int
	for i := 0; i < 4; i++ {
		i := i
		e.OnRelease(func() { order = append(order, i) })
	}
	e.Engage()
	e.Release()

	for i, v := range order {
		if v != i {
			t.Fatalf("listener order = %v", order)
		}
	}
	if len(order) != 4 {
		t.Errorf("got %d calls, want 4", len(order))
	}
}

func TestEngine_ZRPayload(t *testing.T) {
	e, l := newTestEngine(t, ZR)
	e.Press(page(-30, 60))

	_, samples := l.snapshot()
	payload := ZR.Payload(samples[0].Vector)
	if !floatEquals(payload["r"], -0.3) || !floatEquals(payload["z"], 0.6) {
		t.Errorf("payload = %v, want r=-0.3 z=0.6", payload)
	}
	if len(payload) != 2 {
		t.Errorf("payload has %d keys", len(payload))
	}
}

func TestEngine_Renders(t *testing.T) {
	rec := &Recorder{}
	e, _ := newTestEngine(t, XY, WithRenderer(rec))

	f, n := rec.Last()
	if n != 1 || f.Active {
		t.Fatalf("initial frame = %+v (count %d)", f, n)
	}
	if f.Pointer != (geometry.Point{X: 100, Y: 100}) {
		t.Errorf("idle pointer = %+v, want center", f.Pointer)
	}

	e.Press(page(500, 0))
	f, _ = rec.Last()
	if !f.Active {
		t.Error("frame not active while engaged")
	}
	// pointer disc is pulled in to radius - pointerRadius = 60
	if !floatEquals(f.Pointer.X, 160) || !floatEquals(f.Pointer.Y, 100) {
		t.Errorf("pointer = %+v, want (160, 100)", f.Pointer)
	}
	if len(f.Icons) != 4 {
		t.Errorf("XY icons = %d, want 4", len(f.Icons))
	}

	e.Release()
	f, _ = rec.Last()
	if f.Active || f.Pointer != (geometry.Point{X: 100, Y: 100}) {
		t.Errorf("released frame = %+v", f)
	}
}

func TestIcons_ZR(t *testing.T) {
	area, _ := NewArea(100, 0)
	icons := Icons(area, ZR)
	var dirs, rots int
	for _, ic := range icons {
		switch ic.Kind {
		case IconDirection:
			dirs++
			if len(ic.Points) != 3 {
				t.Errorf("chevron has %d points", len(ic.Points))
			}
		case IconRotation:
			rots++
		}
	}
	if dirs != 4 || rots != 2 {
		t.Errorf("ZR icons: %d direction, %d rotation", dirs, rots)
	}
}

func TestLookup(t *testing.T) {
	if a, ok := Lookup("xy"); !ok || a != XY {
		t.Errorf("Lookup(xy) = %+v, %v", a, ok)
	}
	if a, ok := Lookup("zr"); !ok || a != ZR {
		t.Errorf("Lookup(zr) = %+v, %v", a, ok)
	}
	if _, ok := Lookup("xz"); ok {
		t.Error("Lookup(xz) should fail")
	}
}
