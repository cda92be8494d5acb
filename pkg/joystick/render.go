package joystick

import (
	"math"
	"sync"

	"github.com/teslashibe/go-pilot/pkg/geometry"
)

// Renderer draws a joystick. Rendering is visual feedback only; the engine's
// contract is the emitted sample stream.
type Renderer interface {
	Render(f Frame)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Frame)

// Render implements Renderer.
func (f RendererFunc) Render(fr Frame) { f(fr) }

// IconKind identifies an axis decoration.
type IconKind string

const (
	IconDirection IconKind = "direction"
	IconRotation  IconKind = "rotation"
)

// Icon is one axis decoration in canvas pixels (Y down).
type Icon struct {
	Kind      IconKind         `json:"kind"`
	Points    []geometry.Point `json:"points,omitempty"` // chevron polyline
	At        geometry.Point   `json:"at"`
	Clockwise bool             `json:"clockwise,omitempty"`
}

// Frame is everything needed to draw one joystick state, in canvas pixels.
type Frame struct {
	Axes    string         `json:"axes"`
	Size    float64        `json:"size"`
	Active  bool           `json:"active"`
	Pointer geometry.Point `json:"pointer"`
	Radius  float64        `json:"pointer_radius"`
	Icons   []Icon         `json:"icons"`
}

// NewFrame lays out a joystick frame. The pointer disc follows coord but is
// kept inside the base circle; while inactive it rests at the center.
func NewFrame(area Area, axes Axes, active bool, coord geometry.Point) Frame {
	if !active {
		coord = geometry.Point{}
	}
	off := geometry.PointerOffset(coord, area.Radius, area.PointerRadius)
	c := area.Center()
	return Frame{
		Axes:    axes.Name,
		Size:    area.Size(),
		Active:  active,
		Pointer: geometry.Point{X: c.X + off.X, Y: c.Y - off.Y},
		Radius:  area.PointerRadius,
		Icons:   Icons(area, axes),
	}
}

// chevron returns the three points of a direction arrow tip at (x, y).
func chevron(at geometry.Point, length, theta float64) Icon {
	p1 := geometry.Rotate(geometry.Point{X: -length, Y: -length}, theta)
	p3 := geometry.Rotate(geometry.Point{X: -length, Y: length}, theta)
	return Icon{
		Kind:   IconDirection,
		At:     at,
		Points: []geometry.Point{at.Add(p1), at, at.Add(p3)},
	}
}

// Icons returns the axis decorations for a joystick.
func Icons(area Area, axes Axes) []Icon {
	c := area.Center()
	d := area.Radius * 0.75
	pt := func(dx, dy float64) geometry.Point { return geometry.Point{X: c.X + dx, Y: c.Y + dy} }

	switch axes.Name {
	case ZR.Name:
		return []Icon{
			chevron(pt(0, -d-10), 10, -math.Pi/2),
			chevron(pt(0, -d+10), 10, -math.Pi/2),
			chevron(pt(0, d-10), 10, math.Pi/2),
			chevron(pt(0, d+10), 10, math.Pi/2),
			{Kind: IconRotation, At: pt(d, 0)},
			{Kind: IconRotation, At: pt(-d, 0), Clockwise: true},
		}
	default:
		return []Icon{
			chevron(pt(0, -d), 12, -math.Pi/2),
			chevron(pt(d, 0), 12, 0),
			chevron(pt(0, d), 12, math.Pi/2),
			chevron(pt(-d, 0), 12, math.Pi),
		}
	}
}

// Recorder is a Renderer that keeps the most recent frame, for consoles that
// draw on their own schedule.
type Recorder struct {
	mu    sync.RWMutex
	last  Frame
	count uint64
}

// Render implements Renderer.
func (r *Recorder) Render(f Frame) {
	r.mu.Lock()
	r.last = f
	r.count++
	r.mu.Unlock()
}

// Last returns the most recent frame and how many frames were rendered.
func (r *Recorder) Last() (Frame, uint64) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.count
}
