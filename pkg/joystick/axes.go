package joystick

import "math"

// Vector is a normalized joystick command, each component in [-1, 1].
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Neutral is the zero command.
var Neutral = Vector{}

// IsNeutral reports whether v is the zero command.
func (v Vector) IsNeutral() bool {
	return v.X == 0 && v.Y == 0
}

// limit guards against rounding pushing a component past 1.
func (v Vector) limit() Vector {
	return Vector{
		X: math.Max(-1, math.Min(1, v.X)),
		Y: math.Max(-1, math.Min(1, v.Y)),
	}
}

// Axes maps a joystick's horizontal and vertical deflection onto the command
// fields the controller expects, and names the endpoint that receives them.
type Axes struct {
	Name       string
	Horizontal string
	Vertical   string
	Path       string
}

// XY drives forward/back and left/right.
var XY = Axes{Name: "xy", Horizontal: "x", Vertical: "y", Path: "/moveXy"}

// ZR drives vertical speed and yaw.
var ZR = Axes{Name: "zr", Horizontal: "r", Vertical: "z", Path: "/moveZr"}

// Payload renders v as the controller's move body.
func (a Axes) Payload(v Vector) map[string]float64 {
	return map[string]float64{
		a.Horizontal: v.X,
		a.Vertical:   v.Y,
	}
}

// Lookup returns the Axes with the given name.
func Lookup(name string) (Axes, bool) {
	switch name {
	case XY.Name:
		return XY, true
	case ZR.Name:
		return ZR, true
	}
	return Axes{}, false
}
