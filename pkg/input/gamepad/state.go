package gamepad

import "math"

// Stick is one analog stick, each axis in [-1, 1] with Y up.
type Stick struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// IsCentered reports whether the stick rests in its deadzone.
func (s Stick) IsCentered() bool {
	return s.X == 0 && s.Y == 0
}

// Buttons holds the buttons the pilot uses.
type Buttons struct {
	A     bool `json:"a"`
	B     bool `json:"b"`
	X     bool `json:"x"`
	Y     bool `json:"y"`
	Back  bool `json:"back"`
	Start bool `json:"start"`
}

// State is one poll of the active gamepad.
type State struct {
	Connected bool    `json:"connected"`
	Name      string  `json:"name"`
	Left      Stick   `json:"left"`
	Right     Stick   `json:"right"`
	Buttons   Buttons `json:"buttons"`
}

// NormalizeAxis converts a raw SDL axis value to [-1, 1].
func NormalizeAxis(raw int16) float64 {
	v := float64(raw) / math.MaxInt16
	if v < -1 {
		v = -1
	}
	return v
}

// ApplyDeadzone zeroes values whose magnitude is below threshold.
func ApplyDeadzone(v, threshold float64) float64 {
	if math.Abs(v) < threshold {
		return 0
	}
	return v
}
