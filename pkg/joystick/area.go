package joystick

import (
	"errors"
	"fmt"

	"github.com/teslashibe/go-pilot/pkg/geometry"
)

// DefaultRadius is the area radius used when none is configured.
const DefaultRadius = 150.0

// DefaultPointerRatio sizes the pointer disc relative to the area radius.
const DefaultPointerRatio = 0.4

// ErrInvalidArea is returned when an area's radii are out of range.
var ErrInvalidArea = errors.New("joystick: invalid area")

// Area is the circular input region of one joystick. The region is a
// 2*Radius square in area-local pixels with its center at (Radius, Radius).
type Area struct {
	Radius        float64
	PointerRadius float64
}

// NewArea validates and builds an Area. A zero radius selects DefaultRadius,
// a zero pointerRadius selects DefaultPointerRatio*radius.
func NewArea(radius, pointerRadius float64) (Area, error) {
	if radius == 0 {
		radius = DefaultRadius
	}
	if pointerRadius == 0 {
		pointerRadius = radius * DefaultPointerRatio
	}
	if radius < 0 {
		return Area{}, fmt.Errorf("%w: radius %v", ErrInvalidArea, radius)
	}
	if pointerRadius < 0 || pointerRadius >= radius {
		return Area{}, fmt.Errorf("%w: pointer radius %v not in (0, %v)", ErrInvalidArea, pointerRadius, radius)
	}
	return Area{Radius: radius, PointerRadius: pointerRadius}, nil
}

// Center returns the area center in area-local pixels (Y down).
func (a Area) Center() geometry.Point {
	return geometry.Point{X: a.Radius, Y: a.Radius}
}

// Size returns the side length of the square drawing surface.
func (a Area) Size() float64 {
	return a.Radius * 2
}

// Coord converts an area-local pixel position (Y down) into a
// center-relative coordinate with Y up, clamped to the area circle.
func (a Area) Coord(local geometry.Point) geometry.Point {
	c := a.Center()
	raw := geometry.Point{
		X: local.X - c.X,
		Y: c.Y - local.Y,
	}
	return geometry.ClampRadial(raw, a.Radius)
}

// Normalize divides a clamped coordinate by the radius.
func (a Area) Normalize(coord geometry.Point) Vector {
	v := Vector{X: coord.X / a.Radius, Y: coord.Y / a.Radius}
	return v.limit()
}
