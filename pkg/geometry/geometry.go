// Package geometry holds the small amount of 2-D math the joysticks need.
package geometry

import "math"

// Point is a 2-D coordinate. Area-local joystick coordinates have Y growing upward.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p scaled by k.
func (p Point) Scale(k float64) Point {
	return Point{X: p.X * k, Y: p.Y * k}
}

// Len returns the distance from the origin.
func (p Point) Len() float64 {
	return math.Sqrt(p.X*p.X + p.Y*p.Y)
}

// Rotate rotates (x, y) by theta radians around the origin.
func Rotate(p Point, theta float64) Point {
	sin, cos := math.Sincos(theta)
	return Point{
		X: cos*p.X - sin*p.Y,
		Y: sin*p.X + cos*p.Y,
	}
}

// Round rounds v to the given number of decimal places for display.
func Round(v float64, places int) float64 {
	if places < 0 {
		places = 0
	}
	k := math.Pow(10, float64(places))
	return math.Round(v*k) / k
}

// RoundPoint rounds both components of p.
func RoundPoint(p Point, places int) Point {
	return Point{X: Round(p.X, places), Y: Round(p.Y, places)}
}

// sign returns -1, 0 or 1.
func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

// ClampRadial limits p to the disc of the given radius centered on the origin.
// Points inside the disc are returned unchanged. Points outside are projected
// onto the boundary along the ray from the origin, so the angle is kept and the
// magnitude becomes radius.
func ClampRadial(p Point, radius float64) Point {
	if p.Len() <= radius {
		return p
	}
	if p.X == 0 {
		return Point{X: 0, Y: sign(p.Y) * radius}
	}
	a := p.Y / p.X
	x := sign(p.X) * radius / math.Sqrt(a*a+1)
	return Point{X: x, Y: a * x}
}

// PointerOffset returns where to draw a pointer disc of pointerRadius so that
// it stays inside a base circle of radius while tracking coord.
func PointerOffset(coord Point, radius, pointerRadius float64) Point {
	d := coord.Len()
	if d == 0 || d+pointerRadius <= radius {
		return coord
	}
	return coord.Scale((radius - pointerRadius) / d)
}
