// Package geometry defines the page-space coordinate model shared by all
// document processors. Coordinates are in the document's native units
// (points), origin top-left, independent of any on-screen rendering scale.
package geometry

import "fmt"

// Rect is an axis-aligned rectangle in page space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Size holds a page's dimensions in page units.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ValidOrientation reports whether deg is one of the four supported
// quarter-turn angles.
func ValidOrientation(deg int) bool {
	switch deg {
	case 0, 90, 180, 270:
		return true
	}
	return false
}

// Remap rotates r around the page center by deg degrees clockwise. It maps a
// rectangle authored against a visually rotated page back into the page's
// default content frame. deg must be 0, 90, 180 or 270; 0 is the identity.
func Remap(r Rect, deg int, page Size) (Rect, error) {
	if !ValidOrientation(deg) {
		return Rect{}, fmt.Errorf("unsupported orientation %d: must be 0, 90, 180 or 270", deg)
	}
	if deg == 0 {
		return r, nil
	}

	cx, cy := page.Width/2, page.Height/2

	// Rotate the two opposite corners around the center, then normalize back
	// to an origin-corner representation.
	x1, y1 := rotatePoint(r.X, r.Y, cx, cy, deg)
	x2, y2 := rotatePoint(r.X+r.Width, r.Y+r.Height, cx, cy, deg)

	out := Rect{
		X:      min(x1, x2),
		Y:      min(y1, y2),
		Width:  abs(x2 - x1),
		Height: abs(y2 - y1),
	}
	return out, nil
}

// Inverse returns the orientation that undoes deg.
func Inverse(deg int) int {
	return (360 - deg) % 360
}

func rotatePoint(x, y, cx, cy float64, deg int) (float64, float64) {
	dx, dy := x-cx, y-cy
	switch deg {
	case 90:
		return cx - dy, cy + dx
	case 180:
		return cx - dx, cy - dy
	case 270:
		return cx + dy, cy - dx
	}
	return x, y
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
