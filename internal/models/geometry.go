package models

// Point is a position in CSS pixels relative to the viewport
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Size is a width/height pair in CSS pixels
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Rect is an element's bounding box
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Location() Point {
	return Point{X: r.X, Y: r.Y}
}

func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Center returns the midpoint, which is where pointer actions land
func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Empty reports a zero-area box, i.e. nothing to point at
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}
