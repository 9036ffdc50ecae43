// Package geom provides pixel-space geometry primitives shared by the
// tracking and steering layers: axis-aligned bounding boxes, centre
// points, and the overlap/distance measures used for association.
package geom

import "math"

// Point is a position in pixel space.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Sub returns the vector from q to p.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Norm returns the Euclidean length of the vector p.
func (p Point) Norm() float64 {
	return math.Hypot(p.X, p.Y)
}

// BBox is an axis-aligned bounding box in pixel space. X and Y are the
// top-left corner; W and H must be non-negative.
type BBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the centre point of the box.
func (b BBox) Center() Point {
	return Point{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// Area returns the box area in square pixels.
func (b BBox) Area() float64 {
	if b.W <= 0 || b.H <= 0 {
		return 0
	}
	return b.W * b.H
}

// IOU returns the intersection-over-union of two boxes in [0, 1].
// Degenerate (zero-area) inputs yield 0.
func IOU(a, b BBox) float64 {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.W, b.X+b.W)
	y2 := math.Min(a.Y+a.H, b.Y+b.H)

	if x2 <= x1 || y2 <= y1 {
		return 0
	}
	inter := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// CenterDistance returns the Euclidean distance between box centres.
func CenterDistance(a, b BBox) float64 {
	return a.Center().Sub(b.Center()).Norm()
}

// FrameGeometry describes the camera frame the detections live in.
type FrameGeometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Center returns the frame centre point.
func (g FrameGeometry) Center() Point {
	return Point{X: float64(g.Width) / 2, Y: float64(g.Height) / 2}
}

// MaxCenterDistance returns the distance from the frame centre to a
// corner, the largest centre offset any box in the frame can have.
func (g FrameGeometry) MaxCenterDistance() float64 {
	c := g.Center()
	return math.Hypot(c.X, c.Y)
}
