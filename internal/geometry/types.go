// Package geometry turns one frame of face-mesh landmarks into mouth measurements.
// Everything here is a pure function of its input and works in normalized
// image coordinates (0-1).
package geometry

import (
	"errors"
	"math"
)

// Face-mesh landmark indices used by the mouth measurements.
const (
	TopLipCenter     = 13
	BottomLipCenter  = 14
	LeftMouthCorner  = 78
	RightMouthCorner = 308
)

// MouthIndices lists the landmarks a set must contain to be measurable.
var MouthIndices = []int{TopLipCenter, BottomLipCenter, LeftMouthCorner, RightMouthCorner}

// ErrIncompleteLandmarks is returned when one of the mouth points is missing or not finite.
var ErrIncompleteLandmarks = errors.New("incomplete mouth landmarks")

// Point is a 2-D landmark position in normalized image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Finite reports whether both coordinates are real numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Pixels converts a normalized point to pixel coordinates for a width x height frame.
// Invalid dimensions return the point unchanged.
func (p Point) Pixels(width, height int) (int, int) {
	if width <= 0 || height <= 0 {
		return int(p.X), int(p.Y)
	}
	return int(p.X * float64(width)), int(p.Y * float64(height))
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
}

// LandmarkSet is one frame's landmarks keyed by face-mesh index.
// A nil set means no face was found.
type LandmarkSet map[int]Point

// Point returns the landmark at idx and whether it is present and finite.
func (s LandmarkSet) Point(idx int) (Point, bool) {
	p, ok := s[idx]
	if !ok || !p.Finite() {
		return Point{}, false
	}
	return p, true
}

// Complete reports whether all mouth landmarks are present.
func (s LandmarkSet) Complete() bool {
	for _, idx := range MouthIndices {
		if _, ok := s.Point(idx); !ok {
			return false
		}
	}
	return true
}

// Mouth returns a copy of the set reduced to the mouth landmarks.
func (s LandmarkSet) Mouth() LandmarkSet {
	out := make(LandmarkSet, len(MouthIndices))
	for _, idx := range MouthIndices {
		if p, ok := s[idx]; ok {
			out[idx] = p
		}
	}
	return out
}
