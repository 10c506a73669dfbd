package geometry

// Measurement holds the scalar mouth measurements of one frame.
type Measurement struct {
	Vertical      float64 `json:"vertical"`
	Horizontal    float64 `json:"horizontal"`
	LeftRotation  float64 `json:"left_rotation"`
	RightRotation float64 `json:"right_rotation"`

	// TopLip is the tracked reference point for displacement and speed.
	TopLip Point `json:"top_lip"`
}

// Measure computes the mouth measurements for one landmark set.
// It returns ErrIncompleteLandmarks when any of the four mouth points is unusable.
//
// The rotation proxies are the distances of each lip center to their common
// midpoint, so LeftRotation and RightRotation are always equal.
func Measure(s LandmarkSet) (Measurement, error) {
	top, ok := s.Point(TopLipCenter)
	if !ok {
		return Measurement{}, ErrIncompleteLandmarks
	}
	bottom, ok := s.Point(BottomLipCenter)
	if !ok {
		return Measurement{}, ErrIncompleteLandmarks
	}
	left, ok := s.Point(LeftMouthCorner)
	if !ok {
		return Measurement{}, ErrIncompleteLandmarks
	}
	right, ok := s.Point(RightMouthCorner)
	if !ok {
		return Measurement{}, ErrIncompleteLandmarks
	}

	mid := Midpoint(top, bottom)

	return Measurement{
		Vertical:      top.Distance(bottom),
		Horizontal:    left.Distance(right),
		LeftRotation:  top.Distance(mid),
		RightRotation: bottom.Distance(mid),
		TopLip:        top,
	}, nil
}
