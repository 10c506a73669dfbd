package motion

import (
	"time"

	"github.com/kozaktomas/mouthtrack/internal/geometry"
)

// Tracker classifies frames and updates sessions.
type Tracker struct {
	thresholds Thresholds
}

// NewTracker creates a tracker with the given thresholds.
func NewTracker(thresholds Thresholds) *Tracker {
	return &Tracker{thresholds: thresholds}
}

// Thresholds returns the classification thresholds.
func (t *Tracker) Thresholds() Thresholds {
	return t.thresholds
}

// Classify maps a vertical opening and a horizontal displacement to a state.
// Opening is checked before sideways movement.
func (t *Tracker) Classify(vertical, displacement float64) State {
	switch {
	case vertical > t.thresholds.Open:
		return Open
	case displacement < -t.thresholds.Movement:
		return Left
	case displacement > t.thresholds.Movement:
		return Right
	default:
		return Neutral
	}
}

// Process measures one frame and folds it into the session.
//
// It returns false when the landmarks are incomplete; the session is left
// untouched in that case. The first valid frame of a session becomes the
// reference point: it yields a zero-displacement record and takes no part in
// classification, speed tracking, calibration or the history.
func (t *Tracker) Process(s *Session, landmarks geometry.LandmarkSet, now time.Time) (Record, bool) {
	m, err := geometry.Measure(landmarks)
	if err != nil {
		return Record{}, false
	}

	s.frames++
	rec := Record{
		Frame:         s.frames,
		Vertical:      m.Vertical,
		Horizontal:    m.Horizontal,
		LeftRotation:  m.LeftRotation,
		RightRotation: m.RightRotation,
		Time:          now,
	}

	if !s.hasReference {
		s.hasReference = true
		s.reference = m.TopLip
		rec.State = s.state
		return rec, true
	}

	rec.Displacement = m.TopLip.X - s.reference.X

	s.transition(t.Classify(m.Vertical, rec.Displacement), now)
	s.trackSpeed(m.TopLip, now)
	s.calibrate(m.Vertical, rec.Displacement)

	rec.State = s.state
	s.history = append(s.history, rec)
	return rec, true
}
