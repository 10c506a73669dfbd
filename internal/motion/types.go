// Package motion classifies mouth measurements into motion states and keeps
// per-session statistics and calibration maxima.
//
// A Tracker carries configuration only. All mutable state lives in a Session,
// created per tracking run and passed to Tracker.Process. A Session is not
// safe for concurrent use; callers serialize access (one frame at a time).
package motion

import (
	"fmt"
	"time"
)

// State is the discrete classification of a frame.
type State string

// Motion states.
const (
	Neutral State = "neutral"
	Open    State = "open"
	Left    State = "left"
	Right   State = "right"
)

// Actions lists the non-neutral states in display order.
var Actions = []State{Open, Left, Right}

// ParseAction parses an exercise name into a non-neutral State.
func ParseAction(s string) (State, error) {
	switch State(s) {
	case Open, Left, Right:
		return State(s), nil
	default:
		return "", fmt.Errorf("unknown motion %q (expected open, left or right)", s)
	}
}

// Mode selects which calibration maximum a session updates.
type Mode string

// Calibration modes.
const (
	ModeNone  Mode = "none"
	ModeOpen  Mode = "open"
	ModeLeft  Mode = "left"
	ModeRight Mode = "right"
)

// ModeFor returns the calibration mode matching an action.
func ModeFor(action State) Mode {
	switch action {
	case Open:
		return ModeOpen
	case Left:
		return ModeLeft
	case Right:
		return ModeRight
	default:
		return ModeNone
	}
}

// Thresholds configures classification in normalized units.
type Thresholds struct {
	Open     float64 `json:"open"`
	Movement float64 `json:"movement"`
}

// DefaultThresholds returns the standard classification thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Open: 0.1, Movement: 0.05}
}

// Record is the measurement emitted for one processed frame.
type Record struct {
	Frame         int     `json:"frame"`
	Displacement  float64 `json:"displacement"`
	Vertical      float64 `json:"vertical"`
	Horizontal    float64 `json:"horizontal"`
	LeftRotation  float64 `json:"left_rotation"`
	RightRotation float64 `json:"right_rotation"`

	State State     `json:"state"`
	Time  time.Time `json:"time"`
}

// ActionStats accumulates duration and speed for one motion state.
type ActionStats struct {
	TotalTime time.Duration `json:"total_time"`
	Count     int           `json:"count"`
	AvgSpeed  float64       `json:"avg_speed"`
}

// CalibrationResults is a snapshot of the calibration maxima.
// MaxLeft keeps the most negative displacement reached.
type CalibrationResults struct {
	MaxOpen  float64 `json:"max_open"`
	MaxLeft  float64 `json:"max_left"`
	MaxRight float64 `json:"max_right"`
}

// Max returns the maximum kept for mode, or 0 for ModeNone.
func (c CalibrationResults) Max(mode Mode) float64 {
	switch mode {
	case ModeOpen:
		return c.MaxOpen
	case ModeLeft:
		return c.MaxLeft
	case ModeRight:
		return c.MaxRight
	default:
		return 0
	}
}

// Calibration is the calibration state of a session.
type Calibration struct {
	Mode Mode `json:"mode"`
	CalibrationResults
}

// Snapshot is a copy of the session state for presentation.
type Snapshot struct {
	Frames        int                   `json:"frames"`
	State         State                 `json:"state"`
	StateDuration time.Duration         `json:"state_duration"`
	Calibration   Calibration           `json:"calibration"`
	Stats         map[State]ActionStats `json:"stats"`
	Last          *Record               `json:"last,omitempty"`
}
