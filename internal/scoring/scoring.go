// Package scoring converts live measurements into percentages of the
// calibrated maxima.
package scoring

import (
	"math"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// DefaultReachedRatio is the share of the maximum that counts as reaching it.
const DefaultReachedRatio = 0.9

// Percentage returns current as a percentage of max.
// It returns false when max is not a usable maximum (zero, negative or not finite).
func Percentage(current, max float64) (float64, bool) {
	if max <= 0 || math.IsNaN(max) || math.IsInf(max, 0) || math.IsNaN(current) || math.IsInf(current, 0) {
		return 0, false
	}
	return current / max * 100, true
}

// Clamp bounds a percentage for presentation. Values above 100 are kept.
func Clamp(p float64) float64 {
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	return p
}

// AxisValue returns the record value that is scored for an action.
// Left movement is a negative displacement, so it is negated.
func AxisValue(rec motion.Record, action motion.State) float64 {
	switch action {
	case motion.Open:
		return rec.Vertical
	case motion.Left:
		return -rec.Displacement
	case motion.Right:
		return rec.Displacement
	default:
		return 0
	}
}

// CalibratedMax returns the maximum that an action is scored against,
// with the same sign handling as AxisValue.
func CalibratedMax(res motion.CalibrationResults, action motion.State) float64 {
	switch action {
	case motion.Open:
		return res.MaxOpen
	case motion.Left:
		return -res.MaxLeft
	case motion.Right:
		return res.MaxRight
	default:
		return 0
	}
}

// Score returns the percentage reached by rec for action against res.
func Score(rec motion.Record, action motion.State, res motion.CalibrationResults) (float64, bool) {
	return Percentage(AxisValue(rec, action), CalibratedMax(res, action))
}

// MaxReachedLatch reports the first time a value reaches the configured share
// of the maximum. It stays set until Reset.
type MaxReachedLatch struct {
	ratio   float64
	reached bool
}

// NewMaxReachedLatch creates a latch firing at ratio*max. A non-positive ratio
// selects DefaultReachedRatio.
func NewMaxReachedLatch(ratio float64) *MaxReachedLatch {
	if ratio <= 0 {
		ratio = DefaultReachedRatio
	}
	return &MaxReachedLatch{ratio: ratio}
}

// Observe returns true exactly once, on the first call where current >= ratio*max.
// An unusable maximum never fires.
func (l *MaxReachedLatch) Observe(current, max float64) bool {
	if l.reached {
		return false
	}
	if _, ok := Percentage(current, max); !ok {
		return false
	}
	if current >= max*l.ratio {
		l.reached = true
		return true
	}
	return false
}

// Reached reports whether the latch has fired since the last Reset.
func (l *MaxReachedLatch) Reached() bool {
	return l.reached
}

// Reset re-arms the latch.
func (l *MaxReachedLatch) Reset() {
	l.reached = false
}

// Ratio returns the firing ratio.
func (l *MaxReachedLatch) Ratio() float64 {
	return l.ratio
}
