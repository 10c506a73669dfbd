package motion

import (
	"slices"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/geometry"
)

// Session is the mutable state of one tracking run.
type Session struct {
	mode  Mode
	maxes CalibrationResults

	hasReference bool
	reference    geometry.Point

	state         State
	stateStart    time.Time
	stateDuration time.Duration
	stats         map[State]*ActionStats

	hasPrevious  bool
	previousPos  geometry.Point
	previousTime time.Time

	frames  int
	history []Record
}

// NewSession creates an empty session calibrating the given mode.
func NewSession(mode Mode) *Session {
	s := &Session{}
	s.Restart(mode)
	return s
}

// Reset clears everything the session has accumulated: reference point,
// calibration mode and maxima, frame counter, history, motion state,
// statistics and speed samples.
func (s *Session) Reset() {
	s.mode = ModeNone
	s.maxes = CalibrationResults{}
	s.hasReference = false
	s.reference = geometry.Point{}
	s.state = Neutral
	s.stateStart = time.Time{}
	s.stateDuration = 0
	s.stats = map[State]*ActionStats{
		Open:  {},
		Left:  {},
		Right: {},
	}
	s.hasPrevious = false
	s.previousPos = geometry.Point{}
	s.previousTime = time.Time{}
	s.frames = 0
	s.history = nil
}

// Restart resets the session and starts calibrating mode.
func (s *Session) Restart(mode Mode) {
	s.Reset()
	s.mode = mode
}

// SetMode switches the calibration mode, keeping the maxima reached so far.
func (s *Session) SetMode(mode Mode) {
	s.mode = mode
}

// Mode returns the current calibration mode.
func (s *Session) Mode() Mode {
	return s.mode
}

// CalibrationResults returns the maxima reached in this session.
func (s *Session) CalibrationResults() CalibrationResults {
	return s.maxes
}

// Calibration returns the mode together with the maxima.
func (s *Session) Calibration() Calibration {
	return Calibration{Mode: s.mode, CalibrationResults: s.maxes}
}

// State returns the current motion state.
func (s *Session) State() State {
	return s.state
}

// CurrentAction returns the current state and how long it had lasted at the last frame.
// Neutral always reports zero duration.
func (s *Session) CurrentAction() (State, time.Duration) {
	return s.state, s.stateDuration
}

// Stats returns a copy of the per-action statistics.
func (s *Session) Stats() map[State]ActionStats {
	out := make(map[State]ActionStats, len(s.stats))
	for state, st := range s.stats {
		out[state] = *st
	}
	return out
}

// Frames returns the number of successfully processed frames.
func (s *Session) Frames() int {
	return s.frames
}

// History returns a copy of the recorded measurements.
// The reference frame of the session is not part of the history.
func (s *Session) History() []Record {
	return slices.Clone(s.history)
}

// Snapshot returns a copy of the session state for display.
func (s *Session) Snapshot() Snapshot {
	snap := Snapshot{
		Frames:        s.frames,
		State:         s.state,
		StateDuration: s.stateDuration,
		Calibration:   s.Calibration(),
		Stats:         s.Stats(),
	}
	if n := len(s.history); n > 0 {
		last := s.history[n-1]
		snap.Last = &last
	}
	return snap
}

// transition switches to next, finalizing the statistics of the state being left.
func (s *Session) transition(next State, now time.Time) {
	if next != s.state {
		if s.state != Neutral {
			st := s.stats[s.state]
			st.TotalTime += now.Sub(s.stateStart)
			st.Count++
		}
		s.state = next
		s.stateStart = now
	}

	if s.state != Neutral {
		s.stateDuration = now.Sub(s.stateStart)
	} else {
		s.stateDuration = 0
	}
}

// trackSpeed folds the speed since the previous sample into the running
// average of the active state.
//
// The average is weighted by the finalized occurrence count, so it blends
// every frame of the active run and also earlier runs of the same state.
// This is not a per-occurrence average.
func (s *Session) trackSpeed(pos geometry.Point, now time.Time) {
	if s.hasPrevious {
		dt := now.Sub(s.previousTime).Seconds()
		if dt > 0 && s.state != Neutral {
			speed := pos.Distance(s.previousPos) / dt
			st := s.stats[s.state]
			n := float64(st.Count)
			st.AvgSpeed = (st.AvgSpeed*n + speed) / (n + 1)
		}
	}
	s.hasPrevious = true
	s.previousPos = pos
	s.previousTime = now
}

// calibrate updates the maximum of the current mode.
func (s *Session) calibrate(vertical, displacement float64) {
	switch s.mode {
	case ModeOpen:
		s.maxes.MaxOpen = max(s.maxes.MaxOpen, vertical)
	case ModeLeft:
		s.maxes.MaxLeft = min(s.maxes.MaxLeft, displacement)
	case ModeRight:
		s.maxes.MaxRight = max(s.maxes.MaxRight, displacement)
	}
}
