package motion

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/mouthtrack/internal/geometry"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return t0.Add(time.Duration(seconds * float64(time.Second)))
}

// face builds a landmark set whose top lip sits at (x, y) with the given mouth opening.
func face(x, y, vertical float64) geometry.LandmarkSet {
	return geometry.LandmarkSet{
		geometry.TopLipCenter:     {X: x, Y: y},
		geometry.BottomLipCenter:  {X: x, Y: y + vertical},
		geometry.LeftMouthCorner:  {X: x - 0.1, Y: y + vertical/2},
		geometry.RightMouthCorner: {X: x + 0.1, Y: y + vertical/2},
	}
}

type frame struct {
	lm  geometry.LandmarkSet
	sec float64
}

func run(tr *Tracker, s *Session, frames []frame) []Record {
	var out []Record
	for _, f := range frames {
		if rec, ok := tr.Process(s, f.lm, at(f.sec)); ok {
			out = append(out, rec)
		}
	}
	return out
}

func TestClassify(t *testing.T) {
	tr := NewTracker(DefaultThresholds())

	tests := []struct {
		name         string
		vertical     float64
		displacement float64
		want         State
	}{
		{"neutral", 0.02, 0, Neutral},
		{"open", 0.2, 0, Open},
		{"open wins over left", 0.2, -0.2, Open},
		{"open wins over right", 0.2, 0.2, Open},
		{"left", 0.02, -0.06, Left},
		{"right", 0.02, 0.06, Right},
		{"on open threshold", 0.1, 0, Neutral},
		{"on movement threshold", 0.02, -0.05, Neutral},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tr.Classify(tt.vertical, tt.displacement))
		})
	}
}

func TestProcess_ReferenceFrame(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeNone)

	first, ok := tr.Process(s, face(0.48, 0.5, 0.02), at(0))
	require.True(t, ok)
	assert.Equal(t, 1, first.Frame)
	assert.Zero(t, first.Displacement)
	assert.Equal(t, Neutral, first.State)
	assert.Empty(t, s.History(), "reference frame is not part of the history")

	second, ok := tr.Process(s, face(0.51, 0.5, 0.02), at(1))
	require.True(t, ok)
	assert.Equal(t, 2, second.Frame)
	assert.InDelta(t, 0.03, second.Displacement, 1e-12)
	assert.Len(t, s.History(), 1)
}

func TestProcess_IncompleteLandmarksLeaveSessionUntouched(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeOpen)
	run(tr, s, []frame{
		{face(0.5, 0.5, 0.02), 0},
		{face(0.5, 0.5, 0.15), 1},
	})

	before := s.Snapshot()
	history := s.History()

	incomplete := face(0.5, 0.5, 0.3)
	delete(incomplete, geometry.BottomLipCenter)

	for _, lm := range []geometry.LandmarkSet{nil, {}, incomplete} {
		_, ok := tr.Process(s, lm, at(2))
		assert.False(t, ok)
	}

	assert.Equal(t, before, s.Snapshot())
	assert.Empty(t, cmp.Diff(history, s.History()))
}

func TestProcess_IncompleteFirstFrameDoesNotSetReference(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeNone)

	_, ok := tr.Process(s, geometry.LandmarkSet{geometry.TopLipCenter: {X: 0.9, Y: 0.5}}, at(0))
	require.False(t, ok)
	assert.Zero(t, s.Frames())

	rec, ok := tr.Process(s, face(0.4, 0.5, 0.02), at(1))
	require.True(t, ok)
	assert.Equal(t, 1, rec.Frame)
	assert.Zero(t, rec.Displacement)

	rec, ok = tr.Process(s, face(0.45, 0.5, 0.02), at(2))
	require.True(t, ok)
	assert.InDelta(t, 0.05, rec.Displacement, 1e-12)
}

func TestProcess_ThreeFrameExample(t *testing.T) {
	tr := NewTracker(Thresholds{Open: 0.1, Movement: 0.05})
	s := NewSession(ModeNone)

	recs := run(tr, s, []frame{
		{face(0.50, 0.5, 0.02), 0},
		{face(0.50, 0.5, 0.02), 1},
		{face(0.44, 0.5, 0.02), 2},
	})
	require.Len(t, recs, 3)

	assert.Zero(t, recs[0].Displacement)
	assert.Equal(t, Neutral, recs[0].State)

	assert.Zero(t, recs[1].Displacement)
	assert.Equal(t, Neutral, recs[1].State)

	assert.InDelta(t, -0.06, recs[2].Displacement, 1e-12)
	assert.Equal(t, Left, recs[2].State)
	assert.Equal(t, Left, s.State())
}

func TestProcess_ClassificationPriority(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeNone)

	recs := run(tr, s, []frame{
		{face(0.5, 0.5, 0.02), 0},
		{face(0.3, 0.5, 0.2), 1},
	})
	require.Len(t, recs, 2)
	assert.InDelta(t, -0.2, recs[1].Displacement, 1e-12)
	assert.Equal(t, Open, recs[1].State)
}

func TestProcess_TransitionAccounting(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeNone)

	run(tr, s, []frame{
		{face(0.5, 0.5, 0.02), 0},
		{face(0.5, 0.5, 0.02), 0.5},
		{face(0.5, 0.5, 0.2), 1},
		{face(0.5, 0.5, 0.25), 2},
	})

	state, dur := s.CurrentAction()
	assert.Equal(t, Open, state)
	assert.Equal(t, time.Second, dur)
	assert.Zero(t, s.Stats()[Open].Count, "open is still active")

	run(tr, s, []frame{{face(0.5, 0.5, 0.02), 3}})

	open := s.Stats()[Open]
	assert.Equal(t, 2*time.Second, open.TotalTime)
	assert.Equal(t, 1, open.Count)

	state, dur = s.CurrentAction()
	assert.Equal(t, Neutral, state)
	assert.Zero(t, dur)

	for _, action := range []State{Left, Right} {
		assert.Equal(t, ActionStats{}, s.Stats()[action])
	}
}

func TestProcess_DirectTransitionBetweenActions(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeNone)

	run(tr, s, []frame{
		{face(0.5, 0.5, 0.02), 0},
		{face(0.42, 0.5, 0.02), 1}, // left
		{face(0.42, 0.5, 0.2), 4},  // open
		{face(0.58, 0.5, 0.02), 5}, // right
	})

	stats := s.Stats()
	assert.Equal(t, 3*time.Second, stats[Left].TotalTime)
	assert.Equal(t, 1, stats[Left].Count)
	assert.Equal(t, time.Second, stats[Open].TotalTime)
	assert.Equal(t, 1, stats[Open].Count)
	assert.Equal(t, Right, s.State())
	assert.Zero(t, stats[Right].Count)
}

// The running speed average is weighted by the finalized count, so within the
// first occurrence it tracks the latest speed and later occurrences blend with
// the earlier ones.
func TestProcess_SpeedAverageCompoundsAcrossOccurrences(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeNone)

	run(tr, s, []frame{
		{face(0.5, 0.50, 0.02), 0}, // reference, no speed sample
		{face(0.5, 0.50, 0.20), 1}, // open, first speed sample
		{face(0.5, 0.52, 0.20), 2}, // 0.02/s
		{face(0.5, 0.56, 0.20), 3}, // 0.04/s
	})
	assert.InDelta(t, 0.04, s.Stats()[Open].AvgSpeed, 1e-9)

	run(tr, s, []frame{
		{face(0.5, 0.56, 0.02), 4}, // neutral, open finalized
		{face(0.5, 0.56, 0.20), 5}, // open again, 0/s
	})
	assert.InDelta(t, 0.02, s.Stats()[Open].AvgSpeed, 1e-9)

	run(tr, s, []frame{{face(0.5, 0.60, 0.20), 6}}) // 0.04/s
	assert.InDelta(t, 0.03, s.Stats()[Open].AvgSpeed, 1e-9)
}

func TestProcess_SpeedIgnoresNonPositiveInterval(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeNone)

	run(tr, s, []frame{
		{face(0.5, 0.50, 0.02), 0},
		{face(0.5, 0.50, 0.20), 1},
		{face(0.5, 0.60, 0.20), 1},
	})
	assert.Zero(t, s.Stats()[Open].AvgSpeed)
}

func TestProcess_CalibrationMonotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, mode := range []Mode{ModeOpen, ModeLeft, ModeRight} {
		t.Run(string(mode), func(t *testing.T) {
			tr := NewTracker(DefaultThresholds())
			s := NewSession(mode)
			prev := s.CalibrationResults()

			for i := 0; i < 500; i++ {
				x := 0.35 + rng.Float64()*0.3
				v := rng.Float64() * 0.25
				tr.Process(s, face(x, 0.5, v), at(float64(i)/30))

				cur := s.CalibrationResults()
				switch mode {
				case ModeOpen:
					require.GreaterOrEqual(t, cur.MaxOpen, prev.MaxOpen)
					require.Zero(t, cur.MaxLeft)
					require.Zero(t, cur.MaxRight)
				case ModeLeft:
					require.LessOrEqual(t, cur.MaxLeft, prev.MaxLeft)
					require.Zero(t, cur.MaxOpen)
					require.Zero(t, cur.MaxRight)
				case ModeRight:
					require.GreaterOrEqual(t, cur.MaxRight, prev.MaxRight)
					require.Zero(t, cur.MaxOpen)
					require.Zero(t, cur.MaxLeft)
				}
				prev = cur
			}
		})
	}
}

func TestProcess_ReferenceFrameSkipsCalibration(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeOpen)

	tr.Process(s, face(0.5, 0.5, 0.3), at(0))
	assert.Zero(t, s.CalibrationResults().MaxOpen)

	tr.Process(s, face(0.5, 0.5, 0.2), at(1))
	assert.InDelta(t, 0.2, s.CalibrationResults().MaxOpen, 1e-12)
}

func TestProcess_CalibrationValues(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	frames := []frame{
		{face(0.50, 0.5, 0.02), 0},
		{face(0.46, 0.5, 0.12), 1},
		{face(0.41, 0.5, 0.18), 2},
		{face(0.47, 0.5, 0.05), 3},
		{face(0.57, 0.5, 0.03), 4},
	}

	left := NewSession(ModeLeft)
	run(tr, left, frames)
	assert.InDelta(t, -0.09, left.CalibrationResults().MaxLeft, 1e-12)

	right := NewSession(ModeRight)
	run(tr, right, frames)
	assert.InDelta(t, 0.07, right.CalibrationResults().MaxRight, 1e-12)

	open := NewSession(ModeOpen)
	run(tr, open, frames)
	assert.InDelta(t, 0.18, open.CalibrationResults().MaxOpen, 1e-12)
}

func TestSession_ResetReproducesHistory(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	frames := []frame{
		{face(0.50, 0.5, 0.02), 0},
		{face(0.50, 0.5, 0.02), 0.5},
		{face(0.44, 0.5, 0.02), 1},
		{face(0.44, 0.5, 0.15), 2},
		{face(0.58, 0.5, 0.03), 3},
		{face(0.50, 0.5, 0.02), 4},
	}

	s := NewSession(ModeRight)
	run(tr, s, frames)
	firstHistory := s.History()
	firstSnapshot := s.Snapshot()

	s.Restart(ModeRight)
	assert.Zero(t, s.Frames())
	assert.Empty(t, s.History())
	assert.Equal(t, CalibrationResults{}, s.CalibrationResults())

	run(tr, s, frames)

	if diff := cmp.Diff(firstHistory, s.History()); diff != "" {
		t.Errorf("history after reset differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, firstSnapshot, s.Snapshot())
}

func TestSession_ResetClearsEverything(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeOpen)
	run(tr, s, []frame{
		{face(0.5, 0.5, 0.02), 0},
		{face(0.5, 0.5, 0.2), 1},
		{face(0.5, 0.5, 0.02), 2},
	})
	require.NotZero(t, s.Stats()[Open].Count)

	s.Reset()

	assert.Equal(t, ModeNone, s.Mode())
	assert.Equal(t, Neutral, s.State())
	assert.Zero(t, s.Frames())
	assert.Empty(t, s.History())
	assert.Equal(t, CalibrationResults{}, s.CalibrationResults())
	for _, action := range Actions {
		assert.Equal(t, ActionStats{}, s.Stats()[action])
	}

	// A new reference point is taken after a reset.
	rec, ok := tr.Process(s, face(0.3, 0.5, 0.02), at(3))
	require.True(t, ok)
	assert.Zero(t, rec.Displacement)
	assert.Equal(t, 1, rec.Frame)
}

func TestSession_SetModeKeepsMaxima(t *testing.T) {
	tr := NewTracker(DefaultThresholds())
	s := NewSession(ModeOpen)
	run(tr, s, []frame{
		{face(0.5, 0.5, 0.02), 0},
		{face(0.5, 0.5, 0.2), 1},
	})

	s.SetMode(ModeRight)
	run(tr, s, []frame{{face(0.56, 0.5, 0.02), 2}})

	res := s.CalibrationResults()
	assert.InDelta(t, 0.2, res.MaxOpen, 1e-12)
	assert.InDelta(t, 0.06, res.MaxRight, 1e-12)
}

func TestParseAction(t *testing.T) {
	for _, name := range []string{"open", "left", "right"} {
		got, err := ParseAction(name)
		require.NoError(t, err)
		assert.Equal(t, State(name), got)
		assert.Equal(t, Mode(name), ModeFor(got))
	}

	_, err := ParseAction("neutral")
	assert.Error(t, err)
	assert.Equal(t, ModeNone, ModeFor(Neutral))
}

func TestCalibrationResults_Max(t *testing.T) {
	res := CalibrationResults{MaxOpen: 0.4, MaxLeft: -0.2, MaxRight: 0.3}

	assert.InDelta(t, 0.4, res.Max(ModeOpen), 1e-12)
	assert.InDelta(t, -0.2, res.Max(ModeLeft), 1e-12)
	assert.InDelta(t, 0.3, res.Max(ModeRight), 1e-12)
	assert.Zero(t, res.Max(ModeNone))
}
