// Package storetest holds behavior tests shared by every database.Store
// implementation.
package storetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/training"
)

var base = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

// Session builds a finished session with deterministic content.
func Session(id, patient string, kind database.Kind, startOffset time.Duration) *database.Session {
	start := base.Add(startOffset)
	s := &database.Session{
		ID:        id,
		Patient:   patient,
		Kind:      kind,
		Mode:      "open",
		StartedAt: start,
		EndedAt:   start.Add(40 * time.Second),
		Frames:    3,
		Skipped:   1,
		CalibrationResults: motion.CalibrationResults{
			MaxOpen:  0.12,
			MaxLeft:  -0.04,
			MaxRight: 0.05,
		},
		Stats: map[motion.State]motion.ActionStats{
			motion.Open:  {TotalTime: 2 * time.Second, Count: 1, AvgSpeed: 0.03},
			motion.Left:  {},
			motion.Right: {},
		},
	}
	if kind == database.KindTraining {
		s.Repetitions = []training.RepetitionResult{
			{Repetition: 1, Peak: 95.5, Scored: true, MaxReached: true, Frames: 10},
			{Repetition: 2, Peak: 40, Scored: true, Frames: 9},
		}
	}
	return s
}

// Records builds n records starting at start, 100 ms apart.
func Records(start time.Time, n int) []motion.Record {
	recs := make([]motion.Record, n)
	for i := range recs {
		recs[i] = motion.Record{
			Frame:         i + 2,
			Displacement:  -0.001 * float64(i),
			Vertical:      0.01 * float64(i),
			Horizontal:    0.2,
			LeftRotation:  0.005 * float64(i),
			RightRotation: 0.005 * float64(i),
			State:         motion.Neutral,
			Time:          start.Add(time.Duration(i+1) * 100 * time.Millisecond),
		}
	}
	return recs
}

// Run exercises store. The store must be empty.
func Run(t *testing.T, store database.Store) {
	ctx := context.Background()

	t.Run("SaveAndGet", func(t *testing.T) {
		s := Session("save-get", "jan", database.KindTraining, 0)
		recs := Records(s.StartedAt, 3)
		require.NoError(t, store.SaveSession(ctx, s, recs))

		got, err := store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, s.ID, got.ID)
		assert.Equal(t, s.Patient, got.Patient)
		assert.Equal(t, s.Kind, got.Kind)
		assert.Equal(t, s.Mode, got.Mode)
		assert.True(t, s.StartedAt.Equal(got.StartedAt), "StartedAt = %v, want %v", got.StartedAt, s.StartedAt)
		assert.True(t, s.EndedAt.Equal(got.EndedAt), "EndedAt = %v, want %v", got.EndedAt, s.EndedAt)
		assert.Equal(t, s.Frames, got.Frames)
		assert.Equal(t, s.Skipped, got.Skipped)
		assert.Equal(t, s.CalibrationResults, got.CalibrationResults)
		assert.Equal(t, s.Stats, got.Stats)
		assert.Equal(t, s.Repetitions, got.Repetitions)

		measured, err := store.GetMeasurements(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, measured, len(recs))
		for i := range recs {
			assert.Equal(t, recs[i].Frame, measured[i].Frame)
			assert.InDelta(t, recs[i].Vertical, measured[i].Vertical, 1e-12)
			assert.InDelta(t, recs[i].Displacement, measured[i].Displacement, 1e-12)
			assert.Equal(t, recs[i].State, measured[i].State)
			assert.WithinDuration(t, recs[i].Time, measured[i].Time, time.Microsecond)
		}
	})

	t.Run("SaveReplacesMeasurements", func(t *testing.T) {
		s := Session("replace", "jan", database.KindCalibration, time.Minute)
		require.NoError(t, store.SaveSession(ctx, s, Records(s.StartedAt, 5)))

		s.Frames = 2
		require.NoError(t, store.SaveSession(ctx, s, Records(s.StartedAt, 2)))

		got, err := store.GetSession(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.Frames)
		assert.Empty(t, got.Repetitions)

		measured, err := store.GetMeasurements(ctx, s.ID)
		require.NoError(t, err)
		assert.Len(t, measured, 2)
	})

	t.Run("ManyMeasurements", func(t *testing.T) {
		s := Session("many", "eva", database.KindCalibration, 2*time.Minute)
		require.NoError(t, store.SaveSession(ctx, s, Records(s.StartedAt, 1234)))

		measured, err := store.GetMeasurements(ctx, s.ID)
		require.NoError(t, err)
		require.Len(t, measured, 1234)
		assert.Equal(t, 2, measured[0].Frame)
		assert.Equal(t, 1235, measured[1233].Frame)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.GetSession(ctx, "missing")
		assert.ErrorIs(t, err, database.ErrNotFound)

		_, err = store.GetMeasurements(ctx, "missing")
		assert.ErrorIs(t, err, database.ErrNotFound)

		assert.ErrorIs(t, store.DeleteSession(ctx, "missing"), database.ErrNotFound)
	})

	t.Run("List", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			s := Session(fmt.Sprintf("list-%d", i), "petr", database.KindTraining, time.Hour+time.Duration(i)*time.Minute)
			require.NoError(t, store.SaveSession(ctx, s, nil))
		}

		all, err := store.ListSessions(ctx, database.SessionFilter{Patient: "petr"})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "list-2", all[0].ID, "newest first")
		assert.Equal(t, "list-0", all[2].ID)

		page, err := store.ListSessions(ctx, database.SessionFilter{Patient: "petr", Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, page, 1)
		assert.Equal(t, "list-1", page[0].ID)

		tail, err := store.ListSessions(ctx, database.SessionFilter{Patient: "petr", Offset: 2})
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, "list-0", tail[0].ID)

		calib, err := store.ListSessions(ctx, database.SessionFilter{Kind: database.KindCalibration})
		require.NoError(t, err)
		for _, s := range calib {
			assert.Equal(t, database.KindCalibration, s.Kind)
		}
		assert.Len(t, calib, 2)
	})

	t.Run("Delete", func(t *testing.T) {
		s := Session("delete", "jan", database.KindCalibration, 3*time.Hour)
		require.NoError(t, store.SaveSession(ctx, s, Records(s.StartedAt, 4)))
		require.NoError(t, store.DeleteSession(ctx, s.ID))

		_, err := store.GetSession(ctx, s.ID)
		assert.ErrorIs(t, err, database.ErrNotFound)
		_, err = store.GetMeasurements(ctx, s.ID)
		assert.ErrorIs(t, err, database.ErrNotFound)
	})
}
