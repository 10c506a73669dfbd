package database

import (
	"time"

	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/training"
)

// Kind tells calibration runs from training runs.
type Kind string

const (
	KindCalibration Kind = "calibration"
	KindTraining    Kind = "training"
)

// ParseKind parses a run kind.
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindCalibration, KindTraining:
		return Kind(s), true
	default:
		return "", false
	}
}

// Session is a finished run as stored in the database.
type Session struct {
	ID        string    `json:"id"`
	Patient   string    `json:"patient"`
	Kind      Kind      `json:"kind"`
	Mode      string    `json:"mode"` // calibrated mode or trained exercise
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Frames    int       `json:"frames"`
	Skipped   int       `json:"skipped"`

	motion.CalibrationResults

	Stats       map[motion.State]motion.ActionStats `json:"stats"`
	Repetitions []training.RepetitionResult         `json:"repetitions,omitempty"`
}

// Duration returns how long the session ran.
func (s *Session) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// SessionFilter narrows ListSessions.
type SessionFilter struct {
	Patient string
	Kind    Kind
	Limit   int // 0 means no limit
	Offset  int
}

// Measurement is one stored record. Time is kept as the offset from the
// session start in microseconds.
type Measurement struct {
	SessionID     string  `db:"session_id"`
	Frame         int     `db:"frame"`
	OffsetMicros  int64   `db:"offset_us"`
	Displacement  float64 `db:"displacement"`
	Vertical      float64 `db:"vertical"`
	Horizontal    float64 `db:"horizontal"`
	LeftRotation  float64 `db:"left_rotation"`
	RightRotation float64 `db:"right_rotation"`
	State         string  `db:"state"`
}

// NewMeasurement converts a record of the session started at start.
func NewMeasurement(sessionID string, start time.Time, rec motion.Record) Measurement {
	return Measurement{
		SessionID:     sessionID,
		Frame:         rec.Frame,
		OffsetMicros:  rec.Time.Sub(start).Microseconds(),
		Displacement:  rec.Displacement,
		Vertical:      rec.Vertical,
		Horizontal:    rec.Horizontal,
		LeftRotation:  rec.LeftRotation,
		RightRotation: rec.RightRotation,
		State:         string(rec.State),
	}
}

// Record converts the measurement back for a session started at start.
func (m Measurement) Record(start time.Time) motion.Record {
	return motion.Record{
		Frame:         m.Frame,
		Displacement:  m.Displacement,
		Vertical:      m.Vertical,
		Horizontal:    m.Horizontal,
		LeftRotation:  m.LeftRotation,
		RightRotation: m.RightRotation,
		State:         motion.State(m.State),
		Time:          start.Add(time.Duration(m.OffsetMicros) * time.Microsecond),
	}
}
