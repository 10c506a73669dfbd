package coach

import (
	"time"

	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/training"
)

// EventType names what happened during a run.
type EventType string

const (
	EventMeasurement EventType = "measurement"
	EventSkipped     EventType = "skipped"
	EventStep        EventType = "step"
	EventProgress    EventType = "progress"
	EventMaxReached  EventType = "max_reached"
	EventCalibration EventType = "calibration"
	EventCompleted   EventType = "completed"
	EventError       EventType = "error"
)

// Event is emitted to a Sink while a run progresses. Only the fields
// relevant to Type are set.
type Event struct {
	Type  EventType `json:"type"`
	RunID string    `json:"run_id"`
	Time  time.Time `json:"time"`
	Frame int       `json:"frame,omitempty"`

	Record      *motion.Record             `json:"record,omitempty"`
	Snapshot    *motion.Snapshot           `json:"snapshot,omitempty"`
	Step        *training.Step             `json:"step,omitempty"`
	Progress    *training.Progress         `json:"progress,omitempty"`
	Calibration *motion.CalibrationResults `json:"calibration,omitempty"`
	Result      *Result                    `json:"result,omitempty"`
	Reason      string                     `json:"reason,omitempty"`
}

// Sink receives run events in order. Emit is called from the run's
// goroutines one event at a time and must not block for long.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})
