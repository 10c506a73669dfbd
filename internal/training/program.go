// Package training builds guided exercise programs and scores a patient's
// movement against calibrated maxima while the program runs.
package training

import (
	"fmt"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// Phase is the part of a repetition a step belongs to.
type Phase string

const (
	PhaseRest   Phase = "rest"
	PhaseMove   Phase = "move"
	PhaseHold   Phase = "hold"
	PhaseReturn Phase = "return"
)

// phases is the order of steps within one repetition.
var phases = []Phase{PhaseRest, PhaseMove, PhaseHold, PhaseReturn}

// StepsPerRepetition is the number of steps in one repetition.
var StepsPerRepetition = len(phases)

// DefaultRepetitions is the number of repetitions in a standard program.
const DefaultRepetitions = 8

// Step is one timed instruction of a program.
type Step struct {
	Index       int          `json:"index"`
	Repetition  int          `json:"repetition"`
	Phase       Phase        `json:"phase"`
	Action      motion.State `json:"action"`
	Instruction string       `json:"instruction"`
}

// Directed reports whether the step asks for movement that is scored.
func (s Step) Directed() bool {
	return s.Action != motion.Neutral
}

// Program returns the steps of an exercise: every repetition is rest, move,
// hold and return, in that order.
func Program(exercise motion.State, repetitions int) ([]Step, error) {
	if _, err := motion.ParseAction(string(exercise)); err != nil {
		return nil, err
	}
	if repetitions <= 0 {
		return nil, fmt.Errorf("repetitions must be positive, got %d", repetitions)
	}

	steps := make([]Step, 0, repetitions*StepsPerRepetition)
	for rep := 1; rep <= repetitions; rep++ {
		for _, phase := range phases {
			step := Step{
				Index:       len(steps),
				Repetition:  rep,
				Phase:       phase,
				Action:      motion.Neutral,
				Instruction: instruction(exercise, phase),
			}
			if phase == PhaseMove || phase == PhaseHold {
				step.Action = exercise
			}
			steps = append(steps, step)
		}
	}
	return steps, nil
}

func instruction(exercise motion.State, phase Phase) string {
	switch phase {
	case PhaseRest:
		return "Natural closed position"
	case PhaseMove:
		switch exercise {
		case motion.Open:
			return "Slowly open your mouth"
		case motion.Left:
			return "Slowly move to the left"
		default:
			return "Slowly move to the right"
		}
	case PhaseHold:
		return fmt.Sprintf("Hold the maximum %s position for 1-2 seconds", exercise)
	default:
		return "Slowly return to the natural closed position"
	}
}
