package training

import (
	"testing"

	"github.com/kozaktomas/mouthtrack/internal/motion"
)

func TestProgram(t *testing.T) {
	steps, err := Program(motion.Left, 2)
	if err != nil {
		t.Fatalf("Program() error = %v", err)
	}
	if len(steps) != 8 {
		t.Fatalf("len(steps) = %d, want 8", len(steps))
	}

	want := []struct {
		rep    int
		phase  Phase
		action motion.State
	}{
		{1, PhaseRest, motion.Neutral},
		{1, PhaseMove, motion.Left},
		{1, PhaseHold, motion.Left},
		{1, PhaseReturn, motion.Neutral},
		{2, PhaseRest, motion.Neutral},
		{2, PhaseMove, motion.Left},
		{2, PhaseHold, motion.Left},
		{2, PhaseReturn, motion.Neutral},
	}
	for i, w := range want {
		s := steps[i]
		if s.Index != i || s.Repetition != w.rep || s.Phase != w.phase || s.Action != w.action {
			t.Errorf("steps[%d] = %+v, want rep %d phase %s action %s", i, s, w.rep, w.phase, w.action)
		}
		if s.Instruction == "" {
			t.Errorf("steps[%d] has no instruction", i)
		}
	}
}

func TestProgram_Invalid(t *testing.T) {
	if _, err := Program(motion.Neutral, 8); err == nil {
		t.Error("Program(neutral) error = nil, want error")
	}
	if _, err := Program(motion.Open, 0); err == nil {
		t.Error("Program(open, 0) error = nil, want error")
	}
}
