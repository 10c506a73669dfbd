package training

import (
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/scoring"
)

// DefaultStepInterval is how long each step lasts.
const DefaultStepInterval = 5 * time.Second

// ErrNotStarted is returned when a runner is used before Start.
var ErrNotStarted = errors.New("training program not started")

// Options configures a Runner. Zero values select the defaults.
type Options struct {
	Repetitions  int
	StepInterval time.Duration
	ReachedRatio float64
}

// RepetitionResult summarizes the scored movement of one repetition.
type RepetitionResult struct {
	Repetition int     `json:"repetition"`
	Peak       float64 `json:"peak"`   // highest percentage of the maximum
	Scored     bool    `json:"scored"` // false when no frame could be scored
	MaxReached bool    `json:"max_reached"`
	Frames     int     `json:"frames"`
}

// Progress is the result of scoring one record.
type Progress struct {
	Step       Step    `json:"step"`
	Percentage float64 `json:"percentage"`
	Scored     bool    `json:"scored"`
	// MaxReached is true only for the frame on which the maximum was first
	// reached in the current repetition.
	MaxReached bool `json:"max_reached"`
}

// Runner steps through a program over time and scores records against the
// calibrated maximum of the exercise. It is not safe for concurrent use.
type Runner struct {
	exercise motion.State
	maxima   motion.CalibrationResults
	steps    []Step
	interval time.Duration
	latch    *scoring.MaxReachedLatch

	started   bool
	current   int
	stepStart time.Time
	results   []RepetitionResult
}

// NewRunner creates a runner for exercise scored against maxima.
func NewRunner(exercise motion.State, maxima motion.CalibrationResults, opts Options) (*Runner, error) {
	if opts.Repetitions == 0 {
		opts.Repetitions = DefaultRepetitions
	}
	if opts.StepInterval == 0 {
		opts.StepInterval = DefaultStepInterval
	}
	if opts.StepInterval < 0 {
		return nil, fmt.Errorf("step interval must be positive, got %s", opts.StepInterval)
	}

	steps, err := Program(exercise, opts.Repetitions)
	if err != nil {
		return nil, err
	}

	return &Runner{
		exercise: exercise,
		maxima:   maxima,
		steps:    steps,
		interval: opts.StepInterval,
		latch:    scoring.NewMaxReachedLatch(opts.ReachedRatio),
	}, nil
}

// Exercise returns the trained action.
func (r *Runner) Exercise() motion.State {
	return r.exercise
}

// Steps returns the program.
func (r *Runner) Steps() []Step {
	return r.steps
}

// Interval returns the duration of one step.
func (r *Runner) Interval() time.Duration {
	return r.interval
}

// Calibrated reports whether the exercise has a usable maximum.
func (r *Runner) Calibrated() bool {
	_, ok := scoring.Percentage(0, scoring.CalibratedMax(r.maxima, r.exercise))
	return ok
}

// Start begins the first step at now.
func (r *Runner) Start(now time.Time) Step {
	r.started = true
	r.current = 0
	r.stepStart = now
	r.results = nil
	r.beginRepetition(r.steps[0].Repetition)
	return r.steps[0]
}

// Current returns the active step. It returns false once the program is done.
func (r *Runner) Current() (Step, bool) {
	if !r.started || r.Done() {
		return Step{}, false
	}
	return r.steps[r.current], true
}

// Done reports whether every step has elapsed.
func (r *Runner) Done() bool {
	return r.started && r.current >= len(r.steps)
}

// Advance moves through every step whose interval has elapsed by now and
// returns the steps entered, in order. Entering the first step of a
// repetition re-arms the max-reached latch.
func (r *Runner) Advance(now time.Time) ([]Step, error) {
	if !r.started {
		return nil, ErrNotStarted
	}

	var entered []Step
	for !r.Done() && now.Sub(r.stepStart) >= r.interval {
		r.current++
		r.stepStart = r.stepStart.Add(r.interval)
		if r.Done() {
			break
		}
		step := r.steps[r.current]
		if step.Phase == PhaseRest {
			r.beginRepetition(step.Repetition)
		}
		entered = append(entered, step)
	}
	return entered, nil
}

// Observe scores rec against the calibrated maximum when the active step is
// directed. Records outside directed steps are returned unscored.
func (r *Runner) Observe(rec motion.Record) (Progress, error) {
	if !r.started {
		return Progress{}, ErrNotStarted
	}
	step, ok := r.Current()
	if !ok {
		return Progress{}, nil
	}

	p := Progress{Step: step}
	if !step.Directed() {
		return p, nil
	}

	current := scoring.AxisValue(rec, r.exercise)
	maxValue := scoring.CalibratedMax(r.maxima, r.exercise)
	pct, ok := scoring.Percentage(current, maxValue)
	if !ok {
		return p, nil
	}
	p.Percentage = scoring.Clamp(pct)
	p.Scored = true
	p.MaxReached = r.latch.Observe(current, maxValue)

	res := &r.results[len(r.results)-1]
	res.Frames++
	if !res.Scored || p.Percentage > res.Peak {
		res.Peak = p.Percentage
	}
	res.Scored = true
	if p.MaxReached {
		res.MaxReached = true
	}
	return p, nil
}

// Results returns the per-repetition results so far.
func (r *Runner) Results() []RepetitionResult {
	out := make([]RepetitionResult, len(r.results))
	copy(out, r.results)
	return out
}

// Remaining returns the time left until the program ends.
func (r *Runner) Remaining(now time.Time) time.Duration {
	if !r.started {
		return time.Duration(len(r.steps)) * r.interval
	}
	if r.Done() {
		return 0
	}
	left := time.Duration(len(r.steps)-r.current)*r.interval - now.Sub(r.stepStart)
	return max(left, 0)
}

func (r *Runner) beginRepetition(rep int) {
	r.latch.Reset()
	r.results = append(r.results, RepetitionResult{Repetition: rep})
}
