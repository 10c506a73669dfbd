// Package coach runs one calibration or training session end to end: it reads
// frames, tracks the mouth, keeps the calibration file current, steps through
// the training program and persists the finished session.
package coach

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/mouthtrack/internal/calibration"
	"github.com/kozaktomas/mouthtrack/internal/config"
	"github.com/kozaktomas/mouthtrack/internal/constants"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/facemesh"
	"github.com/kozaktomas/mouthtrack/internal/framesource"
	"github.com/kozaktomas/mouthtrack/internal/geometry"
	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/pipeline"
	"github.com/kozaktomas/mouthtrack/internal/timeutil"
	"github.com/kozaktomas/mouthtrack/internal/training"
)

// tickInterval is how often live runs check the step timer and the duration
// limit when no frame arrives.
const tickInterval = 200 * time.Millisecond

// Deps are the collaborators of a Coach. Only Config is required.
type Deps struct {
	Config   *config.Config
	Detector pipeline.Detector
	Sessions database.SessionWriter
	Clock    timeutil.Clock
	Logger   logrus.FieldLogger

	// OpenSource opens a source spec. It defaults to framesource.Open.
	OpenSource func(spec string) (pipeline.Source, error)
}

// Coach runs sessions. It is safe for concurrent use; each Run owns its own
// tracking session.
type Coach struct {
	cfg        *config.Config
	tracker    *motion.Tracker
	detector   pipeline.Detector
	sessions   database.SessionWriter
	clock      timeutil.Clock
	log        logrus.FieldLogger
	openSource func(spec string) (pipeline.Source, error)

	mu     sync.Mutex
	stores map[string]*calibration.Store
}

// New creates a Coach.
func New(deps Deps) *Coach {
	c := &Coach{
		cfg:      deps.Config,
		detector: deps.Detector,
		sessions: deps.Sessions,
		clock:    deps.Clock,
		log:      deps.Logger,
		stores:   make(map[string]*calibration.Store),
	}
	if c.clock == nil {
		c.clock = timeutil.RealClock{}
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	c.tracker = motion.NewTracker(motion.Thresholds{
		Open:     c.cfg.Tracking.OpenThreshold,
		Movement: c.cfg.Tracking.MovementThreshold,
	})
	c.openSource = deps.OpenSource
	if c.openSource == nil {
		c.openSource = func(spec string) (pipeline.Source, error) {
			return framesource.Open(spec, c.cfg.Capture.FPS, c.clock)
		}
	}
	return c
}

// CalibrationStore returns the calibration file store of patient. Stores are
// shared so concurrent runs of one patient serialize their writes.
func (c *Coach) CalibrationStore(patient string) *calibration.Store {
	path := calibration.PathFor(c.cfg.Calibration.Dir, patient)

	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stores[path]
	if !ok {
		s = calibration.NewStore(path)
		c.stores[path] = s
	}
	return s
}

// Options describe one run.
type Options struct {
	ID      string // generated when empty
	Kind    database.Kind
	Action  motion.State
	Patient string

	// Source is a frame source spec for framesource.Open. Src, when set,
	// is used instead.
	Source string
	Src    pipeline.Source

	Record      string        // replay file to record landmarks to
	Duration    time.Duration // stop after this much frame time; 0 means no limit
	Repetitions int           // overrides the configured repetitions of a training run
}

// Validate checks that o describes a runnable session.
func (o Options) Validate() error {
	if _, ok := database.ParseKind(string(o.Kind)); !ok {
		return fmt.Errorf("unknown run kind %q (expected calibration or training)", o.Kind)
	}
	if _, err := motion.ParseAction(string(o.Action)); err != nil {
		return err
	}
	if o.Source == "" && o.Src == nil {
		return errors.New("frame source is required")
	}
	if o.Duration < 0 {
		return fmt.Errorf("duration must not be negative, got %s", o.Duration)
	}
	if o.Repetitions < 0 {
		return fmt.Errorf("repetitions must not be negative, got %d", o.Repetitions)
	}
	return nil
}

// Result summarizes a finished run.
type Result struct {
	ID        string        `json:"id"`
	Kind      database.Kind `json:"kind"`
	Action    motion.State  `json:"action"`
	Patient   string        `json:"patient"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`

	Frames   int            `json:"frames"`
	Skipped  int            `json:"skipped"`
	Pipeline pipeline.Stats `json:"pipeline"`

	// Calibration holds the maxima reached in a calibration run, or the
	// stored maxima a training run was scored against.
	Calibration motion.CalibrationResults           `json:"calibration"`
	Stats       map[motion.State]motion.ActionStats `json:"stats"`

	Calibrated  bool                        `json:"calibrated"`
	Repetitions []training.RepetitionResult `json:"repetitions,omitempty"`
	Completed   bool                        `json:"completed"` // training program ran to its end

	Persisted    bool   `json:"persisted"`
	PersistError string `json:"persist_error,omitempty"`

	// Error is set when the frame source failed and ended the run early.
	Error string `json:"error,omitempty"`
}

// Run executes one session until the source ends, ctx is cancelled, the
// duration limit passes or the training program completes. A failure to
// persist the session does not fail the run; it is reported in the result.
// When the frame source fails, the session is still finished and stored and
// Run returns the result together with the error.
func (c *Coach) Run(ctx context.Context, opts Options, sink Sink) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = Discard
	}
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}

	src := opts.Src
	if src == nil {
		var err error
		if src, err = c.openSource(opts.Source); err != nil {
			return nil, fmt.Errorf("opening frame source: %w", err)
		}
	}

	r, err := c.newRun(opts, sink)
	if err != nil {
		src.Close()
		return nil, err
	}
	defer r.closeRecorder()

	r.log.WithFields(logrus.Fields{"kind": opts.Kind, "patient": opts.Patient}).Info("run started")

	ctx, stop := context.WithCancel(ctx)
	defer stop()

	var wg sync.WaitGroup
	if src.Live() {
		r.mu.Lock()
		r.begin(c.clock.Now())
		r.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			r.watch(ctx, stop)
		}()
	}

	stats, runErr := pipeline.Run(ctx, src, pipeline.Options{
		QueueSize:       c.cfg.Capture.QueueSize,
		Detector:        c.detector,
		Logger:          r.log,
		MaxSourceErrors: constants.MaxSourceErrors,
	}, r.handle)
	stop()
	wg.Wait()

	r.mu.Lock()
	defer r.mu.Unlock()

	if runErr != nil {
		r.log.WithError(runErr).Error("frame source failed, run ended early")
		r.emit(Event{Type: EventError, Time: c.clock.Now(), Reason: runErr.Error()})
	}

	// Measurements taken before a source failure are still stored.
	res := r.finish(ctx, stats)
	if runErr != nil {
		res.Error = runErr.Error()
	}
	r.emit(Event{Type: EventCompleted, Time: res.EndedAt, Result: res})
	r.log.WithFields(logrus.Fields{
		"frames":        res.Frames,
		"skipped":       res.Skipped,
		"dropped":       stats.Dropped,
		"source_errors": stats.SourceErrors,
	}).Info("run finished")
	return res, runErr
}

// run is the state of one Run call. The frame handler and the live watcher
// both hold mu while touching it.
type run struct {
	coach *Coach
	opts  Options
	sink  Sink
	log   logrus.FieldLogger
	mode  motion.Mode

	mu       sync.Mutex
	started  bool
	start    time.Time
	last     time.Time
	session  *motion.Session
	records  []motion.Record
	skipped  int
	stored   *calibration.Store
	maxima   motion.CalibrationResults // training: stored maxima being scored against
	lastMax  float64                   // calibration: last value written for mode
	runner   *training.Runner
	recorder *framesource.Recorder
	recErr   bool
}

func (c *Coach) newRun(opts Options, sink Sink) (*run, error) {
	r := &run{
		coach:  c,
		opts:   opts,
		sink:   sink,
		mode:   motion.ModeFor(opts.Action),
		stored: c.CalibrationStore(opts.Patient),
		log: c.log.WithFields(logrus.Fields{
			"run_id": opts.ID,
			"mode":   string(opts.Action),
		}),
	}

	switch opts.Kind {
	case database.KindCalibration:
		r.session = motion.NewSession(r.mode)

	case database.KindTraining:
		r.session = motion.NewSession(motion.ModeNone)

		maxima, err := r.stored.Load()
		switch {
		case errors.Is(err, calibration.ErrPositiveLeft):
			r.log.WithField("max_left", maxima.MaxLeft).
				Warn("calibration file from an older release stores a positive left maximum, recalibrate left")
		case err != nil:
			r.log.WithError(err).Warn("calibration file is malformed, using the values that could be read")
		}
		r.maxima = maxima

		reps := opts.Repetitions
		if reps == 0 {
			reps = c.cfg.Training.Repetitions
		}
		r.runner, err = training.NewRunner(opts.Action, maxima, training.Options{
			Repetitions:  reps,
			StepInterval: c.cfg.Training.StepInterval,
			ReachedRatio: c.cfg.Training.MaxReachedRatio,
		})
		if err != nil {
			return nil, err
		}
		if !r.runner.Calibrated() {
			r.log.Warn("exercise is not calibrated, progress will not be scored")
		}
	}
	return r, nil
}

// begin starts the run clock at now. Callers hold mu.
func (r *run) begin(now time.Time) {
	if r.started {
		return
	}
	r.started = true
	r.start = now
	r.last = now

	if r.runner != nil {
		step := r.runner.Start(now)
		r.emitStep(now, step)
	}
}

func (r *run) emit(e Event) {
	e.RunID = r.opts.ID
	r.sink.Emit(e)
}

func (r *run) emitStep(now time.Time, step training.Step) {
	r.log.WithFields(logrus.Fields{"step": step.Index, "phase": step.Phase}).Debug(step.Instruction)
	r.emit(Event{Type: EventStep, Time: now, Step: &step})
}

// advance moves the training program and the duration limit to now and
// reports whether the run should stop. Callers hold mu.
func (r *run) advance(now time.Time) bool {
	if r.opts.Duration > 0 && now.Sub(r.start) >= r.opts.Duration {
		return true
	}
	if r.runner == nil {
		return false
	}
	steps, err := r.runner.Advance(now)
	if err != nil {
		r.log.WithError(err).Error("advancing training program")
		return true
	}
	for _, step := range steps {
		r.emitStep(now, step)
	}
	return r.runner.Done()
}

// watch drives the step timer of live runs between frames.
func (r *run) watch(ctx context.Context, stop context.CancelFunc) {
	if r.runner == nil && r.opts.Duration == 0 {
		return
	}
	ticker := r.coach.clock.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			r.mu.Lock()
			done := r.advance(now)
			r.mu.Unlock()
			if done {
				stop()
				return
			}
		}
	}
}

func (r *run) handle(ctx context.Context, d pipeline.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := d.Frame.Time
	r.begin(now)
	if now.After(r.last) {
		r.last = now
	}
	if r.advance(now) {
		return pipeline.ErrStop
	}

	r.record(now, d)

	if d.Err != nil {
		r.skip(now, d.Frame.Seq, d.Err)
		return nil
	}

	rec, ok := r.coach.tracker.Process(r.session, d.Landmarks, now)
	if !ok {
		r.skip(now, d.Frame.Seq, geometry.ErrIncompleteLandmarks)
		return nil
	}
	r.records = append(r.records, rec)

	snap := r.session.Snapshot()
	r.emit(Event{Type: EventMeasurement, Time: now, Frame: rec.Frame, Record: &rec, Snapshot: &snap})

	switch r.opts.Kind {
	case database.KindCalibration:
		r.calibrate(now, rec.Frame)
	case database.KindTraining:
		r.score(now, rec)
	}
	return nil
}

func (r *run) record(now time.Time, d pipeline.Detection) {
	if r.opts.Record == "" || r.recErr {
		return
	}
	if r.recorder == nil {
		rec, err := framesource.CreateRecorder(r.opts.Record, r.start)
		if err != nil {
			r.recErr = true
			r.log.WithError(err).Error("cannot record landmarks")
			r.emit(Event{Type: EventError, Time: now, Reason: err.Error()})
			return
		}
		r.recorder = rec
	}

	landmarks := d.Landmarks
	if d.Err != nil {
		landmarks = nil
	}
	if err := r.recorder.Write(now, landmarks); err != nil {
		r.recErr = true
		r.log.WithError(err).Error("recording landmarks failed, recording stopped")
		r.emit(Event{Type: EventError, Time: now, Reason: err.Error()})
	}
}

func (r *run) closeRecorder() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recorder == nil {
		return
	}
	if err := r.recorder.Close(); err != nil {
		r.log.WithError(err).Error("closing replay file")
	}
	r.recorder = nil
}

func (r *run) skip(now time.Time, seq int, err error) {
	r.skipped++
	entry := r.log.WithFields(logrus.Fields{"frame": seq, "error": err})
	switch {
	case errors.Is(err, facemesh.ErrNoFace), errors.Is(err, geometry.ErrIncompleteLandmarks):
		entry.Debug("frame skipped")
	default:
		entry.Warn("landmark detection failed, frame skipped")
	}
	r.emit(Event{Type: EventSkipped, Time: now, Frame: seq, Reason: err.Error()})
}

// calibrate writes the maximum of the calibrated axis whenever it improves.
func (r *run) calibrate(now time.Time, frame int) {
	value := r.session.CalibrationResults().Max(r.mode)
	if value == r.lastMax {
		return
	}
	r.lastMax = value

	res := r.session.CalibrationResults()
	if _, err := r.stored.Update(r.mode, value); err != nil {
		r.log.WithError(err).Error("saving calibration")
		r.emit(Event{Type: EventError, Time: now, Frame: frame, Reason: err.Error()})
	}
	r.emit(Event{Type: EventCalibration, Time: now, Frame: frame, Calibration: &res})
}

func (r *run) score(now time.Time, rec motion.Record) {
	p, err := r.runner.Observe(rec)
	if err != nil {
		r.log.WithError(err).Error("scoring record")
		return
	}
	if !p.Scored {
		return
	}
	r.emit(Event{Type: EventProgress, Time: now, Frame: rec.Frame, Progress: &p})
	if p.MaxReached {
		r.log.WithField("repetition", p.Step.Repetition).Info("maximum reached")
		r.emit(Event{Type: EventMaxReached, Time: now, Frame: rec.Frame, Progress: &p})
	}
}

// finish builds the result and persists the session. Callers hold mu.
func (r *run) finish(ctx context.Context, stats pipeline.Stats) *Result {
	end := r.last
	if !r.started {
		r.start = r.coach.clock.Now()
		end = r.start
	}

	res := &Result{
		ID:        r.opts.ID,
		Kind:      r.opts.Kind,
		Action:    r.opts.Action,
		Patient:   r.opts.Patient,
		StartedAt: r.start,
		EndedAt:   end,
		Frames:    r.session.Frames(),
		Skipped:   r.skipped,
		Pipeline:  stats,
		Stats:     r.session.Stats(),
	}

	switch r.opts.Kind {
	case database.KindCalibration:
		res.Calibration = r.session.CalibrationResults()
		res.Calibrated = res.Calibration.Max(r.mode) != 0
		if value := res.Calibration.Max(r.mode); value != 0 {
			if _, err := r.stored.Update(r.mode, value); err != nil {
				r.log.WithError(err).Error("saving calibration")
			}
		}
	case database.KindTraining:
		res.Calibration = r.maxima
		res.Calibrated = r.runner.Calibrated()
		res.Repetitions = r.runner.Results()
		res.Completed = r.runner.Done()
	}

	r.persist(ctx, res)
	return res
}

func (r *run) persist(ctx context.Context, res *Result) {
	if r.coach.sessions == nil {
		return
	}

	s := &database.Session{
		ID:                 res.ID,
		Patient:            res.Patient,
		Kind:               res.Kind,
		Mode:               string(res.Action),
		StartedAt:          res.StartedAt,
		EndedAt:            res.EndedAt,
		Frames:             res.Frames,
		Skipped:            res.Skipped,
		CalibrationResults: res.Calibration,
		Stats:              res.Stats,
		Repetitions:        res.Repetitions,
	}

	// The run context may already be cancelled when the user stopped the run.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	if err := r.coach.sessions.SaveSession(ctx, s, r.records); err != nil {
		res.PersistError = err.Error()
		r.log.WithError(err).Error("saving session")
		r.emit(Event{Type: EventError, Time: res.EndedAt, Reason: err.Error()})
		return
	}
	res.Persisted = true
}
