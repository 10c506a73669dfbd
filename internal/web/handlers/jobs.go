package handlers

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/coach"
	"github.com/kozaktomas/mouthtrack/internal/constants"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/motion"
	"github.com/kozaktomas/mouthtrack/internal/training"
)

// JobStatus represents the status of a run.
type JobStatus string

// JobStatus constants define the lifecycle states of a run.
const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// eventCancelling is broadcast when a client asks a run to stop. The run
// still finishes and emits its completed event.
const eventCancelling coach.EventType = "cancelling"

// isJobTerminal returns true if the job status is a terminal state
func isJobTerminal(status JobStatus) bool {
	return status == JobStatusCompleted || status == JobStatusFailed || status == JobStatusCancelled
}

// EventBroadcaster provides listener management and event broadcasting for runs.
type EventBroadcaster struct {
	cancel    context.CancelFunc
	listeners []chan coach.Event
	mu        sync.RWMutex
}

// AddListener adds an event listener.
func (b *EventBroadcaster) AddListener() chan coach.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan coach.Event, constants.EventChannelBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// RemoveListener removes an event listener.
func (b *EventBroadcaster) RemoveListener(ch chan coach.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// SendEvent sends an event to all listeners.
func (b *EventBroadcaster) SendEvent(event coach.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// RunView is the state of a run as reported to clients.
type RunView struct {
	ID          string        `json:"id"`
	Kind        database.Kind `json:"kind"`
	Action      motion.State  `json:"action"`
	Patient     string        `json:"patient"`
	Source      string        `json:"source"`
	Status      JobStatus     `json:"status"`
	Error       string        `json:"error,omitempty"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`

	Snapshot    *motion.Snapshot           `json:"snapshot,omitempty"`
	Step        *training.Step             `json:"step,omitempty"`
	Progress    *training.Progress         `json:"progress,omitempty"`
	Calibration *motion.CalibrationResults `json:"calibration,omitempty"`
	Result      *coach.Result              `json:"result,omitempty"`
}

// RunJob is a calibration or training run started over the API. It is the
// coach.Sink of its run and keeps the latest live state for status queries.
// The embedded RunView is guarded by the broadcaster mutex.
type RunJob struct {
	EventBroadcaster
	RunView

	cancelRequested bool
	done            chan struct{}
}

// GetStatus returns the current run status.
func (j *RunJob) GetStatus() JobStatus {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// View returns a copy of the run state.
func (j *RunJob) View() RunView {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.RunView
}

// Done is closed once the run has finished.
func (j *RunJob) Done() <-chan struct{} {
	return j.done
}

// Emit records the event in the live state and broadcasts it.
func (j *RunJob) Emit(e coach.Event) {
	j.mu.Lock()
	switch e.Type {
	case coach.EventMeasurement:
		j.Snapshot = e.Snapshot
	case coach.EventStep:
		j.Step = e.Step
	case coach.EventProgress:
		j.Progress = e.Progress
	case coach.EventCalibration:
		j.Calibration = e.Calibration
	case coach.EventCompleted:
		j.Result = e.Result
		if e.Result != nil && e.Result.Error != "" {
			j.finishLocked(JobStatusFailed, e.Result.Error, e.Time)
		} else {
			j.finishLocked(JobStatusCompleted, "", e.Time)
		}
	}
	j.mu.Unlock()

	j.SendEvent(e)
}

// Cancel asks the run to stop.
func (j *RunJob) Cancel() {
	j.mu.Lock()
	j.cancelRequested = true
	cancel := j.cancel
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.SendEvent(coach.Event{Type: eventCancelling, RunID: j.ID, Time: time.Now()})
}

func (j *RunJob) start(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
	j.Status = JobStatusRunning
}

// fail marks a run that returned an error. A run that already completed keeps
// its status.
func (j *RunJob) fail(err error) {
	j.mu.Lock()
	terminal := isJobTerminal(j.Status)
	if !terminal {
		j.finishLocked(JobStatusFailed, err.Error(), time.Now())
	}
	j.mu.Unlock()

	if !terminal {
		j.SendEvent(coach.Event{Type: coach.EventError, RunID: j.ID, Time: time.Now(), Reason: err.Error()})
	}
}

func (j *RunJob) finishLocked(status JobStatus, msg string, at time.Time) {
	if isJobTerminal(j.Status) {
		return
	}
	if status == JobStatusCompleted && j.cancelRequested {
		status = JobStatusCancelled
	}
	j.Status = status
	j.Error = msg
	j.CompletedAt = &at
}

// RunManager keeps the runs started over the API. Finished runs beyond
// constants.MaxFinishedRuns are dropped, oldest first.
type RunManager struct {
	jobs map[string]*RunJob
	mu   sync.RWMutex
	wg   sync.WaitGroup
}

// NewRunManager creates a new run manager.
func NewRunManager() *RunManager {
	return &RunManager{
		jobs: make(map[string]*RunJob),
	}
}

// CreateJob registers a pending run.
func (m *RunManager) CreateJob(id string, opts coach.Options) *RunJob {
	job := &RunJob{
		RunView: RunView{
			ID:        id,
			Kind:      opts.Kind,
			Action:    opts.Action,
			Patient:   opts.Patient,
			Source:    opts.Source,
			Status:    JobStatusPending,
			StartedAt: time.Now(),
		},
		done: make(chan struct{}),
	}

	m.mu.Lock()
	m.jobs[id] = job
	m.pruneLocked()
	m.mu.Unlock()

	return job
}

// Go runs fn for job in its own goroutine. fn receives a context cancelled
// by RunJob.Cancel.
func (m *RunManager) Go(job *RunJob, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithCancel(context.Background())
	job.start(cancel)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer close(job.done)
		defer cancel()
		if err := fn(ctx); err != nil {
			job.fail(err)
		}
	}()
}

// GetJob retrieves a run by ID.
func (m *RunManager) GetJob(id string) *RunJob {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.jobs[id]
}

// ListJobs returns all runs, newest first.
func (m *RunManager) ListJobs() []*RunJob {
	m.mu.RLock()
	jobs := make([]*RunJob, 0, len(m.jobs))
	for _, job := range m.jobs {
		jobs = append(jobs, job)
	}
	m.mu.RUnlock()

	slices.SortFunc(jobs, func(a, b *RunJob) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return jobs
}

// Shutdown cancels all active runs and waits for them to finish or ctx to
// end.
func (m *RunManager) Shutdown(ctx context.Context) error {
	for _, job := range m.ListJobs() {
		if !isJobTerminal(job.GetStatus()) {
			job.Cancel()
		}
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *RunManager) pruneLocked() {
	var finished []*RunJob
	for _, job := range m.jobs {
		if isJobTerminal(job.GetStatus()) {
			finished = append(finished, job)
		}
	}
	if len(finished) <= constants.MaxFinishedRuns {
		return
	}
	slices.SortFunc(finished, func(a, b *RunJob) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	for _, job := range finished[:len(finished)-constants.MaxFinishedRuns] {
		delete(m.jobs, job.ID)
	}
}
