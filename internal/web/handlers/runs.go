package handlers

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"slices"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/mouthtrack/internal/coach"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// Runner executes a coach run. *coach.Coach implements it.
type Runner interface {
	Run(ctx context.Context, opts coach.Options, sink coach.Sink) (*coach.Result, error)
}

// RunsHandler starts, lists, streams and stops runs
type RunsHandler struct {
	runner   Runner
	runs     *RunManager
	validate *validator.Validate
	log      logrus.FieldLogger

	sources  Sources
	upgrader wsUpgrader
}

// Sources lists the frame sources API clients may run. A request naming no
// source runs Default; any other source must appear in Allowed verbatim.
type Sources struct {
	Default string
	Allowed []string
}

var (
	errNoSource         = errors.New("no frame source configured")
	errSourceNotAllowed = errors.New("source not allowed")
)

func (s Sources) resolve(requested string) (string, error) {
	if requested == "" || requested == s.Default {
		if s.Default == "" {
			return "", errNoSource
		}
		return s.Default, nil
	}
	if slices.Contains(s.Allowed, requested) {
		return requested, nil
	}
	return "", errSourceNotAllowed
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runner Runner, runs *RunManager, sources Sources, checkOrigin func(*http.Request) bool, log logrus.FieldLogger) *RunsHandler {
	return &RunsHandler{
		runner:   runner,
		runs:     runs,
		validate: newValidator(),
		log:      log,
		sources:  sources,
		upgrader: newUpgrader(checkOrigin),
	}
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// StartRunRequest represents a request to start a run
type StartRunRequest struct {
	Kind            string  `json:"kind" validate:"required,oneof=calibration training"`
	Action          string  `json:"action" validate:"required,oneof=open left right"`
	Patient         string  `json:"patient" validate:"max=200"`
	Source          string  `json:"source"`
	DurationSeconds float64 `json:"duration_seconds" validate:"gte=0,lte=86400"`
	Repetitions     int     `json:"repetitions" validate:"gte=0,lte=100"`
}

// StartRunResponse represents the response of a started run
type StartRunResponse struct {
	RunID  string    `json:"run_id"`
	Status JobStatus `json:"status"`
}

func (h *RunsHandler) options(req StartRunRequest) (coach.Options, error) {
	kind, _ := database.ParseKind(req.Kind)
	source, err := h.sources.resolve(strings.TrimSpace(req.Source))
	if err != nil {
		return coach.Options{}, err
	}
	return coach.Options{
		Kind:        kind,
		Action:      motion.State(req.Action),
		Patient:     strings.TrimSpace(req.Patient),
		Source:      source,
		Duration:    time.Duration(req.DurationSeconds * float64(time.Second)),
		Repetitions: req.Repetitions,
	}, nil
}

// Start starts a run in the background
func (h *RunsHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			respondError(w, http.StatusBadRequest, "invalid field "+verrs[0].Field())
			return
		}
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts, err := h.options(req)
	if err != nil {
		h.log.WithField("source", sanitizeForLog(req.Source)).Warn("rejected run source")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	opts.ID = uuid.NewString()
	if err := opts.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job := h.runs.CreateJob(opts.ID, opts)
	log := h.log.WithFields(logrus.Fields{"run": opts.ID, "kind": opts.Kind, "action": opts.Action})
	h.runs.Go(job, func(ctx context.Context) error {
		_, err := h.runner.Run(ctx, opts, job)
		if err != nil {
			log.WithError(err).Error("run failed")
		}
		return err
	})
	log.Info("run started over API")

	respondJSON(w, http.StatusAccepted, StartRunResponse{
		RunID:  job.ID,
		Status: job.GetStatus(),
	})
}

// List returns all known runs, newest first
func (h *RunsHandler) List(w http.ResponseWriter, r *http.Request) {
	jobs := h.runs.ListJobs()
	views := make([]RunView, 0, len(jobs))
	for _, job := range jobs {
		views = append(views, job.View())
	}
	respondJSON(w, http.StatusOK, views)
}

// Status returns a run with its live snapshot
func (h *RunsHandler) Status(w http.ResponseWriter, r *http.Request) {
	job := h.runs.GetJob(chi.URLParam(r, "runId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	respondJSON(w, http.StatusOK, job.View())
}

// Events streams run events over SSE
func (h *RunsHandler) Events(w http.ResponseWriter, r *http.Request) {
	streamSSEEvents(w, r, h.runs)
}

// Cancel stops a run. The run still finishes and persists what it recorded.
func (h *RunsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	job := h.runs.GetJob(chi.URLParam(r, "runId"))
	if job == nil {
		respondError(w, http.StatusNotFound, "run not found")
		return
	}
	if isJobTerminal(job.GetStatus()) {
		respondError(w, http.StatusConflict, "run already finished")
		return
	}
	job.Cancel()
	h.log.WithField("run", job.ID).Info("run cancelled over API")
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}
