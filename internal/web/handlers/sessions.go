package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/mouthtrack/internal/constants"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/report"
)

// SessionsHandler serves stored sessions. A nil store answers 503.
type SessionsHandler struct {
	store database.Store
	log   logrus.FieldLogger
}

// NewSessionsHandler creates a new sessions handler
func NewSessionsHandler(store database.Store, log logrus.FieldLogger) *SessionsHandler {
	return &SessionsHandler{store: store, log: log}
}

// SessionResponse is a stored session with a summary of its measurements
type SessionResponse struct {
	*database.Session
	DurationSeconds float64        `json:"duration_seconds"`
	Summary         report.Summary `json:"summary"`
}

func (h *SessionsHandler) available(w http.ResponseWriter) bool {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, errNoDatabase)
		return false
	}
	return true
}

func (h *SessionsHandler) respondStoreError(w http.ResponseWriter, err error, action string) {
	if errors.Is(err, database.ErrNotFound) {
		respondError(w, http.StatusNotFound, "session not found")
		return
	}
	h.log.WithError(err).Error(action)
	respondError(w, http.StatusInternalServerError, "failed to "+action)
}

// List returns stored sessions, newest first.
// Query: patient, kind, limit (default 100, max 1000), offset.
func (h *SessionsHandler) List(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}

	q := r.URL.Query()
	filter := database.SessionFilter{Patient: q.Get("patient")}
	if k := q.Get("kind"); k != "" {
		kind, ok := database.ParseKind(k)
		if !ok {
			respondError(w, http.StatusBadRequest, "kind must be calibration or training")
			return
		}
		filter.Kind = kind
	}

	var err error
	if filter.Limit, err = queryInt(r, "limit", constants.DefaultHandlerPageSize); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if filter.Limit == 0 || filter.Limit > constants.MaxHandlerPageSize {
		filter.Limit = constants.MaxHandlerPageSize
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sessions, err := h.store.ListSessions(r.Context(), filter)
	if err != nil {
		h.respondStoreError(w, err, "list sessions")
		return
	}
	if sessions == nil {
		sessions = []database.Session{}
	}
	respondJSON(w, http.StatusOK, sessions)
}

// Get returns one session with a summary of its measurements
func (h *SessionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id := chi.URLParam(r, "id")

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "get session")
		return
	}
	records, err := h.store.GetMeasurements(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "get measurements")
		return
	}

	respondJSON(w, http.StatusOK, SessionResponse{
		Session:         session,
		DurationSeconds: session.Duration().Seconds(),
		Summary:         report.Summarize(records),
	})
}

// Measurements returns the stored records of a session
func (h *SessionsHandler) Measurements(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	records, err := h.store.GetMeasurements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.respondStoreError(w, err, "get measurements")
		return
	}
	respondJSON(w, http.StatusOK, records)
}

// Chart renders the measurements of a session as an HTML line chart
func (h *SessionsHandler) Chart(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id := chi.URLParam(r, "id")

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "get session")
		return
	}
	records, err := h.store.GetMeasurements(r.Context(), id)
	if err != nil {
		h.respondStoreError(w, err, "get measurements")
		return
	}

	title := fmt.Sprintf("%s %s", session.Kind, session.Mode)
	if session.Patient != "" {
		title = session.Patient + ": " + title
	}

	var buf bytes.Buffer
	if err := report.RenderChart(&buf, records, report.ChartOptions{
		Title:    title,
		Subtitle: session.StartedAt.Format("2006-01-02 15:04:05"),
	}); err != nil {
		h.log.WithError(err).Error("rendering chart")
		respondError(w, http.StatusInternalServerError, "failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Delete removes a stored session
func (h *SessionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.available(w) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		h.respondStoreError(w, err, "delete session")
		return
	}
	h.log.WithField("session", sanitizeForLog(id)).Info("session deleted")
	w.WriteHeader(http.StatusNoContent)
}
