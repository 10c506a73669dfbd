package handlers

import (
	"errors"
	"math"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/kozaktomas/mouthtrack/internal/calibration"
	"github.com/kozaktomas/mouthtrack/internal/motion"
)

// CalibrationStores returns the calibration file store of a patient.
type CalibrationStores interface {
	CalibrationStore(patient string) *calibration.Store
}

// CalibrationHandler reads and edits the persisted calibration maxima
type CalibrationHandler struct {
	stores CalibrationStores
	log    logrus.FieldLogger
}

// NewCalibrationHandler creates a new calibration handler
func NewCalibrationHandler(stores CalibrationStores, log logrus.FieldLogger) *CalibrationHandler {
	return &CalibrationHandler{stores: stores, log: log}
}

// CalibrationResponse is the stored calibration of a patient
type CalibrationResponse struct {
	Patient string `json:"patient"`
	File    string `json:"file"`
	motion.CalibrationResults
	Calibrated map[motion.State]bool `json:"calibrated"`
	Warning    string                `json:"warning,omitempty"`
}

// CalibrationUpdate sets selected maxima; omitted fields are kept
type CalibrationUpdate struct {
	MaxOpen  *float64 `json:"max_open"`
	MaxLeft  *float64 `json:"max_left"`
	MaxRight *float64 `json:"max_right"`
}

func (u CalibrationUpdate) validate() error {
	for _, v := range []*float64{u.MaxOpen, u.MaxLeft, u.MaxRight} {
		if v != nil && (math.IsNaN(*v) || math.IsInf(*v, 0)) {
			return errors.New("calibration values must be finite")
		}
	}
	if u.MaxOpen != nil && *u.MaxOpen < 0 {
		return errors.New("max_open must not be negative")
	}
	if u.MaxLeft != nil && *u.MaxLeft > 0 {
		return errors.New("max_left is a leftward displacement and must not be positive")
	}
	if u.MaxRight != nil && *u.MaxRight < 0 {
		return errors.New("max_right must not be negative")
	}
	return nil
}

func newCalibrationResponse(patient string, store *calibration.Store, res motion.CalibrationResults) CalibrationResponse {
	return CalibrationResponse{
		Patient:            patient,
		File:               store.Path(),
		CalibrationResults: res,
		Calibrated: map[motion.State]bool{
			motion.Open:  res.MaxOpen > 0,
			motion.Left:  res.MaxLeft < 0,
			motion.Right: res.MaxRight > 0,
		},
	}
}

// Get returns the stored maxima. A malformed file yields the readable values
// and a warning.
func (h *CalibrationHandler) Get(w http.ResponseWriter, r *http.Request) {
	patient := r.URL.Query().Get("patient")
	store := h.stores.CalibrationStore(patient)

	res, err := store.Load()
	var perr *calibration.ParseError
	switch {
	case errors.As(err, &perr):
		log := h.log.WithField("patient", sanitizeForLog(patient))
		if errors.Is(err, calibration.ErrPositiveLeft) {
			log.Warn("calibration file from an older release stores a positive left maximum, recalibrate left")
		} else {
			log.WithError(err).Warn("calibration file is malformed")
		}
	case err != nil:
		h.log.WithError(err).Error("reading calibration")
		respondError(w, http.StatusInternalServerError, "failed to read calibration")
		return
	}

	resp := newCalibrationResponse(patient, store, res)
	if perr != nil {
		resp.Warning = perr.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// Put merges the given maxima into the stored calibration
func (h *CalibrationHandler) Put(w http.ResponseWriter, r *http.Request) {
	var req CalibrationUpdate
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if err := req.validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	patient := r.URL.Query().Get("patient")
	store := h.stores.CalibrationStore(patient)

	res, err := store.Load()
	var perr *calibration.ParseError
	if err != nil && !errors.As(err, &perr) {
		h.log.WithError(err).Error("reading calibration")
		respondError(w, http.StatusInternalServerError, "failed to read calibration")
		return
	}
	if req.MaxOpen != nil {
		res.MaxOpen = *req.MaxOpen
	}
	if req.MaxLeft != nil {
		res.MaxLeft = *req.MaxLeft
	}
	if req.MaxRight != nil {
		res.MaxRight = *req.MaxRight
	}

	if err := store.Save(res); err != nil {
		h.log.WithError(err).Error("saving calibration")
		respondError(w, http.StatusInternalServerError, "failed to save calibration")
		return
	}
	h.log.WithField("patient", sanitizeForLog(patient)).Info("calibration updated")
	respondJSON(w, http.StatusOK, newCalibrationResponse(patient, store, res))
}

// Delete removes the stored calibration
func (h *CalibrationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	patient := r.URL.Query().Get("patient")
	if err := h.stores.CalibrationStore(patient).Reset(); err != nil {
		h.log.WithError(err).Error("resetting calibration")
		respondError(w, http.StatusInternalServerError, "failed to reset calibration")
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"reset": true})
}
