package handlers

import (
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/logging"
	"github.com/kozaktomas/mouthtrack/internal/motion"
)

func TestHealthCheck(t *testing.T) {
	rec := httptest.NewRecorder()
	HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assertStatusCode(t, rec, http.StatusOK)
	if got := decode[map[string]string](t, rec)["status"]; got != "ok" {
		t.Errorf("expected status ok, got %q", got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected JSON content type, got %q", ct)
	}
}

func TestConfigHandler_Get(t *testing.T) {
	cfg := testConfig(t)
	cfg.Training.StepInterval = 1500 * time.Millisecond
	h := NewConfigHandler(cfg, "sqlite")

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/config", nil))

	assertStatusCode(t, rec, http.StatusOK)
	resp := decode[ConfigResponse](t, rec)
	if resp.Tracking.OpenThreshold != cfg.Tracking.OpenThreshold {
		t.Errorf("open threshold = %v, want %v", resp.Tracking.OpenThreshold, cfg.Tracking.OpenThreshold)
	}
	if resp.Training.StepIntervalSeconds != 1.5 {
		t.Errorf("step interval = %v, want 1.5", resp.Training.StepIntervalSeconds)
	}
	if resp.Training.Repetitions != 1 {
		t.Errorf("repetitions = %d, want 1", resp.Training.Repetitions)
	}
	if resp.Database != "sqlite" {
		t.Errorf("database = %q, want sqlite", resp.Database)
	}
}

func TestSanitizeForLog(t *testing.T) {
	if got := sanitizeForLog("jan\r\nfake entry"); got != "janfake entry" {
		t.Errorf("sanitizeForLog = %q", got)
	}
}

func newCalibrationHandler(t *testing.T) *CalibrationHandler {
	t.Helper()
	return NewCalibrationHandler(newTestCoach(t, testConfig(t), nil), logging.Discard())
}

func TestCalibrationHandler_EmptyFile(t *testing.T) {
	h := newCalibrationHandler(t)

	rec := httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calibration?patient=Jan", nil))

	assertStatusCode(t, rec, http.StatusOK)
	resp := decode[CalibrationResponse](t, rec)
	if resp.Patient != "Jan" {
		t.Errorf("patient = %q", resp.Patient)
	}
	if resp.CalibrationResults != (motion.CalibrationResults{}) {
		t.Errorf("expected zero maxima, got %+v", resp.CalibrationResults)
	}
	for _, action := range motion.Actions {
		if resp.Calibrated[action] {
			t.Errorf("%s should not be calibrated", action)
		}
	}
}

func TestCalibrationHandler_PutMerges(t *testing.T) {
	h := newCalibrationHandler(t)

	rec := httptest.NewRecorder()
	h.Put(rec, jsonRequest(http.MethodPut, "/api/v1/calibration?patient=Jan", `{"max_open": 0.2, "max_left": -0.05}`))
	assertStatusCode(t, rec, http.StatusOK)

	rec = httptest.NewRecorder()
	h.Put(rec, jsonRequest(http.MethodPut, "/api/v1/calibration?patient=Jan", `{"max_right": 0.07}`))
	assertStatusCode(t, rec, http.StatusOK)

	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calibration?patient=Jan", nil))
	resp := decode[CalibrationResponse](t, rec)

	want := motion.CalibrationResults{MaxOpen: 0.2, MaxLeft: -0.05, MaxRight: 0.07}
	if resp.CalibrationResults != want {
		t.Errorf("maxima = %+v, want %+v", resp.CalibrationResults, want)
	}
	if !resp.Calibrated[motion.Open] || !resp.Calibrated[motion.Left] || !resp.Calibrated[motion.Right] {
		t.Errorf("expected all actions calibrated, got %v", resp.Calibrated)
	}

	// Patients have separate files
	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calibration?patient=Eva", nil))
	if other := decode[CalibrationResponse](t, rec); other.MaxOpen != 0 {
		t.Errorf("other patient max_open = %v, want 0", other.MaxOpen)
	}
}

func TestCalibrationHandler_PutValidation(t *testing.T) {
	h := newCalibrationHandler(t)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"positive left", `{"max_left": 0.1}`, "max_left is a leftward displacement and must not be positive"},
		{"negative open", `{"max_open": -0.1}`, "max_open must not be negative"},
		{"negative right", `{"max_right": -0.1}`, "max_right must not be negative"},
		{"unknown field", `{"max_up": 0.1}`, errInvalidRequestBody},
		{"empty body", ``, errInvalidRequestBody},
		{"not json", `max_open=1`, errInvalidRequestBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Put(rec, jsonRequest(http.MethodPut, "/api/v1/calibration", tt.body))

			assertStatusCode(t, rec, http.StatusBadRequest)
			assertErrorMessage(t, rec, tt.want)
		})
	}
}

func TestCalibrationHandler_Delete(t *testing.T) {
	h := newCalibrationHandler(t)

	rec := httptest.NewRecorder()
	h.Put(rec, jsonRequest(http.MethodPut, "/api/v1/calibration", `{"max_open": 0.2}`))
	assertStatusCode(t, rec, http.StatusOK)
	file := decode[CalibrationResponse](t, rec).File

	rec = httptest.NewRecorder()
	h.Delete(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/calibration", nil))
	assertStatusCode(t, rec, http.StatusOK)

	if _, err := os.Stat(file); !os.IsNotExist(err) {
		t.Errorf("expected %s to be removed, stat error: %v", file, err)
	}

	// Deleting a missing file is fine
	rec = httptest.NewRecorder()
	h.Delete(rec, httptest.NewRequest(http.MethodDelete, "/api/v1/calibration", nil))
	assertStatusCode(t, rec, http.StatusOK)
}

func TestCalibrationHandler_MalformedFile(t *testing.T) {
	h := newCalibrationHandler(t)

	rec := httptest.NewRecorder()
	h.Put(rec, jsonRequest(http.MethodPut, "/api/v1/calibration", `{"max_open": 0.2}`))
	file := decode[CalibrationResponse](t, rec).File

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, append(data, []byte("max_left: banana\n")...), 0o644); err != nil {
		t.Fatal(err)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calibration", nil))

	assertStatusCode(t, rec, http.StatusOK)
	resp := decode[CalibrationResponse](t, rec)
	if resp.MaxOpen != 0.2 {
		t.Errorf("max_open = %v, want 0.2", resp.MaxOpen)
	}
	if !strings.Contains(resp.Warning, "malformed") {
		t.Errorf("expected a malformed file warning, got %q", resp.Warning)
	}
}

func TestCalibrationHandler_LegacyPositiveLeft(t *testing.T) {
	h := newCalibrationHandler(t)

	rec := httptest.NewRecorder()
	h.Put(rec, jsonRequest(http.MethodPut, "/api/v1/calibration", `{"max_open": 0.2}`))
	file := decode[CalibrationResponse](t, rec).File

	legacy := "最大张嘴位移: 0.150\n最大左侧位移: 0.060\n"
	if err := os.WriteFile(file, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	rec = httptest.NewRecorder()
	h.Get(rec, httptest.NewRequest(http.MethodGet, "/api/v1/calibration", nil))

	assertStatusCode(t, rec, http.StatusOK)
	resp := decode[CalibrationResponse](t, rec)
	if resp.MaxLeft != 0.06 {
		t.Errorf("max_left = %v, want the stored 0.06", resp.MaxLeft)
	}
	if !strings.Contains(resp.Warning, "recalibrate left") {
		t.Errorf("expected a recalibrate warning, got %q", resp.Warning)
	}
}
