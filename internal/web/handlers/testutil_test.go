package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/mouthtrack/internal/coach"
	"github.com/kozaktomas/mouthtrack/internal/config"
	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/geometry"
	"github.com/kozaktomas/mouthtrack/internal/logging"
	"github.com/kozaktomas/mouthtrack/internal/pipeline"
)

var errTest = errors.New("test failure")

var testStart = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Calibration.Dir = t.TempDir()
	cfg.Training.Repetitions = 1
	cfg.Training.StepInterval = time.Second
	return cfg
}

func mouth(vertical float64) geometry.LandmarkSet {
	return geometry.LandmarkSet{
		geometry.TopLipCenter:     {X: 0.5, Y: 0.5},
		geometry.BottomLipCenter:  {X: 0.5, Y: 0.5 + vertical},
		geometry.LeftMouthCorner:  {X: 0.4, Y: 0.5 + vertical/2},
		geometry.RightMouthCorner: {X: 0.6, Y: 0.5 + vertical/2},
	}
}

// sliceSource replays prelabeled frames 0.5 s apart.
type sliceSource struct {
	openings []float64
	err      error // returned after the frames instead of io.EOF
	next     int
}

func (s *sliceSource) Next(ctx context.Context) (pipeline.Frame, error) {
	if s.next >= len(s.openings) {
		if s.err != nil {
			return pipeline.Frame{}, s.err
		}
		return pipeline.Frame{}, io.EOF
	}
	i := s.next
	s.next++
	return pipeline.Frame{
		Seq:        i + 1,
		Time:       testStart.Add(time.Duration(i) * 500 * time.Millisecond),
		Landmarks:  mouth(s.openings[i]),
		Prelabeled: true,
	}, nil
}

func (s *sliceSource) Close() error { return nil }
func (s *sliceSource) Live() bool   { return false }

// waitingSource is a live source producing nothing until the run stops.
type waitingSource struct{}

func (waitingSource) Next(ctx context.Context) (pipeline.Frame, error) {
	<-ctx.Done()
	return pipeline.Frame{}, ctx.Err()
}

func (waitingSource) Close() error { return nil }
func (waitingSource) Live() bool   { return true }

// testSources opens "frames" as a short calibration recording, "flaky" as a
// recording that fails after two frames and "live" as a source that waits for
// cancellation.
func testSources(spec string) (pipeline.Source, error) {
	switch spec {
	case "frames":
		return &sliceSource{openings: []float64{0, 0.05, 0.12, 0.15, 0.02}}, nil
	case "flaky":
		return &sliceSource{openings: []float64{0, 0.12}, err: errors.New("disk read error")}, nil
	case "live":
		return waitingSource{}, nil
	default:
		return nil, io.ErrUnexpectedEOF
	}
}

func newTestCoach(t *testing.T, cfg *config.Config, store database.SessionWriter) *coach.Coach {
	t.Helper()
	return coach.New(coach.Deps{
		Config:     cfg,
		Sessions:   store,
		Logger:     logging.Discard(),
		OpenSource: testSources,
	})
}

// withURLParam adds a chi URL parameter to the request.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		rctx = chi.NewRouteContext()
	}
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rec.Body.String(), err)
	}
	return v
}

func assertStatusCode(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func assertErrorMessage(t *testing.T, rec *httptest.ResponseRecorder, want string) {
	t.Helper()
	body := decode[map[string]string](t, rec)
	if body["error"] != want {
		t.Errorf("expected error %q, got %q", want, body["error"])
	}
}

func waitDone(t *testing.T, job *RunJob) {
	t.Helper()
	select {
	case <-job.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("run %s did not finish", job.ID)
	}
}
