package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kozaktomas/mouthtrack/internal/database"
	"github.com/kozaktomas/mouthtrack/internal/database/mock"
	"github.com/kozaktomas/mouthtrack/internal/database/storetest"
	"github.com/kozaktomas/mouthtrack/internal/logging"
	"github.com/kozaktomas/mouthtrack/internal/motion"
)

func newSessionsHandler(t *testing.T) (*SessionsHandler, *mock.MockStore) {
	t.Helper()
	store := mock.NewMockStore()
	ctx := context.Background()

	calib := storetest.Session("calib-1", "Jan", database.KindCalibration, 0)
	if err := store.SaveSession(ctx, calib, storetest.Records(calib.StartedAt, 20)); err != nil {
		t.Fatal(err)
	}
	train := storetest.Session("train-1", "Jan", database.KindTraining, time.Hour)
	if err := store.SaveSession(ctx, train, storetest.Records(train.StartedAt, 10)); err != nil {
		t.Fatal(err)
	}
	other := storetest.Session("calib-2", "Eva", database.KindCalibration, 2*time.Hour)
	if err := store.SaveSession(ctx, other, nil); err != nil {
		t.Fatal(err)
	}
	return NewSessionsHandler(store, logging.Discard()), store
}

func TestSessionsHandler_NoDatabase(t *testing.T) {
	h := NewSessionsHandler(nil, logging.Discard())

	for name, fn := range map[string]http.HandlerFunc{
		"list":         h.List,
		"get":          h.Get,
		"measurements": h.Measurements,
		"chart":        h.Chart,
		"delete":       h.Delete,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			fn(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/x", nil), "id", "x"))
			assertStatusCode(t, rec, http.StatusServiceUnavailable)
			assertErrorMessage(t, rec, errNoDatabase)
		})
	}
}

func TestSessionsHandler_List(t *testing.T) {
	h, _ := newSessionsHandler(t)

	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"all newest first", "", []string{"calib-2", "train-1", "calib-1"}},
		{"by patient", "?patient=Jan", []string{"train-1", "calib-1"}},
		{"by kind", "?kind=calibration", []string{"calib-2", "calib-1"}},
		{"paged", "?limit=1&offset=1", []string{"train-1"}},
		{"past the end", "?offset=10", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions"+tt.query, nil))
			assertStatusCode(t, rec, http.StatusOK)

			sessions := decode[[]database.Session](t, rec)
			got := make([]string, len(sessions))
			for i, s := range sessions {
				got[i] = s.ID
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionsHandler_ListInvalidQuery(t *testing.T) {
	h, _ := newSessionsHandler(t)

	for _, query := range []string{"?kind=warmup", "?limit=-1", "?offset=abc"} {
		rec := httptest.NewRecorder()
		h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions"+query, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", query, rec.Code)
		}
	}
}

func TestSessionsHandler_Get(t *testing.T) {
	h, _ := newSessionsHandler(t)

	rec := httptest.NewRecorder()
	h.Get(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/train-1", nil), "id", "train-1"))
	assertStatusCode(t, rec, http.StatusOK)

	resp := decode[SessionResponse](t, rec)
	if resp.Session == nil || resp.ID != "train-1" {
		t.Fatalf("session = %+v", resp.Session)
	}
	if resp.DurationSeconds != 40 {
		t.Errorf("duration = %v, want 40", resp.DurationSeconds)
	}
	if resp.Summary.Records != 10 {
		t.Errorf("summary records = %d, want 10", resp.Summary.Records)
	}
	if len(resp.Repetitions) != 2 {
		t.Errorf("expected 2 repetitions, got %d", len(resp.Repetitions))
	}
	if _, ok := resp.Summary.States[motion.Neutral]; !ok {
		t.Errorf("summary states = %v", resp.Summary.States)
	}
}

func TestSessionsHandler_Measurements(t *testing.T) {
	h, _ := newSessionsHandler(t)

	rec := httptest.NewRecorder()
	h.Measurements(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/calib-1/measurements", nil), "id", "calib-1"))
	assertStatusCode(t, rec, http.StatusOK)

	records := decode[[]motion.Record](t, rec)
	if len(records) != 20 {
		t.Fatalf("expected 20 records, got %d", len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i].Frame <= records[i-1].Frame {
			t.Fatalf("records out of frame order at %d", i)
		}
	}
}

func TestSessionsHandler_Chart(t *testing.T) {
	h, _ := newSessionsHandler(t)

	rec := httptest.NewRecorder()
	h.Chart(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/calib-1/chart", nil), "id", "calib-1"))
	assertStatusCode(t, rec, http.StatusOK)

	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q", ct)
	}
	body := rec.Body.String()
	for _, want := range []string{"echarts", "Jan: calibration open", "displacement"} {
		if !strings.Contains(body, want) {
			t.Errorf("chart page does not contain %q", want)
		}
	}
}

func TestSessionsHandler_NotFound(t *testing.T) {
	h, _ := newSessionsHandler(t)

	for name, fn := range map[string]http.HandlerFunc{
		"get":          h.Get,
		"measurements": h.Measurements,
		"chart":        h.Chart,
		"delete":       h.Delete,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			fn(rec, withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/sessions/nope", nil), "id", "nope"))
			assertStatusCode(t, rec, http.StatusNotFound)
			assertErrorMessage(t, rec, "session not found")
		})
	}
}

func TestSessionsHandler_Delete(t *testing.T) {
	h, store := newSessionsHandler(t)

	rec := httptest.NewRecorder()
	h.Delete(rec, withURLParam(httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/calib-1", nil), "id", "calib-1"))
	assertStatusCode(t, rec, http.StatusNoContent)

	if _, err := store.GetSession(context.Background(), "calib-1"); err != database.ErrNotFound {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestSessionsHandler_StoreError(t *testing.T) {
	h, store := newSessionsHandler(t)
	store.ListError = errTest

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))
	assertStatusCode(t, rec, http.StatusInternalServerError)
	assertErrorMessage(t, rec, "failed to list sessions")
}
