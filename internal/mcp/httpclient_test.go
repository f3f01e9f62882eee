package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/models"
	"github.com/meltforce/intervals/internal/storage"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by path. Verifies the HTTP client sends correct paths and query params.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

// TestListRoutineSummaries verifies the HTTP client parses the listing.
func TestListRoutineSummaries(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/routines": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, []models.RoutineSummary{models.DefaultRoutineRow().Summary()})
		},
	})
	defer ts.Close()

	summaries, err := NewHTTPClient(ts.URL).ListRoutineSummaries(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 1 || summaries[0].TotalPhases != 9 {
		t.Errorf("summaries = %+v", summaries)
	}
}

// TestGetRoutineByName verifies the name is resolved through the listing and
// the full routine fetched by ID.
func TestGetRoutineByName(t *testing.T) {
	def := models.DefaultRoutineRow()
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/routines": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, []models.RoutineSummary{def.Summary()})
		},
		"/api/v1/routines/" + def.ID.String(): func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, def)
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL + "/")
	row, err := client.GetRoutineByName(context.Background(), models.FourByFourName)
	if err != nil {
		t.Fatal(err)
	}
	if len(row.Phases) != 9 || row.Phases[8].Name != "Cool Down" {
		t.Errorf("phases = %+v", row.Phases)
	}

	if _, err := client.GetRoutineByName(context.Background(), "Pyramid"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("missing name error = %v, want ErrNotFound", err)
	}
}

// TestHTTPClientNotFound verifies a 404 maps to storage.ErrNotFound so tool
// handlers report it the same way in local and remote mode.
func TestHTTPClientNotFound(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL).GetTimerSession(context.Background(), uuid.New())
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

// TestListTimerSessionsLimit verifies the limit query parameter.
func TestListTimerSessionsLimit(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/sessions": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "5" {
				t.Errorf("limit=%q, want 5", got)
			}
			writeTestJSON(t, w, []models.TimerSessionRow{{ID: uuid.New(), State: models.TimerFinished, PhaseIndex: 8}})
		},
	})
	defer ts.Close()

	sessions, err := NewHTTPClient(ts.URL).ListTimerSessions(context.Background(), "ignored", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(sessions) != 1 || sessions[0].State != models.TimerFinished {
		t.Errorf("sessions = %+v", sessions)
	}
}

// TestHTTPClientServerError verifies non-200 responses surface as errors.
func TestHTTPClientServerError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"/api/v1/stats": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
		},
	})
	defer ts.Close()

	_, err := NewHTTPClient(ts.URL).GetCatalogStats(context.Background(), "")
	if err == nil || errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want non-404 failure", err)
	}
}
