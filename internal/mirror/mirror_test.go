package mirror

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/ingest"
	"github.com/meltforce/intervals/internal/ingest/routines"
	"github.com/meltforce/intervals/internal/models"
)

var quietLog = slog.New(slog.NewTextHandler(io.Discard, nil))

// catalogServer serves a mutable routine catalog the way the REST API does.
type catalogServer struct {
	mu       sync.Mutex
	routines []models.RoutineRow
}

func (c *catalogServer) set(rows ...models.RoutineRow) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.routines = rows
}

func (c *catalogServer) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/routines", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		summaries := make([]models.RoutineSummary, 0, len(c.routines))
		for _, row := range c.routines {
			summaries = append(summaries, row.Summary())
		}
		json.NewEncoder(w).Encode(summaries) //nolint:errcheck
	})
	mux.HandleFunc("GET /api/v1/routines/{id}", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, row := range c.routines {
			if row.ID.String() == r.PathValue("id") {
				json.NewEncoder(w).Encode(row) //nolint:errcheck
				return
			}
		}
		http.Error(w, `{"error":"routine not found"}`, http.StatusNotFound)
	})
	return mux
}

func newTestState(t *testing.T) *StateDB {
	t.Helper()
	state, err := OpenStateDB(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { state.Close() })
	return state
}

var ladder = models.RoutineRow{
	ID:   uuid.MustParse("0b8e4f7a-61c2-4d0e-9a55-3f2d7c1e8b90"),
	Name: "Ladder",
	Phases: []models.WorkoutPhase{
		{Name: "Jog", Duration: 5},
		{Name: "Sprint", Duration: 1},
	},
}

// TestPull verifies new, unchanged, updated and removed routines across
// successive pulls.
func TestPull(t *testing.T) {
	catalog := &catalogServer{}
	catalog.set(models.DefaultRoutineRow(), ladder)
	ts := httptest.NewServer(catalog.handler())
	defer ts.Close()

	state := newTestState(t)
	client := NewClient(ts.URL, "")

	m := New(client, state, 2, quietLog)
	if err := m.Pull(context.Background()); err != nil {
		t.Fatalf("first pull: %v", err)
	}
	if s := m.Stats(); s.RoutinesListed != 2 || s.RoutinesNew != 2 {
		t.Errorf("first pull stats = %+v", s)
	}

	m = New(client, state, 2, quietLog)
	if err := m.Pull(context.Background()); err != nil {
		t.Fatalf("second pull: %v", err)
	}
	if s := m.Stats(); s.RoutinesUnchanged != 2 || s.RoutinesNew != 0 {
		t.Errorf("second pull stats = %+v", s)
	}

	changed := ladder
	changed.Phases = append([]models.WorkoutPhase{}, ladder.Phases...)
	changed.Phases = append(changed.Phases, models.WorkoutPhase{Name: "Walk", Duration: 3})
	catalog.set(changed)

	m = New(client, state, 2, quietLog)
	if err := m.Pull(context.Background()); err != nil {
		t.Fatalf("third pull: %v", err)
	}
	if s := m.Stats(); s.RoutinesUpdated != 1 || s.RoutinesRemoved != 1 {
		t.Errorf("third pull stats = %+v", s)
	}

	rows, err := state.ListRoutines()
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || len(rows[0].Phases) != 3 {
		t.Errorf("cached = %+v, want only the updated Ladder", rows)
	}
}

// TestPullFetchError verifies a failed detail fetch aborts the pull without
// touching the cache.
func TestPullFetchError(t *testing.T) {
	catalog := &catalogServer{}
	catalog.set(ladder)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/routines", catalog.handler().ServeHTTP)
	mux.HandleFunc("GET /api/v1/routines/{id}", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	state := newTestState(t)
	if err := New(NewClient(ts.URL, ""), state, 0, quietLog).Pull(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	rows, _ := state.ListRoutines()
	if len(rows) != 0 {
		t.Errorf("cache should be empty, got %d rows", len(rows))
	}
}

// TestExportYAML verifies an export can be read back by the routine parser and
// that re-exporting replaces the file.
func TestExportYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := ExportYAML(path, []models.RoutineRow{models.DefaultRoutineRow(), ladder}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	defs, err := routines.ParseBytes(data)
	if err != nil {
		t.Fatalf("parse export: %v", err)
	}
	if len(defs) != 2 || len(defs[0].Phases) != 9 || defs[1].Name != "Ladder" {
		t.Errorf("defs = %+v", defs)
	}

	if err := ExportYAML(path, []models.RoutineRow{ladder}); err != nil {
		t.Fatal(err)
	}
	data, _ = os.ReadFile(path)
	defs, err = routines.ParseBytes(data)
	if err != nil || len(defs) != 1 {
		t.Errorf("re-export: defs=%d err=%v", len(defs), err)
	}
}

func writeRoutineFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestPush verifies files are uploaded once, invalid files are reported
// without a request, and dry runs send nothing.
func TestPush(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			http.Error(w, `{"error":"bad key"}`, http.StatusForbidden)
			return
		}
		calls.Add(1)
		json.NewEncoder(w).Encode(ingest.Result{ //nolint:errcheck
			RoutinesReceived: 1,
			RoutinesInserted: 1,
		})
	}))
	defer ts.Close()

	dir := t.TempDir()
	writeRoutineFile(t, dir, "ladder.yaml", "name: Ladder\nphases:\n  - {name: Jog, duration: 5}\n")
	writeRoutineFile(t, dir, "broken.yaml", "name: Broken\nphases:\n  - {name: Jog, duration: 0}\n")
	writeRoutineFile(t, dir, "notes.txt", "ignored")

	state := newTestState(t)
	client := NewClient(ts.URL, "secret")

	m := New(client, state, 0, quietLog)
	if err := m.Push(context.Background(), dir, true); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 0 || m.Stats().FilesUploaded != 1 {
		t.Errorf("dry run: calls=%d stats=%+v", calls.Load(), m.Stats())
	}

	m = New(client, state, 0, quietLog)
	if err := m.Push(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	s := m.Stats()
	if calls.Load() != 1 || s.FilesUploaded != 1 || s.FilesErrored != 1 || s.RoutinesInserted != 1 {
		t.Errorf("push: calls=%d stats=%+v", calls.Load(), s)
	}

	m = New(client, state, 0, quietLog)
	if err := m.Push(context.Background(), dir, false); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 || m.Stats().FilesSkipped != 1 {
		t.Errorf("second push: calls=%d stats=%+v", calls.Load(), m.Stats())
	}
}

// TestImportFileRetry verifies 5xx and 429 responses are retried and other
// 4xx are not.
func TestImportFileRetry(t *testing.T) {
	tests := []struct {
		name      string
		statuses  []int
		wantCalls int32
		wantErr   bool
	}{
		{"ok", []int{http.StatusOK}, 1, false},
		{"recovers", []int{http.StatusBadGateway, http.StatusOK}, 2, false},
		{"gives up", []int{500, 500, 500}, 3, true},
		{"rejected", []int{http.StatusBadRequest}, 1, true},
		{"rate limited", []int{http.StatusTooManyRequests, http.StatusOK}, 2, false},
		{"rate limited throughout", []int{429, 429, 429}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				n := calls.Add(1)
				status := tt.statuses[min(int(n), len(tt.statuses))-1]
				if status != http.StatusOK {
					http.Error(w, `{"error":"nope"}`, status)
					return
				}
				json.NewEncoder(w).Encode(ingest.Result{RoutinesReceived: 1}) //nolint:errcheck
			}))
			defer ts.Close()

			client := NewClient(ts.URL, "k")
			client.backoff = time.Millisecond

			_, err := client.ImportFile(context.Background(), []byte("name: x"))
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
		})
	}
}

// TestRetryAfter verifies Retry-After parsing and its cap.
func TestRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"0", 0},
		{"-5", 0},
		{"soon", 0},
		{"Wed, 21 Oct 2026 07:28:00 GMT", 0},
		{"3", 3 * time.Second},
		{" 7 ", 7 * time.Second},
		{"3600", maxRetryAfter},
	}
	for _, tt := range tests {
		if got := retryAfter(tt.header); got != tt.want {
			t.Errorf("retryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}

// TestImportFileHonoursRetryAfter verifies the server's Retry-After delays the
// next attempt instead of the client's own backoff.
func TestImportFileHonoursRetryAfter(t *testing.T) {
	var calls atomic.Int32
	var first, second time.Time
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			first = time.Now()
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		second = time.Now()
		json.NewEncoder(w).Encode(ingest.Result{RoutinesReceived: 1}) //nolint:errcheck
	}))
	defer ts.Close()

	client := NewClient(ts.URL, "k")
	client.backoff = time.Millisecond

	if _, err := client.ImportFile(context.Background(), []byte("name: x")); err != nil {
		t.Fatal(err)
	}
	if gap := second.Sub(first); gap < 900*time.Millisecond {
		t.Errorf("retry after %v, want about 1s", gap)
	}
}
