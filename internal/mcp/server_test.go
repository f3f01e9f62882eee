package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/meltforce/intervals/internal/models"
	"github.com/meltforce/intervals/internal/storage"
)

// TestOwnerFromContextDefault verifies the default owner when no value is set
// in the context.
func TestOwnerFromContextDefault(t *testing.T) {
	if owner := OwnerFromContext(context.Background()); owner != "local" {
		t.Errorf("OwnerFromContext(empty) = %q, want local", owner)
	}
}

// TestOwnerFromContextSet verifies the owner is extracted from context after
// being set by WithOwner.
func TestOwnerFromContextSet(t *testing.T) {
	ctx := WithOwner(context.Background(), "alice@example.com")
	if owner := OwnerFromContext(ctx); owner != "alice@example.com" {
		t.Errorf("OwnerFromContext = %q, want alice@example.com", owner)
	}
}

type fakeDataSource struct {
	routines []models.RoutineRow
	sessions []models.TimerSessionRow
}

func (f *fakeDataSource) ListRoutineSummaries(context.Context) ([]models.RoutineSummary, error) {
	var out []models.RoutineSummary
	for _, r := range f.routines {
		out = append(out, r.Summary())
	}
	return out, nil
}

func (f *fakeDataSource) GetRoutine(_ context.Context, id uuid.UUID) (*models.RoutineRow, error) {
	for _, r := range f.routines {
		if r.ID == id {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("routine %s: %w", id, storage.ErrNotFound)
}

func (f *fakeDataSource) GetRoutineByName(_ context.Context, name string) (*models.RoutineRow, error) {
	for _, r := range f.routines {
		if r.Name == name {
			return &r, nil
		}
	}
	return nil, fmt.Errorf("routine %q: %w", name, storage.ErrNotFound)
}

func (f *fakeDataSource) GetTimerSession(_ context.Context, id uuid.UUID) (*models.TimerSessionRow, error) {
	for _, s := range f.sessions {
		if s.ID == id {
			return &s, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (f *fakeDataSource) ListTimerSessions(_ context.Context, owner string, limit int) ([]models.TimerSessionRow, error) {
	var out []models.TimerSessionRow
	for _, s := range f.sessions {
		if s.Owner == owner && len(out) < limit {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeDataSource) GetCatalogStats(context.Context, string) (*storage.CatalogStats, error) {
	return &storage.CatalogStats{TotalRoutines: int64(len(f.routines))}, nil
}

var ladder = models.RoutineRow{
	ID:   uuid.MustParse("7f6c1a52-0d6c-4b43-9d3e-8a1f0c2b5e11"),
	Name: "Ladder",
	Phases: []models.WorkoutPhase{
		{Name: "Jog", Duration: 5},
		{Name: "Sprint", Duration: 1},
	},
}

func newTestHandlers() (*handlers, *fakeDataSource) {
	ds := &fakeDataSource{routines: []models.RoutineRow{models.DefaultRoutineRow(), ladder}}
	return &handlers{ds: ds, log: slog.New(slog.NewTextHandler(io.Discard, nil))}, ds
}

func callTool(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) == 0 {
		t.Fatal("empty tool result")
	}
	tc, ok := res.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T, want TextContent", res.Content[0])
	}
	return tc.Text
}

// TestGetPhaseTool verifies lookups by "default", name and ID, and that an
// out-of-range index is a tool error rather than a protocol error.
func TestGetPhaseTool(t *testing.T) {
	h, _ := newTestHandlers()

	tests := []struct {
		name      string
		routine   string
		index     float64
		wantError bool
		wantPhase string
	}{
		{"default first", "default", 0, false, "Warm Up"},
		{"default last", "default", 8, false, "Cool Down"},
		{"by name", "Ladder", 1, false, "Sprint"},
		{"by id", ladder.ID.String(), 0, false, "Jog"},
		{"past end", "default", 9, true, ""},
		{"negative", "Ladder", -1, true, ""},
		{"unknown routine", "Pyramid", 0, true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.getPhase(context.Background(), callTool(map[string]any{
				"routine": tt.routine,
				"index":   tt.index,
			}))
			if err != nil {
				t.Fatalf("protocol error: %v", err)
			}
			if res.IsError != tt.wantError {
				t.Fatalf("IsError = %v, want %v (%s)", res.IsError, tt.wantError, resultText(t, res))
			}
			if tt.wantError {
				return
			}
			var got struct {
				Phase models.WorkoutPhase `json:"phase"`
			}
			if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
				t.Fatal(err)
			}
			if got.Phase.Name != tt.wantPhase {
				t.Errorf("phase = %q, want %q", got.Phase.Name, tt.wantPhase)
			}
		})
	}
}

// TestGetRoutineTool verifies the default routine is returned with totals.
func TestGetRoutineTool(t *testing.T) {
	h, _ := newTestHandlers()
	res, err := h.getRoutine(context.Background(), callTool(map[string]any{"routine": "default"}))
	if err != nil || res.IsError {
		t.Fatalf("getRoutine: err=%v result=%+v", err, res)
	}
	var got struct {
		Routine       models.RoutineRow `json:"routine"`
		TotalPhases   int               `json:"total_phases"`
		TotalDuration int               `json:"total_duration"`
	}
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if got.TotalPhases != 9 || got.TotalDuration != 18 || got.Routine.Name != models.FourByFourName {
		t.Errorf("got %d phases / %d min / %q", got.TotalPhases, got.TotalDuration, got.Routine.Name)
	}

	res, _ = h.getRoutine(context.Background(), callTool(map[string]any{}))
	if !res.IsError {
		t.Error("expected error for missing routine parameter")
	}
}

// TestListTimerStatesTool verifies the four labels are returned in order.
func TestListTimerStatesTool(t *testing.T) {
	h, _ := newTestHandlers()
	res, err := h.listTimerStates(context.Background(), callTool(nil))
	if err != nil {
		t.Fatal(err)
	}
	var got []models.TimerState
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, models.TimerStates()) {
		t.Errorf("states = %v, want %v", got, models.TimerStates())
	}
}

// TestGetTimerSessionTool verifies sessions are scoped to the context owner.
func TestGetTimerSessionTool(t *testing.T) {
	h, ds := newTestHandlers()
	mine := models.TimerSessionRow{ID: uuid.New(), RoutineID: ladder.ID, Owner: "alice", State: models.TimerRunning, PhaseIndex: 1}
	theirs := models.TimerSessionRow{ID: uuid.New(), RoutineID: ladder.ID, Owner: "bob", State: models.TimerPaused}
	ds.sessions = []models.TimerSessionRow{mine, theirs}
	ctx := WithOwner(context.Background(), "alice")

	res, _ := h.getTimerSession(ctx, callTool(map[string]any{"session_id": mine.ID.String()}))
	if res.IsError {
		t.Fatalf("own session: %s", resultText(t, res))
	}
	var got models.TimerSessionRow
	if err := json.Unmarshal([]byte(resultText(t, res)), &got); err != nil {
		t.Fatal(err)
	}
	if got.State != models.TimerRunning || got.PhaseIndex != 1 {
		t.Errorf("session = %s/%d, want running/1", got.State, got.PhaseIndex)
	}

	res, _ = h.getTimerSession(ctx, callTool(map[string]any{"session_id": theirs.ID.String()}))
	if !res.IsError || !strings.Contains(resultText(t, res), "not found") {
		t.Errorf("other owner's session should be not found")
	}

	res, _ = h.getTimerSession(ctx, callTool(map[string]any{}))
	var list []models.TimerSessionRow
	if err := json.Unmarshal([]byte(resultText(t, res)), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != mine.ID {
		t.Errorf("listed sessions = %+v, want only alice's", list)
	}
}

// TestRoutineCatalogResource verifies the catalog resource lists summaries.
func TestRoutineCatalogResource(t *testing.T) {
	h, _ := newTestHandlers()
	var req mcp.ReadResourceRequest
	req.Params.URI = "intervals://routines"

	contents, err := h.routineCatalog(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	text := contents[0].(mcp.TextResourceContents).Text
	var summaries []models.RoutineSummary
	if err := json.Unmarshal([]byte(text), &summaries); err != nil {
		t.Fatal(err)
	}
	if len(summaries) != 2 || summaries[1].TotalDuration != 6 {
		t.Errorf("summaries = %+v", summaries)
	}
}
