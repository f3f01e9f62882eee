package mcp

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/meltforce/intervals/internal/models"
	"github.com/meltforce/intervals/internal/storage"
)

// resolveRoutine looks a routine up by "default", UUID, or exact name.
func (h *handlers) resolveRoutine(ctx context.Context, ref string) (*models.RoutineRow, error) {
	ref = strings.TrimSpace(ref)
	if ref == "default" {
		row := models.DefaultRoutineRow()
		return &row, nil
	}
	if id, err := uuid.Parse(ref); err == nil {
		return h.ds.GetRoutine(ctx, id)
	}
	return h.ds.GetRoutineByName(ctx, ref)
}

// ownedBy reports whether owner may see session. The REST API already
// filters sessions by the caller's tailnet identity, so remote sessions pass.
func (h *handlers) ownedBy(session *models.TimerSessionRow, owner string) bool {
	if _, remote := h.ds.(*HTTPClient); remote {
		return true
	}
	return session.Owner == owner
}

// routineError turns a lookup failure into a tool error.
func (h *handlers) routineError(tool, ref string, err error) *mcp.CallToolResult {
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("routine not found: " + ref)
	}
	h.log.Error("mcp "+tool, "routine", ref, "error", err)
	return mcp.NewToolResultError("query failed: " + err.Error())
}

// --- Tool definitions ---

var toolListRoutines = mcp.NewTool("list_routines",
	mcp.WithDescription("List all stored interval routines with their phase count and total duration in minutes."),
)

var toolGetRoutine = mcp.NewTool("get_routine",
	mcp.WithDescription("Get a routine with its ordered phases. Each phase has a name and a duration in minutes."),
	mcp.WithString("routine", mcp.Required(), mcp.Description("Routine ID, exact routine name, or 'default' for the built-in 4x4 routine")),
)

var toolGetPhase = mcp.NewTool("get_phase",
	mcp.WithDescription("Get a single phase of a routine by its zero-based position."),
	mcp.WithString("routine", mcp.Required(), mcp.Description("Routine ID, exact routine name, or 'default'")),
	mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based phase index")),
)

var toolListTimerStates = mcp.NewTool("list_timer_states",
	mcp.WithDescription("List the states a workout timer can report: stopped, running, paused, finished."),
)

var toolGetTimerSession = mcp.NewTool("get_timer_session",
	mcp.WithDescription("Get a recorded timer session: the state and phase index a timer last reported for a routine. Without session_id, lists the most recent sessions."),
	mcp.WithString("session_id", mcp.Description("Session ID. Omit to list recent sessions.")),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions to list when session_id is omitted. Defaults to 20.")),
)

var toolGetStats = mcp.NewTool("get_stats",
	mcp.WithDescription("Catalog statistics: routine, phase and minute totals, plus session counts by state and by routine."),
)

// --- Tool handlers ---

func (h *handlers) listRoutines(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaries, err := h.ds.ListRoutineSummaries(ctx)
	if err != nil {
		h.log.Error("mcp list_routines", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(summaries)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getRoutine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("routine")
	if err != nil {
		return mcp.NewToolResultError("routine parameter is required"), nil
	}

	row, err := h.resolveRoutine(ctx, ref)
	if err != nil {
		return h.routineError("get_routine", ref, err), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"routine":        row,
		"total_phases":   len(row.Phases),
		"total_duration": row.Routine().TotalDuration(),
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getPhase(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("routine")
	if err != nil {
		return mcp.NewToolResultError("routine parameter is required"), nil
	}
	index, err := req.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError("index parameter is required"), nil
	}

	row, err := h.resolveRoutine(ctx, ref)
	if err != nil {
		return h.routineError("get_phase", ref, err), nil
	}

	routine := row.Routine()
	phase, err := routine.Phase(index)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(map[string]any{
		"routine":      row.Name,
		"index":        index,
		"total_phases": routine.TotalPhases(),
		"phase":        phase,
	})
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listTimerStates(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(models.TimerStates())
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getTimerSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	owner := OwnerFromContext(ctx)

	idStr := req.GetString("session_id", "")
	if idStr == "" {
		sessions, err := h.ds.ListTimerSessions(ctx, owner, req.GetInt("limit", 20))
		if err != nil {
			h.log.Error("mcp get_timer_session list", "error", err)
			return mcp.NewToolResultError("query failed: " + err.Error()), nil
		}
		if sessions == nil {
			sessions = []models.TimerSessionRow{}
		}
		result, err := mcp.NewToolResultJSON(sessions)
		if err != nil {
			return mcp.NewToolResultError("serialization failed"), nil
		}
		return result, nil
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return mcp.NewToolResultError("invalid session_id: " + err.Error()), nil
	}
	session, err := h.ds.GetTimerSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && !h.ownedBy(session, owner)) {
		return mcp.NewToolResultError("session not found: " + idStr), nil
	}
	if err != nil {
		h.log.Error("mcp get_timer_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(session)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := h.ds.GetCatalogStats(ctx, OwnerFromContext(ctx))
	if err != nil {
		h.log.Error("mcp get_stats", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(stats)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
