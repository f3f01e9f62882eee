package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/meltforce/intervals/internal/models"
)

func (h *handlers) defaultRoutine(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	row := models.DefaultRoutineRow()
	return jsonResource(req.Params.URI, map[string]any{
		"routine":        row,
		"total_phases":   len(row.Phases),
		"total_duration": row.Routine().TotalDuration(),
	})
}

func (h *handlers) routineCatalog(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	summaries, err := h.ds.ListRoutineSummaries(ctx)
	if err != nil {
		return nil, err
	}
	return jsonResource(req.Params.URI, summaries)
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
