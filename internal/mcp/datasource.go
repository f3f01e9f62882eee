package mcp

import (
	"context"

	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/models"
	"github.com/meltforce/intervals/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Both *storage.DB (local)
// and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ListRoutineSummaries(ctx context.Context) ([]models.RoutineSummary, error)
	GetRoutine(ctx context.Context, id uuid.UUID) (*models.RoutineRow, error)
	GetRoutineByName(ctx context.Context, name string) (*models.RoutineRow, error)
	GetTimerSession(ctx context.Context, id uuid.UUID) (*models.TimerSessionRow, error)
	ListTimerSessions(ctx context.Context, owner string, limit int) ([]models.TimerSessionRow, error)
	GetCatalogStats(ctx context.Context, owner string) (*storage.CatalogStats, error)
}

// Compile-time check: *storage.DB satisfies DataSource.
var _ DataSource = (*storage.DB)(nil)
