package routines

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/ingest"
	"github.com/meltforce/intervals/internal/models"
)

// Store is the subset of storage.DB the provider writes through.
type Store interface {
	InsertRoutine(ctx context.Context, row models.RoutineRow) (uuid.UUID, bool, error)
}

// Provider loads routine definition files into the catalog.
type Provider struct {
	store Store
	log   *slog.Logger
}

// NewProvider creates a new routine file ingest provider.
func NewProvider(store Store, log *slog.Logger) *Provider {
	return &Provider{store: store, log: log}
}

// Ingest parses a routine definition file and stores every routine in it.
func (p *Provider) Ingest(ctx context.Context, r io.Reader) (*ingest.Result, error) {
	defs, err := Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing routines: %w", err)
	}
	return p.Store(ctx, defs)
}

// Store inserts already-parsed definitions. Routines whose name is taken are
// skipped and reported, not overwritten.
func (p *Provider) Store(ctx context.Context, defs []models.RoutineDefinition) (*ingest.Result, error) {
	result := &ingest.Result{RoutinesReceived: len(defs)}

	for _, def := range defs {
		row := models.RoutineRow{
			Name:        def.Name,
			Description: def.Description,
			Phases:      def.Phases,
		}
		id, inserted, err := p.store.InsertRoutine(ctx, row)
		if err != nil {
			return result, fmt.Errorf("inserting routine %q: %w", def.Name, err)
		}
		if !inserted {
			p.log.Info("routine already exists, skipping", "name", def.Name)
			result.RoutinesSkipped++
			result.SkippedNames = append(result.SkippedNames, def.Name)
			continue
		}

		row.ID = id
		result.RoutinesInserted++
		result.PhasesInserted += len(def.Phases)
		result.Inserted = append(result.Inserted, row.Summary())
	}

	return result, nil
}
