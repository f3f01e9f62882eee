// Package mirror keeps a local copy of a server's routine catalog and
// uploads local routine files to it.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/importer"
	"github.com/meltforce/intervals/internal/ingest/routines"
	"github.com/meltforce/intervals/internal/models"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency is the number of routine fetches in flight during Pull.
const DefaultConcurrency = 4

// Stats tracks mirror progress.
type Stats struct {
	RoutinesListed    int
	RoutinesNew       int
	RoutinesUpdated   int
	RoutinesUnchanged int
	RoutinesRemoved   int

	FilesTotal    int
	FilesUploaded int
	FilesSkipped  int
	FilesErrored  int

	RoutinesInserted   int
	RoutinesDuplicated int
	DuplicateNames     []string
}

// Mirror syncs routines between a server and the local StateDB.
type Mirror struct {
	client      *Client
	state       *StateDB
	concurrency int
	log         *slog.Logger
	stats       Stats
}

// New creates a new Mirror. A non-positive concurrency uses DefaultConcurrency.
func New(client *Client, state *StateDB, concurrency int, log *slog.Logger) *Mirror {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Mirror{
		client:      client,
		state:       state,
		concurrency: concurrency,
		log:         log,
	}
}

// Stats returns the counts accumulated so far.
func (m *Mirror) Stats() *Stats {
	return &m.stats
}

// Pull fetches every routine from the server into the local cache. Routines
// that no longer exist on the server are removed from the cache. Fetches run
// concurrently; cache writes are serialized afterwards.
func (m *Mirror) Pull(ctx context.Context) error {
	summaries, err := m.client.ListRoutines(ctx)
	if err != nil {
		return fmt.Errorf("listing routines: %w", err)
	}
	m.stats.RoutinesListed = len(summaries)
	m.log.Info("fetched routine list", "routines", len(summaries))

	fetched := make([]*models.RoutineRow, len(summaries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, s := range summaries {
		g.Go(func() error {
			row, err := m.client.GetRoutine(gctx, s.ID)
			if err != nil {
				return fmt.Errorf("fetching routine %q: %w", s.Name, err)
			}
			fetched[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	keep := make(map[uuid.UUID]bool, len(fetched))
	for _, row := range fetched {
		keep[row.ID] = true
		outcome, err := m.state.UpsertRoutine(*row)
		if err != nil {
			return err
		}
		switch outcome {
		case SyncNew:
			m.stats.RoutinesNew++
			m.log.Info("routine added", "name", row.Name, "phases", len(row.Phases))
		case SyncUpdated:
			m.stats.RoutinesUpdated++
			m.log.Info("routine updated", "name", row.Name, "phases", len(row.Phases))
		default:
			m.stats.RoutinesUnchanged++
		}
	}

	removed, err := m.state.RemoveRoutinesExcept(keep)
	if err != nil {
		return err
	}
	m.stats.RoutinesRemoved = removed
	return nil
}

// Export writes the cached catalog to path as a routine definition file. The
// file is replaced atomically so readers never see a partial export.
func (m *Mirror) Export(path string) error {
	rows, err := m.state.ListRoutines()
	if err != nil {
		return err
	}
	return ExportYAML(path, rows)
}

// ExportYAML writes rows to path in the format routines.Parse reads.
func ExportYAML(path string, rows []models.RoutineRow) error {
	defs := make([]models.RoutineDefinition, 0, len(rows))
	for _, r := range rows {
		phases := r.Phases
		if phases == nil {
			phases = []models.WorkoutPhase{}
		}
		defs = append(defs, models.RoutineDefinition{Name: r.Name, Description: r.Description, Phases: phases})
	}
	data, err := routines.Marshal(defs)
	if err != nil {
		return err
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending export file: %w", err)
	}
	defer pendingFile.Cleanup()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write export data: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace export file: %w", err)
	}
	return nil
}

// Push uploads every routine file under dir that has not been uploaded in its
// current form. Files are validated locally first so a broken file is
// reported without a round trip. In dry-run mode nothing is sent or recorded.
func (m *Mirror) Push(ctx context.Context, dir string, dryRun bool) error {
	files, err := importer.FindRoutineFiles(dir)
	if err != nil {
		return err
	}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.stats.FilesTotal++

		relPath, _ := filepath.Rel(dir, path)
		info, err := os.Stat(path)
		if err != nil {
			m.log.Warn("stat failed", "file", relPath, "error", err)
			m.stats.FilesErrored++
			continue
		}
		hash, err := HashFile(path)
		if err != nil {
			m.log.Warn("hash failed", "file", relPath, "error", err)
			m.stats.FilesErrored++
			continue
		}

		uploaded, err := m.state.IsUploaded(relPath, info.Size(), hash)
		if err != nil {
			m.log.Warn("state check failed", "file", relPath, "error", err)
			m.stats.FilesErrored++
			continue
		}
		if uploaded {
			m.stats.FilesSkipped++
			continue
		}

		data, err := importer.ReadRoutineFile(path)
		if err != nil {
			m.log.Warn("read failed", "file", relPath, "error", err)
			m.stats.FilesErrored++
			continue
		}
		defs, err := routines.ParseBytes(data)
		if errors.Is(err, routines.ErrNoRoutines) {
			m.stats.FilesSkipped++
			if !dryRun {
				_ = m.state.MarkUploaded(relPath, info.Size(), hash)
			}
			continue
		}
		if err != nil {
			m.log.Warn("invalid routine file", "file", relPath, "error", err)
			m.stats.FilesErrored++
			continue
		}

		if dryRun {
			m.log.Info("would upload", "file", relPath, "routines", len(defs))
			m.stats.FilesUploaded++
			continue
		}

		result, err := m.client.ImportFile(ctx, data)
		if err != nil {
			m.log.Warn("upload failed", "file", relPath, "error", err)
			m.stats.FilesErrored++
			continue
		}
		if err := m.state.MarkUploaded(relPath, info.Size(), hash); err != nil {
			m.log.Warn("failed to record upload", "file", relPath, "error", err)
		}

		m.stats.FilesUploaded++
		m.stats.RoutinesInserted += result.RoutinesInserted
		m.stats.RoutinesDuplicated += result.RoutinesSkipped
		m.stats.DuplicateNames = append(m.stats.DuplicateNames, result.SkippedNames...)
		m.log.Info("uploaded", "file", relPath,
			"inserted", result.RoutinesInserted,
			"duplicates", result.RoutinesSkipped,
		)
	}
	return nil
}
