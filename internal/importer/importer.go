package importer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/meltforce/intervals/internal/ingest"
	"github.com/meltforce/intervals/internal/ingest/routines"
	"github.com/meltforce/intervals/internal/models"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int
	FilesSkipped   int
	FilesErrored   int

	RoutinesInserted   int
	RoutinesDuplicated int
	PhasesInserted     int

	DuplicateNames []string
}

// Importer reads routine definition files from a directory tree and inserts
// them into the catalog.
type Importer struct {
	provider *routines.Provider
	log      *slog.Logger
	dryRun   bool
	stats    Stats
	total    ingest.Result
}

// New creates a new Importer. provider may be nil in dry-run mode.
func New(provider *routines.Provider, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{provider: provider, log: log, dryRun: dryRun}
}

// IsRoutineFile reports whether name has a routine file extension.
func IsRoutineFile(name string) bool {
	name = strings.ToLower(name)
	for _, ext := range []string{".yaml", ".yml", ".yaml.gz", ".yml.gz"} {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// FindRoutineFiles walks dir and returns routine files in lexical order, so
// imports are deterministic when two files define the same name.
func FindRoutineFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if IsRoutineFile(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(files)
	return files, nil
}

// Import processes every routine file under dir. A file that fails to read or
// parse is counted and logged; the rest are still imported.
func (imp *Importer) Import(ctx context.Context, dir string) (*Stats, error) {
	files, err := FindRoutineFiles(dir)
	if err != nil {
		return &imp.stats, err
	}

	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return &imp.stats, err
		}

		data, err := ReadRoutineFile(f)
		if err != nil {
			imp.log.Warn("read failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}

		defs, err := routines.ParseBytes(data)
		if errors.Is(err, routines.ErrNoRoutines) {
			imp.stats.FilesSkipped++
			continue
		}
		if err != nil {
			imp.log.Warn("parse failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}

		imp.stats.FilesProcessed++
		if imp.dryRun {
			imp.countDryRun(defs)
			continue
		}

		result, err := imp.provider.Store(ctx, defs)
		if err != nil {
			return &imp.stats, fmt.Errorf("importing %s: %w", filepath.Base(f), err)
		}
		imp.addResult(result)
	}

	return &imp.stats, nil
}

func (imp *Importer) countDryRun(defs []models.RoutineDefinition) {
	for _, d := range defs {
		imp.stats.RoutinesInserted++
		imp.stats.PhasesInserted += len(d.Phases)
		imp.log.Debug("would import routine", "name", d.Name, "phases", len(d.Phases))
	}
}

func (imp *Importer) addResult(r *ingest.Result) {
	imp.total.Merge(r)
	imp.stats.RoutinesInserted = imp.total.RoutinesInserted
	imp.stats.RoutinesDuplicated = imp.total.RoutinesSkipped
	imp.stats.PhasesInserted = imp.total.PhasesInserted
	imp.stats.DuplicateNames = imp.total.SkippedNames
}
