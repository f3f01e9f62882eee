package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/meltforce/intervals/internal/config"
	"github.com/meltforce/intervals/internal/importer"
	"github.com/meltforce/intervals/internal/ingest/routines"
	"github.com/meltforce/intervals/internal/storage"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	dir := flag.String("path", "", "directory of routine files (required)")
	dryRun := flag.Bool("dry-run", false, "parse and count routines without inserting into database")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *dir == "" {
		fmt.Fprintf(os.Stderr, "Usage: intervals-import -config config.yaml -path /path/to/routines [-dry-run]\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	info, err := os.Stat(*dir)
	if err != nil || !info.IsDir() {
		log.Error("routine path does not exist or is not a directory", "path", *dir)
		os.Exit(1)
	}

	ctx := context.Background()

	var provider *routines.Provider
	if *dryRun {
		log.Info("DRY RUN mode: no data will be written to the database")
	} else {
		cfg, err := config.Load(*configPath)
		if err != nil {
			log.Error("failed to load config", "error", err)
			os.Exit(1)
		}

		dsn := cfg.Database.DSN()
		if err := storage.RunMigrations(dsn, "migrations"); err != nil {
			log.Error("migration failed", "error", err)
			os.Exit(1)
		}
		log.Info("migrations applied")

		db, err := storage.New(ctx, dsn)
		if err != nil {
			log.Error("failed to connect database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		log.Info("database connected")

		provider = routines.NewProvider(db, log)
	}

	imp := importer.New(provider, log, *dryRun)
	stats, err := imp.Import(ctx, *dir)
	if err != nil {
		log.Error("import failed", "error", err)
		printStats(log, stats)
		os.Exit(1)
	}

	printStats(log, stats)
	log.Info("import complete")
}

func printStats(log *slog.Logger, stats *importer.Stats) {
	log.Info("import stats",
		"files_processed", stats.FilesProcessed,
		"files_skipped", stats.FilesSkipped,
		"files_errored", stats.FilesErrored,
		"routines_inserted", stats.RoutinesInserted,
		"routines_duplicated", stats.RoutinesDuplicated,
		"phases_inserted", stats.PhasesInserted,
	)
	if len(stats.DuplicateNames) > 0 {
		log.Info("routines already in catalog", "names", stats.DuplicateNames)
	}
}
