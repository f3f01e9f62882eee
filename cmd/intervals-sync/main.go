package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/meltforce/intervals/internal/mirror"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "Intervals server URL (e.g. https://intervals.tail1234.ts.net)")
	apiKey := flag.String("api-key", os.Getenv("INTERVALS_AUTH_API_KEY"), "API key for uploads (default $INTERVALS_AUTH_API_KEY)")
	pull := flag.Bool("pull", false, "mirror the server's routine catalog into the local cache")
	push := flag.String("push", "", "upload routine files from this directory")
	export := flag.String("export", "", "write the cached catalog to this YAML file")
	dryRun := flag.Bool("dry-run", false, "validate files to push but don't send them")
	concurrency := flag.Int("concurrency", mirror.DefaultConcurrency, "routine fetches in flight during -pull")
	stateDir := flag.String("state-dir", "", "local cache directory (default ~/.intervals-sync)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("intervals-sync", Version)
		return
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if !*pull && *push == "" && *export == "" {
		fmt.Fprintf(os.Stderr, "Usage: intervals-sync -server <URL> [-pull] [-push <dir> [-dry-run]] [-export <file>]\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}
	needServer := *pull || (*push != "" && !*dryRun)
	if needServer && *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Error: -server is required for -pull and -push\n")
		os.Exit(1)
	}
	if *push != "" && !*dryRun && *apiKey == "" {
		fmt.Fprintf(os.Stderr, "Error: -api-key is required for -push\n")
		os.Exit(1)
	}

	dir := *stateDir
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			log.Error("failed to get home directory", "error", err)
			os.Exit(1)
		}
		dir = filepath.Join(homeDir, ".intervals-sync")
	}

	state, err := mirror.OpenStateDB(dir)
	if err != nil {
		log.Error("failed to open state database", "error", err)
		os.Exit(1)
	}
	defer state.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := mirror.New(mirror.NewClient(*serverURL, *apiKey), state, *concurrency, log)

	if *push != "" {
		if *dryRun {
			log.Info("DRY RUN mode: files will be validated but not sent")
		}
		if err := m.Push(ctx, *push, *dryRun); err != nil {
			log.Error("push failed", "error", err)
			printStats(m.Stats())
			os.Exit(1)
		}
	}

	if *pull {
		if err := m.Pull(ctx); err != nil {
			log.Error("pull failed", "error", err)
			printStats(m.Stats())
			os.Exit(1)
		}
	}

	if *export != "" {
		if err := m.Export(*export); err != nil {
			log.Error("export failed", "error", err)
			os.Exit(1)
		}
		log.Info("catalog exported", "file", *export)
	}

	printStats(m.Stats())
	log.Info("sync complete")
}

func printStats(stats *mirror.Stats) {
	fmt.Println()
	fmt.Println("=== Sync Summary ===")
	if stats.FilesTotal > 0 {
		fmt.Printf("  Files total:      %d\n", stats.FilesTotal)
		fmt.Printf("  Files uploaded:   %d\n", stats.FilesUploaded)
		fmt.Printf("  Files skipped:    %d (already uploaded)\n", stats.FilesSkipped)
		fmt.Printf("  Files errored:    %d\n", stats.FilesErrored)
		fmt.Printf("  Routines added:   %d\n", stats.RoutinesInserted)
		fmt.Printf("  Duplicates:       %d\n", stats.RoutinesDuplicated)
		for _, name := range stats.DuplicateNames {
			fmt.Printf("    - %s\n", name)
		}
		fmt.Println()
	}
	if stats.RoutinesListed > 0 {
		fmt.Printf("  Routines listed:  %d\n", stats.RoutinesListed)
		fmt.Printf("  New:              %d\n", stats.RoutinesNew)
		fmt.Printf("  Updated:          %d\n", stats.RoutinesUpdated)
		fmt.Printf("  Unchanged:        %d\n", stats.RoutinesUnchanged)
		fmt.Printf("  Removed:          %d\n", stats.RoutinesRemoved)
		fmt.Println()
	}
}
