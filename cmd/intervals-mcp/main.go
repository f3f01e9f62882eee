// Command intervals-mcp serves the Intervals MCP tools over stdio, reading
// from a running Intervals server.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/meltforce/intervals/internal/mcp"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	serverURL := flag.String("server", "", "Intervals server URL (e.g. https://intervals.tail1234.ts.net)")
	version := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *version {
		fmt.Println("intervals-mcp", Version)
		return
	}

	// stdout carries the protocol
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if *serverURL == "" {
		fmt.Fprintf(os.Stderr, "Usage: intervals-mcp -server <URL>\n\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	s := mcp.New(mcp.NewHTTPClient(*serverURL), Version, log)
	if err := mcpserver.ServeStdio(s); err != nil {
		log.Error("mcp server stopped", "error", err)
		os.Exit(1)
	}
}
