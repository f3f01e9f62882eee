package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const ownerKey contextKey = iota

// defaultOwner matches the identity the REST API uses off-tailnet.
const defaultOwner = "local"

// OwnerFromContext extracts the session owner injected by the transport layer.
func OwnerFromContext(ctx context.Context) string {
	if owner, ok := ctx.Value(ownerKey).(string); ok && owner != "" {
		return owner
	}
	return defaultOwner
}

// WithOwner returns a context with the given session owner.
func WithOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey, owner)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("Intervals", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("Intervals workout routine server. Look up interval routines and their phases, the timer states a timer can report, and recorded timer sessions. Sessions are scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	// Tools
	s.AddTools(
		server.ServerTool{Tool: toolListRoutines, Handler: h.listRoutines},
		server.ServerTool{Tool: toolGetRoutine, Handler: h.getRoutine},
		server.ServerTool{Tool: toolGetPhase, Handler: h.getPhase},
		server.ServerTool{Tool: toolListTimerStates, Handler: h.listTimerStates},
		server.ServerTool{Tool: toolGetTimerSession, Handler: h.getTimerSession},
		server.ServerTool{Tool: toolGetStats, Handler: h.getStats},
	)

	// Resources
	s.AddResources(
		server.ServerResource{Resource: resDefaultRoutine, Handler: h.defaultRoutine},
		server.ServerResource{Resource: resRoutines, Handler: h.routineCatalog},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

// --- Resource definitions ---

var resDefaultRoutine = mcp.NewResource(
	"intervals://default_routine",
	"Default Routine",
	mcp.WithResourceDescription("The built-in 4x4 routine: warm up, four 2-minute rounds separated by rests, cool down"),
	mcp.WithMIMEType("application/json"),
)

var resRoutines = mcp.NewResource(
	"intervals://routines",
	"Routine Catalog",
	mcp.WithResourceDescription("All stored routines with phase counts and total minutes"),
	mcp.WithMIMEType("application/json"),
)
