package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/ingest/routines"
	"github.com/meltforce/intervals/internal/models"
	"github.com/meltforce/intervals/internal/storage"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Store is the catalog the handlers read and write. *storage.DB satisfies it.
type Store interface {
	ListRoutines(ctx context.Context) ([]models.RoutineRow, error)
	GetRoutine(ctx context.Context, id uuid.UUID) (*models.RoutineRow, error)
	InsertRoutine(ctx context.Context, row models.RoutineRow) (uuid.UUID, bool, error)
	DeleteRoutine(ctx context.Context, id uuid.UUID) (bool, error)

	CreateTimerSession(ctx context.Context, routineID uuid.UUID, owner string) (*models.TimerSessionRow, error)
	UpdateTimerSession(ctx context.Context, id uuid.UUID, state models.TimerState, phaseIndex int) (*models.TimerSessionRow, error)
	GetTimerSession(ctx context.Context, id uuid.UUID) (*models.TimerSessionRow, error)
	ListTimerSessions(ctx context.Context, owner string, limit int) ([]models.TimerSessionRow, error)

	GetCatalogStats(ctx context.Context, owner string) (*storage.CatalogStats, error)
	InsertImportLog(ctx context.Context, log storage.ImportLog) (int64, error)
	QueryImportLogs(ctx context.Context, owner string, limit int) ([]storage.ImportLog, error)
}

// Compile-time check: *storage.DB satisfies Store.
var _ Store = (*storage.DB)(nil)

// Server holds dependencies for HTTP handlers.
type Server struct {
	store     Store
	routines  *routines.Provider
	log       *slog.Logger
	apiKey    string
	rateLimit int
	whois     WhoIser
	router    chi.Router
}

// New creates a new Server with all routes configured. rateLimit is the
// number of write requests allowed per client IP per minute; 0 disables it.
func New(store Store, provider *routines.Provider, apiKey string, rateLimit int, log *slog.Logger) *Server {
	s := &Server{
		store:     store,
		routines:  provider,
		log:       log,
		apiKey:    apiKey,
		rateLimit: rateLimit,
		router:    chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(Metrics)
	s.router.Use(CORS)
	s.router.Use(s.identify)

	s.router.Get("/api/v1/timer-states", s.handleTimerStates)
	s.router.Get("/api/v1/me", s.handleMe)
	s.router.Get("/api/v1/stats", s.handleStats)
	s.router.Get("/api/v1/import-logs", s.handleImportLogs)

	s.router.Route("/api/v1/routines", func(r chi.Router) {
		r.Get("/", s.handleListRoutines)
		r.Get("/{id}", s.handleGetRoutine)
		r.Get("/{id}/phases/{index}", s.handleGetPhase)

		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Use(RateLimit(s.rateLimit))
			r.Post("/", s.handleCreateRoutine)
			r.Post("/import", s.handleImportRoutines)
			r.Delete("/{id}", s.handleDeleteRoutine)
		})
	})

	s.router.Route("/api/v1/sessions", func(r chi.Router) {
		r.Get("/", s.handleListSessions)
		r.Get("/{id}", s.handleGetSession)

		r.Group(func(r chi.Router) {
			r.Use(APIKeyAuth(s.apiKey))
			r.Use(RateLimit(s.rateLimit))
			r.Post("/", s.handleCreateSession)
			r.Put("/{id}/state", s.handleUpdateSessionState)
		})
	})

	s.router.Handle("/metrics", promhttp.Handler())
}

// SetTailscale switches request identity from the local dev user to the
// tailnet user making the request.
func (s *Server) SetTailscale(lc WhoIser) {
	s.whois = lc
}

// SetMCP mounts an MCP transport handler at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.router.Handle("/mcp", h)
	s.router.Handle("/mcp/*", h)
}

func (s *Server) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.whois == nil {
			DevIdentity(next).ServeHTTP(w, r)
			return
		}
		TailscaleIdentity(s.whois, s.log)(next).ServeHTTP(w, r)
	})
}
