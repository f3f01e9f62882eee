package server

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/meltforce/intervals/internal/ingest"
	"github.com/meltforce/intervals/internal/storage"
)

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.GetCatalogStats(r.Context(), userInfoFromContext(r).Login)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleImportLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	logs, err := s.store.QueryImportLogs(r.Context(), userInfoFromContext(r).Login, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if logs == nil {
		logs = []storage.ImportLog{}
	}
	writeJSON(w, http.StatusOK, logs)
}

// logImport records an import operation's result to the import_logs table.
// Failures are logged, never returned: the import itself already happened.
func (s *Server) logImport(r *http.Request, source string, result *ingest.Result, importErr error, started time.Time) {
	entry := storage.NewImportLog(userInfoFromContext(r).Login, source, result, importErr, time.Since(started))

	ctx, cancel := contextWithTimeout()
	defer cancel()

	if _, err := s.store.InsertImportLog(ctx, entry); err != nil {
		s.log.Error("failed to log import", "source", source, "error", err)
	}
}

// contextWithTimeout returns a background context with a 5-second timeout so
// logging survives a client that disconnects after the import.
func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second) //nolint:mnd
}
