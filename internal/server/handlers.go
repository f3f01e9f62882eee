package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/ingest/routines"
	"github.com/meltforce/intervals/internal/models"
	"github.com/meltforce/intervals/internal/storage"
)

// maxImportBytes bounds the size of an uploaded routine file.
const maxImportBytes = 10 << 20

// defaultRoutineParam addresses the built-in routine in routine URLs.
const defaultRoutineParam = "default"

func (s *Server) handleTimerStates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.TimerStates())
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleListRoutines(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.ListRoutines(r.Context())
	if err != nil {
		s.log.Error("list routines", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	summaries := make([]models.RoutineSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, row.Summary())
	}
	writeJSON(w, http.StatusOK, summaries)
}

// loadRoutine resolves the {id} URL parameter. "default" is served from
// memory so it works even when seeding is disabled. On failure the response
// has been written and ok is false.
func (s *Server) loadRoutine(w http.ResponseWriter, r *http.Request) (row *models.RoutineRow, ok bool) {
	param := chi.URLParam(r, "id")
	if param == defaultRoutineParam {
		def := models.DefaultRoutineRow()
		return &def, true
	}

	id, err := uuid.Parse(param)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid routine ID")
		return nil, false
	}
	row, err = s.store.GetRoutine(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "routine not found")
		return nil, false
	}
	if err != nil {
		s.log.Error("get routine", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return row, true
}

func (s *Server) handleGetRoutine(w http.ResponseWriter, r *http.Request) {
	row, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// phaseResponse is a single phase together with its position in the routine.
type phaseResponse struct {
	Index       int                 `json:"index"`
	TotalPhases int                 `json:"total_phases"`
	Phase       models.WorkoutPhase `json:"phase"`
}

func (s *Server) handleGetPhase(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "phase index must be an integer")
		return
	}
	row, ok := s.loadRoutine(w, r)
	if !ok {
		return
	}

	routine := row.Routine()
	phase, err := routine.Phase(index)
	if err != nil {
		phaseLookupsTotal.WithLabelValues("out_of_range").Inc()
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	phaseLookupsTotal.WithLabelValues("hit").Inc()
	writeJSON(w, http.StatusOK, phaseResponse{
		Index:       index,
		TotalPhases: routine.TotalPhases(),
		Phase:       phase,
	})
}

func (s *Server) handleCreateRoutine(w http.ResponseWriter, r *http.Request) {
	var def models.RoutineDefinition
	if err := json.NewDecoder(r.Body).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	def.Name = strings.TrimSpace(def.Name)
	def.Description = strings.TrimSpace(def.Description)
	if def.Phases == nil {
		def.Phases = []models.WorkoutPhase{}
	}
	if err := routines.Validate(def); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	started := time.Now()
	result, err := s.routines.Store(r.Context(), []models.RoutineDefinition{def})
	s.logImport(r, "api", result, err, started)
	if err != nil {
		s.log.Error("create routine", "name", def.Name, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result.RoutinesInserted == 0 {
		writeError(w, http.StatusConflict, "routine "+strconv.Quote(def.Name)+" already exists")
		return
	}
	writeJSON(w, http.StatusCreated, result.Inserted[0])
}

func (s *Server) handleImportRoutines(w http.ResponseWriter, r *http.Request) {
	started := time.Now()
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		s.logImport(r, "file", nil, err, started)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("routine file exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(w, http.StatusBadRequest, "reading body: "+err.Error())
		return
	}
	defs, err := routines.ParseBytes(data)
	if err != nil {
		s.logImport(r, "file", nil, err, started)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.routines.Store(r.Context(), defs)
	s.logImport(r, "file", result, err, started)
	if err != nil {
		s.log.Error("import routines", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("imported routines",
		"received", result.RoutinesReceived,
		"inserted", result.RoutinesInserted,
		"skipped", result.RoutinesSkipped,
	)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteRoutine(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid routine ID")
		return
	}
	deleted, err := s.store.DeleteRoutine(r.Context(), id)
	if err != nil {
		s.log.Error("delete routine", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "routine not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
