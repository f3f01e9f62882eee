package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/meltforce/intervals/internal/models"
	"github.com/meltforce/intervals/internal/storage"
)

type createSessionRequest struct {
	RoutineID string `json:"routine_id"`
}

type updateSessionRequest struct {
	State      string `json:"state"`
	PhaseIndex int    `json:"phase_index"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, 500)
	}

	sessions, err := s.store.ListTimerSessions(r.Context(), userInfoFromContext(r).Login, limit)
	if err != nil {
		s.log.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []models.TimerSessionRow{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// loadSession resolves the {id} URL parameter to a session owned by the
// caller. Sessions of other users are reported as not found.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*models.TimerSessionRow, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session ID")
		return nil, false
	}
	session, err := s.store.GetTimerSession(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && session.Owner != userInfoFromContext(r).Login) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	if err != nil {
		s.log.Error("get session", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return session, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	var routineID uuid.UUID
	if req.RoutineID == defaultRoutineParam {
		routineID = models.DefaultRoutineID
	} else {
		id, err := uuid.Parse(req.RoutineID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid routine_id")
			return
		}
		routineID = id
	}

	// Sessions reference stored routines, so the default routine must have
	// been seeded.
	if _, err := s.store.GetRoutine(r.Context(), routineID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "routine not found")
			return
		}
		s.log.Error("get routine", "id", routineID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	user := userInfoFromContext(r)
	session, err := s.store.CreateTimerSession(r.Context(), routineID, user.Login)
	if err != nil {
		s.log.Error("create session", "routine", routineID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.log.Info("timer session created", "id", session.ID, "routine", routineID, "owner", user.Login)
	writeJSON(w, http.StatusCreated, session)
}

// handleUpdateSessionState records the state and phase an external timer
// reports. Any label may follow any other; only the label itself and the
// phase index are checked.
func (s *Server) handleUpdateSessionState(w http.ResponseWriter, r *http.Request) {
	var req updateSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	state, err := models.ParseTimerState(req.State)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	row, err := s.store.GetRoutine(r.Context(), session.RoutineID)
	if errors.Is(err, storage.ErrNotFound) {
		// Deleting a routine removes its sessions.
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.log.Error("get session routine", "session", session.ID, "routine", session.RoutineID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	routine := row.Routine()
	// A routine without phases can only sit at index 0.
	if !(routine.TotalPhases() == 0 && req.PhaseIndex == 0) {
		if _, err := routine.Phase(req.PhaseIndex); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	updated, err := s.store.UpdateTimerSession(r.Context(), session.ID, state, req.PhaseIndex)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.log.Error("update session", "id", session.ID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sessionUpdatesTotal.WithLabelValues(string(state)).Inc()
	writeJSON(w, http.StatusOK, updated)
}
