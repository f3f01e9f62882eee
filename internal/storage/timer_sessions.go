package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meltforce/intervals/internal/models"
)

const timerSessionColumns = `id, routine_id, owner, state, phase_index, started_at, updated_at`

func scanTimerSession(row pgx.Row) (*models.TimerSessionRow, error) {
	var s models.TimerSessionRow
	var state string
	if err := row.Scan(&s.ID, &s.RoutineID, &s.Owner, &state, &s.PhaseIndex, &s.StartedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := models.ParseTimerState(state)
	if err != nil {
		return nil, fmt.Errorf("timer session %s: %w", s.ID, err)
	}
	s.State = st
	return &s, nil
}

// CreateTimerSession starts tracking a timer for a routine. New sessions are
// stopped at phase 0.
func (db *DB) CreateTimerSession(ctx context.Context, routineID uuid.UUID, owner string) (*models.TimerSessionRow, error) {
	row := db.Pool.QueryRow(ctx,
		`INSERT INTO timer_sessions (id, routine_id, owner, state, phase_index)
		 VALUES ($1, $2, $3, $4, 0)
		 RETURNING `+timerSessionColumns,
		uuid.New(), routineID, owner, string(models.TimerStopped))
	s, err := scanTimerSession(row)
	if err != nil {
		return nil, fmt.Errorf("creating timer session: %w", err)
	}
	return s, nil
}

// UpdateTimerSession records the state and phase an external timer reported.
// No transition rules are applied; the caller validates the phase index.
func (db *DB) UpdateTimerSession(ctx context.Context, id uuid.UUID, state models.TimerState, phaseIndex int) (*models.TimerSessionRow, error) {
	row := db.Pool.QueryRow(ctx,
		`UPDATE timer_sessions SET state = $2, phase_index = $3, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+timerSessionColumns,
		id, string(state), phaseIndex)
	s, err := scanTimerSession(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("timer session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("updating timer session: %w", err)
	}
	return s, nil
}

// GetTimerSession returns a session by ID, or ErrNotFound.
func (db *DB) GetTimerSession(ctx context.Context, id uuid.UUID) (*models.TimerSessionRow, error) {
	row := db.Pool.QueryRow(ctx,
		`SELECT `+timerSessionColumns+` FROM timer_sessions WHERE id = $1`, id)
	s, err := scanTimerSession(row)
	if isNoRows(err) {
		return nil, fmt.Errorf("timer session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying timer session: %w", err)
	}
	return s, nil
}

// ListTimerSessions returns the most recently updated sessions for an owner.
func (db *DB) ListTimerSessions(ctx context.Context, owner string, limit int) ([]models.TimerSessionRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT `+timerSessionColumns+` FROM timer_sessions
		 WHERE owner = $1
		 ORDER BY updated_at DESC
		 LIMIT $2`,
		owner, limit)
	if err != nil {
		return nil, fmt.Errorf("querying timer sessions: %w", err)
	}
	defer rows.Close()

	var result []models.TimerSessionRow
	for rows.Next() {
		s, err := scanTimerSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning timer session: %w", err)
		}
		result = append(result, *s)
	}
	return result, rows.Err()
}
