package storage

import (
	"context"
	"fmt"
	"time"
)

// CatalogStats holds aggregate statistics about stored routines and the
// caller's timer sessions.
type CatalogStats struct {
	TotalRoutines     int64            `json:"total_routines"`
	TotalPhases       int64            `json:"total_phases"`
	TotalMinutes      int64            `json:"total_minutes"`
	TotalSessions     int64            `json:"total_sessions"`
	SessionsByState   map[string]int64 `json:"sessions_by_state"`
	LatestSession     *time.Time       `json:"latest_session"`
	SessionsByRoutine []RoutineUsage   `json:"sessions_by_routine"`
}

// RoutineUsage counts the sessions started for one routine.
type RoutineUsage struct {
	Name     string `json:"name"`
	Sessions int64  `json:"sessions"`
}

// GetCatalogStats returns aggregate statistics. Session figures are limited
// to owner.
func (db *DB) GetCatalogStats(ctx context.Context, owner string) (*CatalogStats, error) {
	stats := &CatalogStats{SessionsByState: map[string]int64{}}

	err := db.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM routines`).Scan(&stats.TotalRoutines)
	if err != nil {
		return nil, fmt.Errorf("counting routines: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(duration_min), 0) FROM routine_phases`,
	).Scan(&stats.TotalPhases, &stats.TotalMinutes)
	if err != nil {
		return nil, fmt.Errorf("counting phases: %w", err)
	}

	err = db.Pool.QueryRow(ctx,
		`SELECT COUNT(*), MAX(updated_at) FROM timer_sessions WHERE owner = $1`, owner,
	).Scan(&stats.TotalSessions, &stats.LatestSession)
	if err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT state, COUNT(*) FROM timer_sessions WHERE owner = $1 GROUP BY state`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying sessions by state: %w", err)
	}
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning session state count: %w", err)
		}
		stats.SessionsByState[state] = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = db.Pool.Query(ctx,
		`SELECT r.name, COUNT(*)
		 FROM timer_sessions s
		 JOIN routines r ON r.id = s.routine_id
		 WHERE s.owner = $1
		 GROUP BY r.name
		 ORDER BY COUNT(*) DESC, r.name`, owner)
	if err != nil {
		return nil, fmt.Errorf("querying sessions by routine: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var u RoutineUsage
		if err := rows.Scan(&u.Name, &u.Sessions); err != nil {
			return nil, fmt.Errorf("scanning routine usage: %w", err)
		}
		stats.SessionsByRoutine = append(stats.SessionsByRoutine, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
