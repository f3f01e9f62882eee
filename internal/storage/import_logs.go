package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/meltforce/intervals/internal/ingest"
)

// ImportLog represents a single routine import's outcome.
type ImportLog struct {
	ID               int64     `json:"id"`
	Owner            string    `json:"owner"`
	CreatedAt        time.Time `json:"created_at"`
	Source           string    `json:"source"`
	Status           string    `json:"status"`
	RoutinesReceived int       `json:"routines_received"`
	RoutinesInserted int       `json:"routines_inserted"`
	RoutinesSkipped  int       `json:"routines_skipped"`
	PhasesInserted   int       `json:"phases_inserted"`
	DurationMs       *int      `json:"duration_ms"`
	ErrorMessage     *string   `json:"error_message"`
}

// NewImportLog builds a log entry from an ingest result. result may be nil
// when the import failed before anything was stored.
func NewImportLog(owner, source string, result *ingest.Result, importErr error, duration time.Duration) ImportLog {
	ms := int(duration.Milliseconds())
	l := ImportLog{
		Owner:      owner,
		Source:     source,
		Status:     "success",
		DurationMs: &ms,
	}
	if importErr != nil {
		msg := importErr.Error()
		l.Status = "error"
		l.ErrorMessage = &msg
	}
	if result != nil {
		l.RoutinesReceived = result.RoutinesReceived
		l.RoutinesInserted = result.RoutinesInserted
		l.RoutinesSkipped = result.RoutinesSkipped
		l.PhasesInserted = result.PhasesInserted
	}
	return l
}

// InsertImportLog creates a new import log entry and returns its ID.
func (db *DB) InsertImportLog(ctx context.Context, log ImportLog) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO import_logs (owner, source, status, routines_received, routines_inserted,
		 routines_skipped, phases_inserted, duration_ms, error_message)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		 RETURNING id`,
		log.Owner, log.Source, log.Status, log.RoutinesReceived, log.RoutinesInserted,
		log.RoutinesSkipped, log.PhasesInserted, log.DurationMs, log.ErrorMessage,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting import log: %w", err)
	}
	return id, nil
}

// QueryImportLogs returns the most recent import logs for an owner.
func (db *DB) QueryImportLogs(ctx context.Context, owner string, limit int) ([]ImportLog, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT id, owner, created_at, source, status, routines_received, routines_inserted,
		 routines_skipped, phases_inserted, duration_ms, error_message
		 FROM import_logs
		 WHERE owner = $1
		 ORDER BY created_at DESC
		 LIMIT $2`,
		owner, limit)
	if err != nil {
		return nil, fmt.Errorf("querying import logs: %w", err)
	}
	defer rows.Close()

	var result []ImportLog
	for rows.Next() {
		var l ImportLog
		if err := rows.Scan(&l.ID, &l.Owner, &l.CreatedAt, &l.Source, &l.Status,
			&l.RoutinesReceived, &l.RoutinesInserted, &l.RoutinesSkipped, &l.PhasesInserted,
			&l.DurationMs, &l.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scanning import log: %w", err)
		}
		result = append(result, l)
	}
	return result, rows.Err()
}
