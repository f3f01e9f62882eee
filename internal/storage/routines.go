package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/meltforce/intervals/internal/models"
)

// InsertRoutine stores a routine and its phases in one transaction. A zero ID
// is replaced with a fresh one. Returns false if a routine with the same ID or
// name already exists.
func (db *DB) InsertRoutine(ctx context.Context, row models.RoutineRow) (uuid.UUID, bool, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}

	inserted := false
	err := pgx.BeginFunc(ctx, db.Pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO routines (id, name, description) VALUES ($1, $2, $3)
			 ON CONFLICT DO NOTHING`,
			row.ID, row.Name, row.Description)
		if err != nil {
			return fmt.Errorf("inserting routine: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		inserted = true

		if len(row.Phases) == 0 {
			return nil
		}

		query := `INSERT INTO routine_phases (routine_id, position, name, duration_min) VALUES `
		args := make([]any, 0, len(row.Phases)*4)
		valueStrings := make([]string, 0, len(row.Phases))

		for i, p := range row.Phases {
			base := i * 4
			valueStrings = append(valueStrings, fmt.Sprintf("($%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4))
			args = append(args, row.ID, i, p.Name, p.Duration)
		}

		query += strings.Join(valueStrings, ",")
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting routine phases: %w", err)
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, false, err
	}
	return row.ID, inserted, nil
}

const routineSelect = `SELECT r.id, r.name, r.description, r.created_at, p.position, p.name, p.duration_min
	FROM routines r
	LEFT JOIN routine_phases p ON p.routine_id = r.id`

// phaseJoinRow is one row of routineSelect. Phase columns are NULL for a
// routine without phases.
type phaseJoinRow struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	Position    *int
	PhaseName   *string
	Duration    *int
}

// groupRoutineRows folds joined rows, ordered by routine then position, into
// one RoutineRow per routine.
func groupRoutineRows(rows []phaseJoinRow) []models.RoutineRow {
	var result []models.RoutineRow
	for _, r := range rows {
		if len(result) == 0 || result[len(result)-1].ID != r.ID {
			result = append(result, models.RoutineRow{
				ID:          r.ID,
				Name:        r.Name,
				Description: r.Description,
				CreatedAt:   r.CreatedAt,
				Phases:      []models.WorkoutPhase{},
			})
		}
		if r.Position == nil {
			continue
		}
		cur := &result[len(result)-1]
		phase := models.WorkoutPhase{}
		if r.PhaseName != nil {
			phase.Name = *r.PhaseName
		}
		if r.Duration != nil {
			phase.Duration = *r.Duration
		}
		cur.Phases = append(cur.Phases, phase)
	}
	return result
}

func (db *DB) queryRoutines(ctx context.Context, query string, args ...any) ([]models.RoutineRow, error) {
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying routines: %w", err)
	}
	defer rows.Close()

	var joined []phaseJoinRow
	for rows.Next() {
		var r phaseJoinRow
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedAt,
			&r.Position, &r.PhaseName, &r.Duration); err != nil {
			return nil, fmt.Errorf("scanning routine: %w", err)
		}
		joined = append(joined, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return groupRoutineRows(joined), nil
}

// ListRoutines returns every routine with its phases, ordered by name.
func (db *DB) ListRoutines(ctx context.Context) ([]models.RoutineRow, error) {
	return db.queryRoutines(ctx, routineSelect+` ORDER BY r.name, r.id, p.position`)
}

// ListRoutineSummaries returns ListRoutines without the phase lists.
func (db *DB) ListRoutineSummaries(ctx context.Context) ([]models.RoutineSummary, error) {
	rows, err := db.ListRoutines(ctx)
	if err != nil {
		return nil, err
	}
	summaries := make([]models.RoutineSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, r.Summary())
	}
	return summaries, nil
}

// GetRoutine returns a single routine by ID, or ErrNotFound.
func (db *DB) GetRoutine(ctx context.Context, id uuid.UUID) (*models.RoutineRow, error) {
	routines, err := db.queryRoutines(ctx, routineSelect+` WHERE r.id = $1 ORDER BY p.position`, id)
	if err != nil {
		return nil, err
	}
	if len(routines) == 0 {
		return nil, fmt.Errorf("routine %s: %w", id, ErrNotFound)
	}
	return &routines[0], nil
}

// GetRoutineByName returns a single routine by its unique name, or ErrNotFound.
func (db *DB) GetRoutineByName(ctx context.Context, name string) (*models.RoutineRow, error) {
	routines, err := db.queryRoutines(ctx, routineSelect+` WHERE r.name = $1 ORDER BY p.position`, name)
	if err != nil {
		return nil, err
	}
	if len(routines) == 0 {
		return nil, fmt.Errorf("routine %q: %w", name, ErrNotFound)
	}
	return &routines[0], nil
}

// DeleteRoutine removes a routine, its phases and its timer sessions.
// Returns false if no routine had that ID.
func (db *DB) DeleteRoutine(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM routines WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("deleting routine: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SeedDefaultRoutine stores the built-in 4x4 routine under DefaultRoutineID.
// Safe to call on every start.
func (db *DB) SeedDefaultRoutine(ctx context.Context, log *slog.Logger) error {
	id, inserted, err := db.InsertRoutine(ctx, models.DefaultRoutineRow())
	if err != nil {
		return fmt.Errorf("seeding default routine: %w", err)
	}
	if inserted {
		log.Info("seeded default routine", "id", id, "name", models.FourByFourName)
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
