package models

import (
	"time"

	"github.com/google/uuid"
)

// RoutineDefinition is a named routine as read from a definition file or an
// API request, before it has been assigned an ID.
type RoutineDefinition struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Phases      []WorkoutPhase `json:"phases" yaml:"phases"`
}

// RoutineRow is a routine as stored in the routines and routine_phases tables.
type RoutineRow struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Phases      []WorkoutPhase `json:"phases"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Routine returns the stored phases as a WorkoutRoutine.
func (r RoutineRow) Routine() *WorkoutRoutine {
	return NewWorkoutRoutine(r.Phases)
}

// Summary returns the listing form of the row.
func (r RoutineRow) Summary() RoutineSummary {
	routine := r.Routine()
	return RoutineSummary{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		TotalPhases:   routine.TotalPhases(),
		TotalDuration: routine.TotalDuration(),
	}
}

// RoutineSummary is a routine without its phase list.
type RoutineSummary struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description,omitempty"`
	TotalPhases   int       `json:"total_phases"`
	TotalDuration int       `json:"total_duration"`
}

// TimerSessionRow records the last state an external timer reported while
// running a routine.
type TimerSessionRow struct {
	ID         uuid.UUID  `json:"id"`
	RoutineID  uuid.UUID  `json:"routine_id"`
	Owner      string     `json:"owner"`
	State      TimerState `json:"state"`
	PhaseIndex int        `json:"phase_index"`
	StartedAt  time.Time  `json:"started_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// DefaultRoutineID is the fixed ID FourByFour is seeded under, derived from
// its name so every deployment agrees on it.
var DefaultRoutineID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("intervals:routine:"+FourByFourName))

// DefaultRoutineRow returns FourByFour in stored form.
func DefaultRoutineRow() RoutineRow {
	return RoutineRow{
		ID:          DefaultRoutineID,
		Name:        FourByFourName,
		Description: "Warm up, four 2-minute rounds with rests between them, cool down",
		Phases:      FourByFour.Phases(),
	}
}
