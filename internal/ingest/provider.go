package ingest

import "github.com/meltforce/intervals/internal/models"

// Result holds the outcome of an ingest operation.
type Result struct {
	RoutinesReceived int      `json:"routines_received"`
	RoutinesInserted int      `json:"routines_inserted"`
	RoutinesSkipped  int      `json:"routines_skipped"`
	SkippedNames     []string `json:"skipped_names,omitempty"`

	PhasesInserted int `json:"phases_inserted"`

	Inserted []models.RoutineSummary `json:"inserted,omitempty"`
}

// Merge adds the counts of other into r.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.RoutinesReceived += other.RoutinesReceived
	r.RoutinesInserted += other.RoutinesInserted
	r.RoutinesSkipped += other.RoutinesSkipped
	r.SkippedNames = append(r.SkippedNames, other.SkippedNames...)
	r.PhasesInserted += other.PhasesInserted
	r.Inserted = append(r.Inserted, other.Inserted...)
}
