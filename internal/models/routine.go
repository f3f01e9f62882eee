package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrPhaseOutOfRange is returned by WorkoutRoutine.Phase for an index outside
// [0, TotalPhases()).
var ErrPhaseOutOfRange = errors.New("phase index out of range")

// WorkoutPhase is one named, timed segment of a routine. Duration is in minutes.
type WorkoutPhase struct {
	Name     string `json:"name" yaml:"name"`
	Duration int    `json:"duration" yaml:"duration"`
}

// Length returns the phase duration as a time.Duration.
func (p WorkoutPhase) Length() time.Duration {
	return time.Duration(p.Duration) * time.Minute
}

// WorkoutRoutine is an ordered sequence of phases. It has no mutators; the
// phase list is fixed at construction.
type WorkoutRoutine struct {
	phases []WorkoutPhase
}

// NewWorkoutRoutine builds a routine from phases in the given order. The
// slice is copied, so later changes to it do not affect the routine. A nil or
// empty slice yields a routine with zero phases.
func NewWorkoutRoutine(phases []WorkoutPhase) *WorkoutRoutine {
	return &WorkoutRoutine{phases: slices.Clone(phases)}
}

// Phase returns the phase at index. Indexes outside [0, TotalPhases()) return
// an error wrapping ErrPhaseOutOfRange.
func (r *WorkoutRoutine) Phase(index int) (WorkoutPhase, error) {
	if index < 0 || index >= len(r.phases) {
		return WorkoutPhase{}, fmt.Errorf("%w: %d not in [0, %d)", ErrPhaseOutOfRange, index, len(r.phases))
	}
	return r.phases[index], nil
}

// TotalPhases returns the number of phases.
func (r *WorkoutRoutine) TotalPhases() int {
	return len(r.phases)
}

// Phases returns a copy of the phase list.
func (r *WorkoutRoutine) Phases() []WorkoutPhase {
	return slices.Clone(r.phases)
}

// TotalDuration returns the sum of all phase durations in minutes.
func (r *WorkoutRoutine) TotalDuration() int {
	total := 0
	for _, p := range r.phases {
		total += p.Duration
	}
	return total
}

type routineJSON struct {
	Phases []WorkoutPhase `json:"phases"`
}

// MarshalJSON encodes the routine as {"phases": [...]}. An empty routine
// encodes its phases as [] rather than null.
func (r *WorkoutRoutine) MarshalJSON() ([]byte, error) {
	phases := r.phases
	if phases == nil {
		phases = []WorkoutPhase{}
	}
	return json.Marshal(routineJSON{Phases: phases})
}

// UnmarshalJSON decodes {"phases": [...]}.
func (r *WorkoutRoutine) UnmarshalJSON(data []byte) error {
	var v routineJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	r.phases = v.Phases
	return nil
}

// FourByFour is the default routine: a warm up, four rounds separated by
// three rests, and a cool down, two minutes each.
var FourByFour = NewWorkoutRoutine([]WorkoutPhase{
	{Name: "Warm Up", Duration: 2},
	{Name: "Round", Duration: 2},
	{Name: "Rest", Duration: 2},
	{Name: "Round", Duration: 2},
	{Name: "Rest", Duration: 2},
	{Name: "Round", Duration: 2},
	{Name: "Rest", Duration: 2},
	{Name: "Round", Duration: 2},
	{Name: "Cool Down", Duration: 2},
})

// FourByFourName is the catalog name FourByFour is stored under.
const FourByFourName = "4x4"
