// Package routines reads and writes routine definition files.
//
// A file lists routines, each an ordered list of steps. A step is either a
// phase or a repeat block whose steps are expanded in place:
//
//	routines:
//	  - name: 4x4
//	    phases:
//	      - {name: Warm Up, duration: 2}
//	      - repeat: 3
//	        phases:
//	          - {name: Round, duration: 2}
//	          - {name: Rest, duration: 2}
//	      - {name: Round, duration: 2}
//	      - {name: Cool Down, duration: 2}
//
// A document holding a single routine may drop the routines key and put
// name, description and phases at the top level.
package routines

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/meltforce/intervals/internal/models"
	"gopkg.in/yaml.v3"
)

// MaxPhases caps the expanded size of one routine so nested repeat blocks
// cannot blow up memory.
const MaxPhases = 10000

// ErrNoRoutines is returned for a document that defines no routines.
var ErrNoRoutines = errors.New("no routines defined")

type stepDoc struct {
	Name     string    `yaml:"name"`
	Duration *int      `yaml:"duration"`
	Repeat   *int      `yaml:"repeat"`
	Phases   []stepDoc `yaml:"phases"`
}

type routineDoc struct {
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Phases      []stepDoc `yaml:"phases"`
}

type fileDoc struct {
	Routines []routineDoc `yaml:"routines"`

	// single-routine form
	Name        string    `yaml:"name"`
	Description string    `yaml:"description"`
	Phases      []stepDoc `yaml:"phases"`
}

// Parse reads a routine definition file. Unknown keys are rejected so typos
// such as "durration" fail loudly instead of producing zero-length phases.
func Parse(r io.Reader) ([]models.RoutineDefinition, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc fileDoc
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoRoutines
		}
		return nil, fmt.Errorf("decoding routine file: %w", err)
	}

	docs := doc.Routines
	if doc.Name != "" || len(doc.Phases) > 0 {
		if len(docs) > 0 {
			return nil, fmt.Errorf("routine file mixes a top-level routine with a routines list")
		}
		docs = []routineDoc{{Name: doc.Name, Description: doc.Description, Phases: doc.Phases}}
	}
	if len(docs) == 0 {
		return nil, ErrNoRoutines
	}

	seen := make(map[string]bool, len(docs))
	defs := make([]models.RoutineDefinition, 0, len(docs))
	for i, rd := range docs {
		name := strings.TrimSpace(rd.Name)
		if name == "" {
			return nil, fmt.Errorf("routine %d: name is required", i+1)
		}
		if seen[name] {
			return nil, fmt.Errorf("routine %q: defined more than once", name)
		}
		seen[name] = true

		phases, err := expand(rd.Phases, name, "")
		if err != nil {
			return nil, err
		}
		defs = append(defs, models.RoutineDefinition{
			Name:        name,
			Description: strings.TrimSpace(rd.Description),
			Phases:      phases,
		})
	}
	return defs, nil
}

// ParseBytes is Parse over an in-memory document.
func ParseBytes(data []byte) ([]models.RoutineDefinition, error) {
	return Parse(bytes.NewReader(data))
}

// expand flattens steps into phases. path locates the steps for error
// messages, e.g. "3.2" for the second step inside the third step's repeat.
func expand(steps []stepDoc, routine, path string) ([]models.WorkoutPhase, error) {
	phases := []models.WorkoutPhase{}
	for i, s := range steps {
		loc := fmt.Sprintf("%s%d", path, i+1)
		where := func(format string, args ...any) error {
			return fmt.Errorf("routine %q step %s: %s", routine, loc, fmt.Sprintf(format, args...))
		}

		if s.Repeat != nil {
			if s.Name != "" || s.Duration != nil {
				return nil, where("a step is either a phase or a repeat block, not both")
			}
			if *s.Repeat < 1 {
				return nil, where("repeat must be at least 1, got %d", *s.Repeat)
			}
			if len(s.Phases) == 0 {
				return nil, where("repeat block has no phases")
			}
			inner, err := expand(s.Phases, routine, loc+".")
			if err != nil {
				return nil, err
			}
			if len(inner) == 0 {
				return nil, where("repeat block expands to no phases")
			}
			if *s.Repeat > (MaxPhases-len(phases))/len(inner) {
				return nil, where("routine expands to more than %d phases", MaxPhases)
			}
			for range *s.Repeat {
				phases = append(phases, inner...)
			}
			continue
		}

		if len(s.Phases) > 0 {
			return nil, where("nested phases require a repeat count")
		}
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return nil, where("phase name is required")
		}
		if s.Duration == nil {
			return nil, where("phase %q: duration is required", name)
		}
		if *s.Duration <= 0 {
			return nil, where("phase %q: duration must be positive, got %d", name, *s.Duration)
		}
		if len(phases) >= MaxPhases {
			return nil, where("routine expands to more than %d phases", MaxPhases)
		}
		phases = append(phases, models.WorkoutPhase{Name: name, Duration: *s.Duration})
	}
	return phases, nil
}

type fileOut struct {
	Routines []models.RoutineDefinition `yaml:"routines"`
}

// Marshal writes definitions in the flat form Parse accepts.
func Marshal(defs []models.RoutineDefinition) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(fileOut{Routines: defs}); err != nil {
		return nil, fmt.Errorf("encoding routines: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding routines: %w", err)
	}
	return buf.Bytes(), nil
}

// Validate checks an already-flat definition against the rules Parse
// enforces: a name, and phases with names and positive durations.
func Validate(def models.RoutineDefinition) error {
	if strings.TrimSpace(def.Name) == "" {
		return fmt.Errorf("routine name is required")
	}
	if len(def.Phases) > MaxPhases {
		return fmt.Errorf("routine %q: more than %d phases", def.Name, MaxPhases)
	}
	for i, p := range def.Phases {
		if strings.TrimSpace(p.Name) == "" {
			return fmt.Errorf("routine %q phase %d: name is required", def.Name, i)
		}
		if p.Duration <= 0 {
			return fmt.Errorf("routine %q phase %d (%s): duration must be positive, got %d", def.Name, i, p.Name, p.Duration)
		}
	}
	return nil
}
