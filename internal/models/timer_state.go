package models

import (
	"errors"
	"fmt"
)

// TimerState labels what an external timer is currently doing. The set is
// closed; transitions between states are decided by the timer, not here.
type TimerState string

const (
	TimerStopped  TimerState = "stopped"
	TimerRunning  TimerState = "running"
	TimerPaused   TimerState = "paused"
	TimerFinished TimerState = "finished"
)

// ErrUnknownTimerState is returned when a label is not one of the four states.
var ErrUnknownTimerState = errors.New("unknown timer state")

var timerStates = []TimerState{TimerStopped, TimerRunning, TimerPaused, TimerFinished}

// TimerStates returns every state in declaration order.
func TimerStates() []TimerState {
	out := make([]TimerState, len(timerStates))
	copy(out, timerStates)
	return out
}

// ParseTimerState returns the state whose label is exactly s.
func ParseTimerState(s string) (TimerState, error) {
	st := TimerState(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimerState, s)
	}
	return st, nil
}

// Valid reports whether s is one of the four states.
func (s TimerState) Valid() bool {
	switch s {
	case TimerStopped, TimerRunning, TimerPaused, TimerFinished:
		return true
	}
	return false
}

func (s TimerState) String() string {
	return string(s)
}

// MarshalText implements encoding.TextMarshaler.
func (s TimerState) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimerState, string(s))
	}
	return []byte(s), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Labels are matched
// exactly; "Running" is rejected.
func (s *TimerState) UnmarshalText(text []byte) error {
	st, err := ParseTimerState(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}
