package pipeline

import (
	"fmt"
	"strings"
)

// Stage is a step of the question answering state machine.
type Stage int

const (
	Idle Stage = iota
	Synthesizing
	Parsing
	Correcting
	Executing
	Formatting
	Answering
	Done
	Failed
)

var stageNames = [...]string{
	Idle:         "idle",
	Synthesizing: "synthesizing",
	Parsing:      "parsing",
	Correcting:   "correcting",
	Executing:    "executing",
	Formatting:   "formatting",
	Answering:    "answering",
	Done:         "done",
	Failed:       "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == Done || s == Failed
}

// MarshalText implements encoding.TextMarshaler.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Stage) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for i, n := range stageNames {
		if n == name {
			*s = Stage(i)
			return nil
		}
	}
	return fmt.Errorf("unknown stage %q", text)
}

// StageError records which stage failed and why.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
