package harness

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultStepNS is the clock step used when a scenario leaves step_ns unset.
const DefaultStepNS = 1000

// DefaultSession is the session label used when a step leaves it unset.
const DefaultSession = "a"

// Step operations.
const (
	OpOpen  = "open"
	OpClose = "close"
	OpSeek  = "seek"
	OpRead  = "read"
	OpWrite = "write"
	OpReset = "reset"
	OpHint  = "hint"
	OpStats = "stats"
)

// Scenario is a scripted sequence of device operations.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// StepNS is how many nanoseconds the clock advances per reading.
	// Zero means DefaultStepNS.
	StepNS int64 `yaml:"step_ns,omitempty"`

	// Steps run in order against one service instance.
	Steps []Step `yaml:"steps"`
}

// Step is one operation.
type Step struct {
	// Op is one of the Op* constants.
	Op string `yaml:"op"`

	// Session labels which open session a device op targets.
	// Ignored by reset, hint and stats.
	Session string `yaml:"session,omitempty"`

	// Whence is start, current, end, or a raw integer (seek only).
	Whence string `yaml:"whence,omitempty"`

	// Offset is the seek offset.
	Offset int64 `yaml:"offset,omitempty"`

	// Input is the payload for write and reset.
	Input string `yaml:"input,omitempty"`

	// Size overrides the read buffer length.
	Size *int `yaml:"size,omitempty"`

	// Expect, if set, is checked against the step's outcome.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Expect lists the outcome fields a step must produce. Unset fields are
// not checked.
type Expect struct {
	Position *int64  `yaml:"position,omitempty"`
	Value    *int64  `yaml:"value,omitempty"`
	Consumed *int    `yaml:"consumed,omitempty"`
	Output   *string `yaml:"output,omitempty"`
	Error    string  `yaml:"error,omitempty"`
}

// SessionLabel returns the step's session, defaulted.
func (s Step) SessionLabel() string {
	if s.Session == "" {
		return DefaultSession
	}
	return s.Session
}

// WhenceValue maps Whence onto io.Seek* constants. Integers pass through
// unchanged so scenarios can exercise unknown whence values.
func (s Step) WhenceValue() (int, error) {
	switch s.Whence {
	case "", "start":
		return io.SeekStart, nil
	case "current":
		return io.SeekCurrent, nil
	case "end":
		return io.SeekEnd, nil
	}
	n, err := strconv.Atoi(s.Whence)
	if err != nil {
		return 0, fmt.Errorf("unknown whence %q", s.Whence)
	}
	return n, nil
}

// StepDuration returns the clock step in nanoseconds, defaulted.
func (s *Scenario) StepDuration() int64 {
	if s.StepNS == 0 {
		return DefaultStepNS
	}
	return s.StepNS
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if s.StepNS < 0 {
		return fmt.Errorf("step_ns must be non-negative")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		if err := validateStep(i, &step); err != nil {
			return err
		}
	}

	return nil
}

// validateStep validates a single step based on its op.
func validateStep(index int, s *Step) error {
	if s.Op == "" {
		return fmt.Errorf("steps[%d]: op is required", index)
	}

	switch s.Op {
	case OpOpen, OpClose, OpRead, OpWrite, OpReset, OpHint, OpStats:
		if s.Whence != "" {
			return fmt.Errorf("steps[%d]: whence is only valid for seek", index)
		}
	case OpSeek:
		if _, err := s.WhenceValue(); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	default:
		return fmt.Errorf("steps[%d]: unknown op %q", index, s.Op)
	}

	if s.Size != nil && s.Op != OpRead {
		return fmt.Errorf("steps[%d]: size is only valid for read", index)
	}
	if s.Size != nil && *s.Size < 0 {
		return fmt.Errorf("steps[%d]: size must be non-negative", index)
	}

	e := s.Expect
	if e == nil {
		return nil
	}
	if e.Position != nil && s.Op != OpSeek && s.Op != OpRead {
		return fmt.Errorf("steps[%d].expect: position is only valid for seek and read", index)
	}
	if e.Value != nil && s.Op != OpRead {
		return fmt.Errorf("steps[%d].expect: value is only valid for read", index)
	}
	if e.Consumed != nil && s.Op != OpWrite && s.Op != OpReset {
		return fmt.Errorf("steps[%d].expect: consumed is only valid for write and reset", index)
	}
	if e.Output != nil && s.Op != OpStats && s.Op != OpHint {
		return fmt.Errorf("steps[%d].expect: output is only valid for stats and hint", index)
	}
	return nil
}
