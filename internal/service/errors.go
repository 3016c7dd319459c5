package service

import (
	"errors"
	"fmt"
)

// Stage names one step of Service.Start.
type Stage string

const (
	// StageStats allocates the statistics table.
	StageStats Stage = "stats"

	// StageControl registers the control-plane attribute group.
	StageControl Stage = "control"

	// StageIdentity registers the device identity.
	StageIdentity Stage = "identity"

	// StageNode creates the device node.
	StageNode Stage = "node"
)

// Startup failure categories.
var (
	// ErrResourceExhausted indicates an allocation failed during start.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrRegistration indicates the host refused a registration.
	ErrRegistration = errors.New("registration failed")

	// ErrAlreadyStarted is returned by Start on a running service.
	ErrAlreadyStarted = errors.New("service already started")

	// ErrTeardownIncomplete is returned by Start when registrations left
	// behind by a failed Stop still cannot be removed.
	ErrTeardownIncomplete = errors.New("previous teardown incomplete")
)

// StartError reports which stage of Start failed. Every stage completed
// before it has been rolled back when the error is returned, except those
// the host refused to undo, which Rollback lists.
type StartError struct {
	// Stage is the step that failed.
	Stage Stage

	// Err carries the category (ErrResourceExhausted or ErrRegistration)
	// and the underlying cause.
	Err error

	// Rollback holds any errors hit while undoing completed stages.
	Rollback error
}

// Error implements the error interface.
func (e *StartError) Error() string {
	if e.Rollback != nil {
		return fmt.Sprintf("start failed at %s: %v (rollback: %v)", e.Stage, e.Err, e.Rollback)
	}
	return fmt.Sprintf("start failed at %s: %v", e.Stage, e.Err)
}

// Unwrap exposes the category and cause to errors.Is / errors.As.
func (e *StartError) Unwrap() error {
	return e.Err
}

// FailedStage returns the stage a start error names, if err is one.
// Uses errors.As to handle wrapped errors.
func FailedStage(err error) (Stage, bool) {
	var se *StartError
	if errors.As(err, &se) {
		return se.Stage, true
	}
	return "", false
}

func newStartError(stage Stage, category, cause error) *StartError {
	return &StartError{
		Stage: stage,
		Err:   fmt.Errorf("%w: %w", category, cause),
	}
}
