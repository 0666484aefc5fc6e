package checkpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCheckpoint indicates stored checkpoint data that is not a list of coordinates.
	ErrInvalidCheckpoint = errors.New("invalid checkpoint")

	// ErrUnsupportedScheme indicates a checkpoint URL whose scheme has no store.
	ErrUnsupportedScheme = errors.New("unsupported checkpoint scheme")
)

// Error wraps checkpoint store failures with the operation and location involved.
type Error struct {
	Op       string // Operation being performed ("Load", "Save", "Open")
	Location string // File path, key or table the checkpoint lives in
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Location, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error comparison for checkpoint errors.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsInvalid reports whether err comes from malformed checkpoint data.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrInvalidCheckpoint)
}
