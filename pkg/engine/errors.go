package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/pipeline"
)

var (
	ErrNoMatchingStep        = errors.New("no matching steps")
	ErrMultipleMatchingSteps = errors.New("several matching steps")
	ErrUserCode              = errors.New("user code raised an exception")
	ErrIllegalTransition     = errors.New("illegal run state transition")
	ErrMissingRawDatasets    = errors.New("raw datasets missing")
)

// NoMatchError reports a step id that matches no registered step.
type NoMatchError struct {
	StepID    string
	Available []string
}

func (e *NoMatchError) Error() string {
	return fmt.Sprintf("%v for id %s (available: %s)", ErrNoMatchingStep, e.StepID, strings.Join(e.Available, ", "))
}

func (e *NoMatchError) Is(target error) bool {
	return target == ErrNoMatchingStep
}

// MultipleMatchError reports a step id shared by several registered steps.
type MultipleMatchError struct {
	StepID  string
	Matches []pipeline.Descriptor
}

func (e *MultipleMatchError) Error() string {
	names := make([]string, len(e.Matches))
	for i, m := range e.Matches {
		names[i] = fmt.Sprintf("%s (%s)", m.Name, m.File)
	}

	return fmt.Sprintf("%v for id %s: %s", ErrMultipleMatchingSteps, e.StepID, strings.Join(names, ", "))
}

func (e *MultipleMatchError) Is(target error) bool {
	return target == ErrMultipleMatchingSteps
}

// UserCodeError is a failure raised inside a step body, located at the frame that raised it.
type UserCodeError struct {
	StepID string
	File   string
	Line   int
	Type   string
	Args   []string
	Err    error
}

func (e *UserCodeError) Error() string {
	return fmt.Sprintf("%v at %s:%d: %s: %s", ErrUserCode, e.File, e.Line, e.Type, strings.Join(e.Args, ", "))
}

func (e *UserCodeError) Unwrap() error {
	return e.Err
}

func (e *UserCodeError) Is(target error) bool {
	return target == ErrUserCode
}

// NewUserCodeError locates codeErr at the panic frame when there is one, otherwise at the
// first line of node's definition.
func NewUserCodeError(node *pipeline.Node, codeErr *pipeline.CodeError) *UserCodeError {
	userErr := LocateCodeError(node.Source(), codeErr)
	userErr.StepID = node.ID()

	return userErr
}

// LocateCodeError builds a UserCodeError for user code that is not a step body, falling
// back to source when the failure has no panic frame.
func LocateCodeError(source pipeline.Source, codeErr *pipeline.CodeError) *UserCodeError {
	userErr := &UserCodeError{
		File: source.File,
		Line: source.LineRange[0],
		Err:  codeErr,
	}

	if codeErr.Frame != nil {
		userErr.File = pipeline.RelativePath(codeErr.Frame.File)
		userErr.Line = codeErr.Frame.Line
	}

	switch {
	case codeErr.Panic != nil:
		userErr.Type = fmt.Sprintf("%T", codeErr.Panic)
		userErr.Args = []string{fmt.Sprint(codeErr.Panic)}
	case codeErr.Err != nil:
		userErr.Type = fmt.Sprintf("%T", rootCause(codeErr.Err))
		userErr.Args = []string{codeErr.Err.Error()}
	}

	return userErr
}

func rootCause(err error) error {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}

		err = next
	}
}

// TransitionError reports an attempt to move a run between states that are not adjacent.
type TransitionError struct {
	From State
	To   State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%v: %s -> %s", ErrIllegalTransition, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrIllegalTransition
}

// MissingDatasetsError lists raw datasets whose data is absent from the store.
type MissingDatasetsError struct {
	Datasets []dataset.Coordinate
}

func (e *MissingDatasetsError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMissingRawDatasets, strings.Join(dataset.Strings(e.Datasets), ", "))
}

func (e *MissingDatasetsError) Unwrap() error {
	return ErrMissingRawDatasets
}

func IsUserCodeError(err error) bool {
	return errors.Is(err, ErrUserCode)
}
