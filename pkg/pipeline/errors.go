package pipeline

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrUnannotatedArgument indicates a step parameter without dataset coordinates.
	ErrUnannotatedArgument = errors.New("unannotated argument")

	// ErrNoOutput indicates a step declared without an output dataset.
	ErrNoOutput = errors.New("no output declared")

	// ErrDuplicateParam indicates two parameters of one step sharing a name.
	ErrDuplicateParam = errors.New("duplicate parameter")

	// ErrInvalidDeclaration indicates a declaration failing struct validation.
	ErrInvalidDeclaration = errors.New("invalid step declaration")

	// ErrAlreadyOpen indicates an attempt to open a registration context while one is active.
	ErrAlreadyOpen = errors.New("registration context already open")

	// ErrNoActiveContext indicates a registration with no registration context open.
	ErrNoActiveContext = errors.New("no active registration context")

	// ErrNoWriter indicates a transformation that returned neither a writer nor an error.
	ErrNoWriter = errors.New("step returned no writer")
)

// DeclarationError wraps declaration errors with the step and parameter concerned.
type DeclarationError struct {
	Step  string
	Param string
	Err   error
}

func (e *DeclarationError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("step %s: %v: '%s'", e.Step, e.Err, e.Param)
	}

	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *DeclarationError) Unwrap() error {
	return e.Err
}

// CodeError marks a failure raised by a step body, as opposed to the engine or the store.
// Panics are recovered into a CodeError with the frame they were raised from.
type CodeError struct {
	Err   error
	Panic any
	Frame *runtime.Frame
}

func (e *CodeError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("step panicked: %v", e.Panic)
	}

	return e.Err.Error()
}

// Unwrap returns the returned error, or the panic value when it was an error.
func (e *CodeError) Unwrap() error {
	if e.Err == nil {
		if err, ok := e.Panic.(error); ok {
			return err
		}
	}

	return e.Err
}

// IsDeclarationError reports whether err is a step declaration problem.
func IsDeclarationError(err error) bool {
	var declErr *DeclarationError

	return errors.As(err, &declErr)
}
