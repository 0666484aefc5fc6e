package loader

import (
	"errors"
	"fmt"

	"github.com/quartictech/quartic/pkg/pipeline"
)

var (
	ErrModuleNotFound  = errors.New("module not found")
	ErrDuplicateModule = errors.New("module already registered")
	ErrInvalidPlugin   = errors.New("invalid pipeline plugin")
)

// ModuleNotFoundError names a module, or a pattern, that matched no registered module.
type ModuleNotFoundError struct {
	Module string
}

func (e *ModuleNotFoundError) Error() string {
	return fmt.Sprintf("%v: %s", ErrModuleNotFound, e.Module)
}

func (e *ModuleNotFoundError) Is(target error) bool {
	return target == ErrModuleNotFound
}

// DefineError reports a module definition that failed while registering its steps.
type DefineError struct {
	Module string
	Source pipeline.Source
	Err    error
}

func (e *DefineError) Error() string {
	return fmt.Sprintf("failed to define module %s: %v", e.Module, e.Err)
}

func (e *DefineError) Unwrap() error {
	return e.Err
}

func IsModuleNotFound(err error) bool {
	return errors.Is(err, ErrModuleNotFound)
}
