package runner

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/loader"
	"github.com/quartictech/quartic/pkg/pipeline"
	"github.com/xeipuuv/gojsonschema"
)

// Exception types written to the exception file.
const (
	TypeInvalidArgs          = "invalid_args"
	TypeSeveralMatchingSteps = "several_matching_steps"
	TypeNoMatchingSteps      = "no_matching_steps"
	TypeCodeException        = "code_exception"
	TypeModuleNotFound       = "module_not_found"
	TypeError                = "error"
)

var exitCodes = map[string]int{
	TypeInvalidArgs:          1,
	TypeSeveralMatchingSteps: 2,
	TypeNoMatchingSteps:      3,
	TypeCodeException:        4,
	TypeModuleNotFound:       5,
	TypeError:                1,
}

const exceptionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["type", "message"],
	"properties": {
		"type": {"enum": ["invalid_args", "several_matching_steps", "no_matching_steps", "code_exception", "module_not_found", "error"]},
		"message": {"type": "string"}
	},
	"allOf": [
		{
			"if": {"properties": {"type": {"const": "several_matching_steps"}}},
			"then": {"required": ["step_id", "steps"], "properties": {"steps": {"type": "array", "items": {"type": "object"}}}}
		},
		{
			"if": {"properties": {"type": {"const": "no_matching_steps"}}},
			"then": {"required": ["step_id", "steps"], "properties": {"steps": {"type": "array", "items": {"type": "string"}}}}
		},
		{
			"if": {"properties": {"type": {"const": "code_exception"}}},
			"then": {
				"required": ["file_name", "line_number", "exception_type", "args", "exception"],
				"properties": {
					"line_number": {"type": "integer"},
					"args": {"type": "array", "items": {"type": "string"}}
				}
			}
		},
		{
			"if": {"properties": {"type": {"const": "module_not_found"}}},
			"then": {"required": ["module"]}
		}
	]
}`

var exceptionSchemaLoader = gojsonschema.NewStringLoader(exceptionSchema)

// Exception is the content of the exception file written when a runner invocation fails.
type Exception struct {
	Type    string `json:"type"`
	Message string `json:"message"`

	StepID string `json:"step_id,omitempty"`
	Steps  any    `json:"steps,omitempty"`

	FileName      string   `json:"file_name,omitempty"`
	LineNumber    int      `json:"line_number,omitempty"`
	ExceptionType string   `json:"exception_type,omitempty"`
	Args          []string `json:"args,omitempty"`
	Exception     string   `json:"exception,omitempty"`

	Module string `json:"module,omitempty"`
}

// ExitCode is the process exit code for the exception type.
func (e *Exception) ExitCode() int {
	if code, ok := exitCodes[e.Type]; ok {
		return code
	}

	return 1
}

// NewException classifies err.
func NewException(err error) *Exception {
	var (
		argsErr     *ArgsError
		noMatch     *engine.NoMatchError
		multiMatch  *engine.MultipleMatchError
		userErr     *engine.UserCodeError
		defineErr   *loader.DefineError
		notFoundErr *loader.ModuleNotFoundError
	)

	switch {
	case errors.As(err, &argsErr):
		return &Exception{Type: TypeInvalidArgs, Message: argsErr.Message}

	case errors.As(err, &multiMatch):
		return &Exception{
			Type:    TypeSeveralMatchingSteps,
			Message: "Multiple matching steps",
			StepID:  multiMatch.StepID,
			Steps:   multiMatch.Matches,
		}

	case errors.As(err, &noMatch):
		steps := noMatch.Available
		if steps == nil {
			steps = []string{}
		}

		return &Exception{
			Type:    TypeNoMatchingSteps,
			Message: "No matching steps",
			StepID:  noMatch.StepID,
			Steps:   steps,
		}

	case errors.As(err, &userErr):
		return codeException(userErr)

	case errors.As(err, &defineErr):
		var codeErr *pipeline.CodeError
		if errors.As(defineErr.Err, &codeErr) {
			return codeException(engine.LocateCodeError(defineErr.Source, codeErr))
		}

		return &Exception{Type: TypeError, Message: err.Error()}

	case errors.As(err, &notFoundErr):
		return &Exception{Type: TypeModuleNotFound, Message: "Module not found", Module: notFoundErr.Module}

	default:
		return &Exception{Type: TypeError, Message: err.Error()}
	}
}

func codeException(userErr *engine.UserCodeError) *Exception {
	args := userErr.Args
	if args == nil {
		args = []string{}
	}

	return &Exception{
		Type:          TypeCodeException,
		Message:       "Exception while executing user code",
		FileName:      userErr.File,
		LineNumber:    userErr.Line,
		ExceptionType: userErr.Type,
		Args:          args,
		Exception:     userErr.Error(),
	}
}

// WriteException validates exc and writes it to path as indented JSON.
func WriteException(path string, exc *Exception) error {
	data, err := json.MarshalIndent(exc, "", " ")
	if err != nil {
		return fmt.Errorf("failed to encode exception: %w", err)
	}

	result, err := gojsonschema.Validate(exceptionSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("failed to validate exception: %w", err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}

		return fmt.Errorf("%w: %s", ErrInvalidException, strings.Join(details, "; "))
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write exception file %s: %w", path, err)
	}

	return nil
}
