// Package runner evaluates pipeline modules into step descriptors or executes a single step,
// reporting failures through an exception file and a process exit code.
package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/loader"
	"github.com/quartictech/quartic/pkg/pipeline"
)

// DefaultExceptionFile is where failures are reported unless told otherwise.
const DefaultExceptionFile = "exception.json"

var ErrInvalidException = errors.New("exception does not match its schema")

// ArgsError reports an invalid combination of runner options.
type ArgsError struct {
	Message string
}

func (e *ArgsError) Error() string {
	return "invalid arguments: " + e.Message
}

// Options select what one runner invocation does. Exactly one of Execute and Evaluate is set.
type Options struct {
	Modules   []string `validate:"required,min=1"`
	Execute   string   `validate:"required_without=Evaluate,excluded_with=Evaluate"`
	Evaluate  string   `validate:"required_without=Execute,excluded_with=Execute"`
	Namespace string   `validate:"required_with=Execute,excludes=:"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the option combination.
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) {
			switch validationErrors[0].Field() {
			case "Execute", "Evaluate":
				return &ArgsError{Message: "Must specify either --execute or --evaluate"}
			case "Namespace":
				return &ArgsError{Message: "--namespace is required with --execute and must not contain ':'"}
			case "Modules":
				return &ArgsError{Message: "At least one module is required"}
			}
		}

		return &ArgsError{Message: err.Error()}
	}

	return nil
}

type Runner struct {
	loader *loader.Loader
	engine *engine.Engine
	logger *slog.Logger
}

func New(loader *loader.Loader, engine *engine.Engine, logger *slog.Logger) *Runner {
	return &Runner{
		loader: loader,
		engine: engine,
		logger: logger.With("module", "runner"),
	}
}

// Run loads opts.Modules and either writes their descriptors to opts.Evaluate or executes
// the step with id opts.Execute.
func (r *Runner) Run(ctx context.Context, opts Options) error {
	if err := opts.Validate(); err != nil {
		return err
	}

	nodes, err := r.loader.Load(opts.Modules...)
	if err != nil {
		return err
	}

	if opts.Evaluate != "" {
		r.logger.InfoContext(ctx, "Evaluating steps", "steps", len(nodes), "output", opts.Evaluate)

		return writeDescriptors(opts.Evaluate, pipeline.Descriptors(nodes))
	}

	r.logger.InfoContext(ctx, "Executing step", "step_id", opts.Execute, "namespace", opts.Namespace)

	return r.engine.Execute(ctx, nodes, opts.Namespace, opts.Execute)
}

func writeDescriptors(path string, descriptors []pipeline.Descriptor) error {
	data, err := json.MarshalIndent(descriptors, "", " ")
	if err != nil {
		return fmt.Errorf("failed to encode descriptors: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write descriptors to %s: %w", path, err)
	}

	return nil
}

// Report writes the exception for err to path and returns the exit code. A nil err returns 0
// and writes nothing.
func Report(logger *slog.Logger, path string, err error) int {
	if err == nil {
		return 0
	}

	exc := NewException(err)

	logger.Error("Runner failed", "type", exc.Type, "error", err)

	if writeErr := WriteException(path, exc); writeErr != nil {
		logger.Error("Failed to write exception file", "path", path, "error", writeErr)
	}

	return exc.ExitCode()
}
