package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/graph"
	"github.com/quartictech/quartic/pkg/pipeline"
)

// ValidationProblem is a 422 problem carrying the structural defects of a pipeline graph.
type ValidationProblem struct {
	*problems.Problem

	Conflicts []graph.Conflict `json:"conflicts,omitempty"`
	Cycle     []string         `json:"cycle,omitempty"`
}

// MatchProblem is a 409 problem listing the steps sharing one id.
type MatchProblem struct {
	*problems.Problem

	Steps []pipeline.Descriptor `json:"steps"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handlePipelineError maps lookup and graph errors to problems.
func handlePipelineError(c fiber.Ctx, err error) error {
	var (
		noMatch    *engine.NoMatchError
		multiMatch *engine.MultipleMatchError
	)

	switch {
	case errors.As(err, &noMatch):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("step_not_found").
			WithDetail("no step with id " + noMatch.StepID)

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.As(err, &multiMatch):
		problem := &MatchProblem{
			Problem: problems.NewStatusProblem(409).
				WithInstance(c.Path()).
				WithType("several_matching_steps").
				WithDetail(err.Error()),
			Steps: multiMatch.Matches,
		}

		return c.Status(fiber.StatusConflict).JSON(problem)

	case graph.IsValidationError(err):
		return c.Status(fiber.StatusUnprocessableEntity).JSON(validationProblem(c, err))

	case errors.Is(err, graph.ErrNoSteps):
		return notFound(c, err.Error())

	default:
		return internalError(c, err)
	}
}

// validationProblem lists every structural defect in err. The type is multiple_writers
// whenever a writer conflict is present.
func validationProblem(c fiber.Ctx, err error) *ValidationProblem {
	problem := &ValidationProblem{
		Problem: problems.NewStatusProblem(422).
			WithInstance(c.Path()).
			WithDetail(err.Error()),
	}

	var cycleErr *graph.CycleError
	if errors.As(err, &cycleErr) {
		problem.WithType("cycle")
		problem.Cycle = dataset.Strings(cycleErr.Path)
	}

	var conflictErr *graph.ConflictError
	if errors.As(err, &conflictErr) {
		problem.WithType("multiple_writers")
		problem.Conflicts = conflictErr.Conflicts
	}

	return problem
}
