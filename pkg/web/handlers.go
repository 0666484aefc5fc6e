// Package web provides HTTP handlers and REST API endpoints describing a loaded pipeline.
package web

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/graph"
	"github.com/quartictech/quartic/pkg/pipeline"
)

type APIHandlers struct {
	nodes     []*pipeline.Node
	namespace string
	validator *validator.Validate
}

// NewAPIHandlers serves nodes. namespace is used when a request names none; it may be empty,
// in which case graph endpoints require the namespace query parameter.
func NewAPIHandlers(
	nodes []*pipeline.Node,
	namespace string,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		nodes:     nodes,
		namespace: namespace,
		validator: validator,
	}
}

func (h *APIHandlers) GetSteps(c fiber.Ctx) error {
	return sendJSON(c, StepsResponse{
		Steps: pipeline.Descriptors(h.nodes),
		Total: len(h.nodes),
	})
}

func (h *APIHandlers) GetStep(c fiber.Ctx) error {
	id := c.Params("id")

	if id == "" {
		return badRequest(c, "Step ID is required")
	}

	node, err := engine.Match(h.nodes, id)
	if err != nil {
		return handlePipelineError(c, err)
	}

	return sendJSON(c, node.Descriptor())
}

func (h *APIHandlers) GetGraph(c fiber.Ctx) error {
	namespace, err := h.parseNamespace(c)
	if err != nil {
		return badRequest(c, "Invalid namespace: "+err.Error())
	}

	g, err := h.validatedGraph(namespace)
	if err != nil {
		return handlePipelineError(c, err)
	}

	return sendJSON(c, GraphResponse{
		Namespace: namespace,
		Degrees:   g.Degrees(),
		JSONGraph: g.JSON(),
	})
}

func (h *APIHandlers) GetSchedule(c fiber.Ctx) error {
	namespace, err := h.parseNamespace(c)
	if err != nil {
		return badRequest(c, "Invalid namespace: "+err.Error())
	}

	g, err := h.validatedGraph(namespace)
	if err != nil {
		return handlePipelineError(c, err)
	}

	schedule, err := graph.NewSchedule(g)
	if err != nil {
		return handlePipelineError(c, err)
	}

	return sendJSON(c, ScheduleResponse{
		Namespace: namespace,
		Plan:      schedule.Plan(),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Quartic API is healthy"
	httpStatus := http.StatusOK

	if len(h.nodes) == 0 {
		status = "unhealthy"
		message = "No pipeline steps loaded"
		httpStatus = http.StatusServiceUnavailable
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"steps":   len(h.nodes),
	})
}

// parseNamespace reads and validates the namespace query parameter.
func (h *APIHandlers) parseNamespace(c fiber.Ctx) (string, error) {
	query := NamespaceQuery{Namespace: c.Query("namespace", h.namespace)}

	if err := h.validator.Struct(query); err != nil {
		return "", err
	}

	return query.Namespace, nil
}

func (h *APIHandlers) validatedGraph(namespace string) (*graph.Graph, error) {
	g, err := graph.Build(h.nodes, namespace)
	if err != nil {
		return nil, err
	}

	if err := graph.Validate(g); err != nil {
		return nil, err
	}

	return g, nil
}
