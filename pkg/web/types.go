// Package web provides HTTP request and response types for the pipeline describe API.
package web

import (
	"github.com/quartictech/quartic/pkg/graph"
	"github.com/quartictech/quartic/pkg/pipeline"
)

// NamespaceQuery is the query of endpoints that qualify datasets.
type NamespaceQuery struct {
	Namespace string `validate:"required,excludes=:"`
}

// StepsResponse lists the registered steps.
type StepsResponse struct {
	Steps []pipeline.Descriptor `json:"steps"`
	Total int                   `json:"total"`
}

// GraphResponse is the dependency graph of one namespace.
type GraphResponse struct {
	Namespace string        `json:"namespace"`
	Degrees   graph.Degrees `json:"degrees"`

	graph.JSONGraph
}

// ScheduleResponse is the execution plan of one namespace.
type ScheduleResponse struct {
	Namespace string `json:"namespace"`

	graph.Plan
}
