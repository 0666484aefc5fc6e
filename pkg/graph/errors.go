package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quartictech/quartic/pkg/dataset"
)

var (
	ErrNoSteps           = errors.New("no steps registered")
	ErrNotDAG            = errors.New("graph is not a DAG")
	ErrMultipleWriters   = errors.New("dataset has multiple writers")
	ErrInconsistentGraph = errors.New("inconsistent graph")
)

// CycleError reports one cycle found in the graph. Path starts and ends on the same vertex.
type CycleError struct {
	Path []dataset.Coordinate
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%v: %s", ErrNotDAG, strings.Join(dataset.Strings(e.Path), " -> "))
}

func (e *CycleError) Unwrap() error {
	return ErrNotDAG
}

// Writer identifies a node writing to a dataset.
type Writer struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	File string `json:"file"`
}

// Conflict is a dataset with more than one writer.
type Conflict struct {
	Dataset dataset.Coordinate `json:"dataset"`
	Writers []Writer           `json:"writers"`
}

// ConflictError lists every dataset with more than one writer.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	var b strings.Builder

	b.WriteString("Found multiple writers for datasets:")

	for _, c := range e.Conflicts {
		fmt.Fprintf(&b, "\n  %s:", c.Dataset)

		for _, w := range c.Writers {
			fmt.Fprintf(&b, "\n    - %s (%s)", w.Name, w.File)
		}
	}

	return b.String()
}

func (e *ConflictError) Unwrap() error {
	return ErrMultipleWriters
}

// InconsistentError describes the vertex that broke scheduling.
type InconsistentError struct {
	Dataset dataset.Coordinate
	Reason  string
}

func (e *InconsistentError) Error() string {
	return fmt.Sprintf("%v: %s: %s", ErrInconsistentGraph, e.Dataset, e.Reason)
}

func (e *InconsistentError) Unwrap() error {
	return ErrInconsistentGraph
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrNotDAG) || errors.Is(err, ErrMultipleWriters)
}
