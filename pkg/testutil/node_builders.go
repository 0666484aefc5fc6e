// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/pipeline"
	"github.com/quartictech/quartic/pkg/store"
	"github.com/quartictech/quartic/pkg/store/memory"
	"github.com/stretchr/testify/require"
)

// StepSpec describes a test step before it is turned into a node.
type StepSpec struct {
	Name        string
	Description string
	Inputs      []dataset.Coordinate
	Output      dataset.Coordinate
	Func        pipeline.TransformFunc
}

// Constant returns a step body writing v as JSON, ignoring its inputs.
func Constant(v any) pipeline.TransformFunc {
	return func(ctx context.Context, in pipeline.Inputs) (store.Writer, error) {
		return store.WriteJSON("constant", "", v), nil
	}
}

// Failing returns a step body that returns err.
func Failing(err error) pipeline.TransformFunc {
	return func(ctx context.Context, in pipeline.Inputs) (store.Writer, error) {
		return nil, err
	}
}

// CreateTestStep creates a transformation node with default values that can be overridden.
// The default writes the string "ok" to the unqualified dataset "out".
func CreateTestStep(t *testing.T, overrides ...func(*StepSpec)) *pipeline.Node {
	t.Helper()

	spec := &StepSpec{
		Name:   "test step",
		Output: dataset.Unqualified("out"),
		Func:   Constant("ok"),
	}

	for _, override := range overrides {
		override(spec)
	}

	decl := pipeline.Declaration{
		Name:        spec.Name,
		Description: spec.Description,
		Output:      pipeline.Output(spec.Output),
	}
	for i, c := range spec.Inputs {
		decl.Params = append(decl.Params, pipeline.Input(fmt.Sprintf("in%d", i), c))
	}

	node, err := pipeline.Step(decl, spec.Func)
	require.NoError(t, err)

	return node
}

// WithName sets the step name.
func WithName(name string) func(*StepSpec) {
	return func(s *StepSpec) {
		s.Name = name
	}
}

// WithDescription sets the step description.
func WithDescription(description string) func(*StepSpec) {
	return func(s *StepSpec) {
		s.Description = description
	}
}

// WithInputs sets the unqualified input datasets.
func WithInputs(ids ...string) func(*StepSpec) {
	return func(s *StepSpec) {
		s.Inputs = nil
		for _, id := range ids {
			s.Inputs = append(s.Inputs, dataset.Unqualified(id))
		}
	}
}

// WithOutput sets the unqualified output dataset.
func WithOutput(id string) func(*StepSpec) {
	return func(s *StepSpec) {
		s.Output = dataset.Unqualified(id)
	}
}

// WithFunc sets the step body.
func WithFunc(fn pipeline.TransformFunc) func(*StepSpec) {
	return func(s *StepSpec) {
		s.Func = fn
	}
}

// CreateTestPipeline creates the two-step pipeline A -> B -> C used across tests: step1
// reads A and writes B, step2 reads B and writes C.
func CreateTestPipeline(t *testing.T) []*pipeline.Node {
	t.Helper()

	return []*pipeline.Node{
		CreateTestStep(t, WithName("step1"), WithInputs("A"), WithOutput("B")),
		CreateTestStep(t, WithName("step2"), WithInputs("B"), WithOutput("C")),
	}
}

// CreateTestStore creates an in-memory store with the given datasets of namespace seeded
// with JSON values.
func CreateTestStore(t *testing.T, namespace string, seed map[string]any) *store.Store {
	t.Helper()

	st, _, _ := memory.New()

	for id, v := range seed {
		ds, err := st.Dataset(namespace, id)
		require.NoError(t, err)
		require.NoError(t, store.WriteJSON(id, "", v).Apply(context.Background(), ds))
	}

	return st
}

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
