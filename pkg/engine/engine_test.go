package engine_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/quartictech/quartic/pkg/checkpoint"
	"github.com/quartictech/quartic/pkg/dataset"
	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/events"
	"github.com/quartictech/quartic/pkg/graph"
	"github.com/quartictech/quartic/pkg/mocks"
	"github.com/quartictech/quartic/pkg/pipeline"
	"github.com/quartictech/quartic/pkg/store"
	"github.com/quartictech/quartic/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const ns = "test"

func q(id string) dataset.Coordinate {
	return dataset.Qualified(ns, id)
}

func newBus() *mocks.MockEventBus {
	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	return bus
}

func TestRunExecutesStepsInOrder(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testutil.CreateTestStore(t, ns, map[string]any{"A": 1})
	checkpoints := checkpoint.NewMemory()
	bus := newBus()

	eng := engine.New(st, checkpoints, bus, nil, testutil.Logger())

	run, err := eng.Run(ctx, testutil.CreateTestPipeline(t), engine.RunOptions{Namespace: ns, CheckRawDatasets: true})
	require.NoError(t, err)

	assert.Equal(t, engine.Completed, run.State)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, []dataset.Coordinate{q("A"), q("B"), q("C")}, run.Schedule.Order)
	assert.Equal(t, []dataset.Coordinate{q("B"), q("C")}, run.Executed)
	assert.Empty(t, run.Skipped)

	done, err := checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test::B", "test::C"}, done.Strings())

	ds, err := st.Resolve(q("C"))
	require.NoError(t, err)

	var out string
	require.NoError(t, store.ReadJSON(ctx, ds, &out))
	assert.Equal(t, "ok", out)

	assert.Equal(t, []events.EventType{
		events.RunStartedEvent,
		events.StepStartedEvent,
		events.StepCompletedEvent,
		events.StepStartedEvent,
		events.StepCompletedEvent,
		events.RunCompletedEvent,
	}, bus.Types())
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testutil.CreateTestStore(t, ns, map[string]any{"A": 1})

	checkpoints := checkpoint.NewMemory()
	require.NoError(t, checkpoints.Save(ctx, checkpoint.NewSet(q("B"))))

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	bus := newBus()

	eng := engine.New(st, checkpoints, bus, nil, logger)

	run, err := eng.Run(ctx, testutil.CreateTestPipeline(t), engine.RunOptions{Namespace: ns})
	require.NoError(t, err)

	assert.Equal(t, []dataset.Coordinate{q("B")}, run.Skipped)
	assert.Equal(t, []dataset.Coordinate{q("C")}, run.Executed)
	assert.Contains(t, logs.String(), "Skipping step")
	assert.Contains(t, logs.String(), "step=step1")

	exists, err := st.Resolve(q("B"))
	require.NoError(t, err)

	ok, err := exists.Exists(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "skipped step must not write its output")

	done, err := checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test::B", "test::C"}, done.Strings())

	assert.Contains(t, bus.Types(), events.StepSkippedEvent)
}

func TestRunQualifiesCheckpointEntries(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testutil.CreateTestStore(t, ns, map[string]any{"A": 1})

	path := filepath.Join(t.TempDir(), "resume.json")
	require.NoError(t, os.WriteFile(path, []byte(`["::B"]`), 0o600))

	checkpoints := checkpoint.NewFile(path)
	eng := engine.New(st, checkpoints, nil, nil, testutil.Logger())

	run, err := eng.Run(ctx, testutil.CreateTestPipeline(t), engine.RunOptions{Namespace: ns})
	require.NoError(t, err)

	assert.Equal(t, []dataset.Coordinate{q("B")}, run.Skipped)
	assert.Equal(t, []dataset.Coordinate{q("C")}, run.Executed)

	done, err := checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test::B", "test::C"}, done.Strings())
}

func TestRunStopsOnUserCodeError(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	boom := errors.New("boom")
	st := testutil.CreateTestStore(t, ns, map[string]any{"A": 1})
	checkpoints := checkpoint.NewMemory()
	bus := newBus()

	nodes := []*pipeline.Node{
		testutil.CreateTestStep(t, testutil.WithName("step1"), testutil.WithInputs("A"), testutil.WithOutput("B")),
		testutil.CreateTestStep(t, testutil.WithName("step2"), testutil.WithInputs("B"), testutil.WithOutput("C"),
			testutil.WithFunc(testutil.Failing(boom))),
	}

	eng := engine.New(st, checkpoints, bus, nil, testutil.Logger())

	run, err := eng.Run(ctx, nodes, engine.RunOptions{Namespace: ns})
	require.Error(t, err)

	assert.True(t, engine.IsUserCodeError(err))
	require.ErrorIs(t, err, boom)

	var userErr *engine.UserCodeError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, nodes[1].ID(), userErr.StepID)
	assert.Equal(t, nodes[1].File(), userErr.File)
	assert.Equal(t, nodes[1].Source().LineRange[0], userErr.Line)
	assert.Equal(t, "*errors.errorString", userErr.Type)
	assert.Equal(t, []string{"boom"}, userErr.Args)

	assert.Equal(t, engine.Failed, run.State)
	assert.Equal(t, err, run.Err)
	assert.Equal(t, []dataset.Coordinate{q("B")}, run.Executed)

	done, err := checkpoints.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"test::B"}, done.Strings())

	types := bus.Types()
	assert.Equal(t, events.StepFailedEvent, types[len(types)-2])
	assert.Equal(t, events.RunFailedEvent, types[len(types)-1])
}

func TestRunLocatesPanics(t *testing.T) {
	t.Parallel()

	st := testutil.CreateTestStore(t, ns, nil)

	node := testutil.CreateTestStep(t, testutil.WithInputs("A"), testutil.WithFunc(func(ctx context.Context, in pipeline.Inputs) (store.Writer, error) {
		panic("kaboom")
	}))

	eng := engine.New(st, nil, nil, nil, testutil.Logger())

	_, err := eng.Run(context.Background(), []*pipeline.Node{node}, engine.RunOptions{Namespace: ns})
	require.Error(t, err)

	var userErr *engine.UserCodeError
	require.ErrorAs(t, err, &userErr)
	assert.Equal(t, "engine_test.go", userErr.File)
	assert.Greater(t, userErr.Line, node.Source().LineRange[0])
	assert.Equal(t, "string", userErr.Type)
	assert.Equal(t, []string{"kaboom"}, userErr.Args)
	assert.Contains(t, err.Error(), "engine_test.go:")
}

func TestRunRejectsInvalidGraphs(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		nodes  func(t *testing.T) []*pipeline.Node
		target error
	}{
		"no steps": {
			nodes:  func(t *testing.T) []*pipeline.Node { return nil },
			target: graph.ErrNoSteps,
		},
		"multiple writers": {
			nodes: func(t *testing.T) []*pipeline.Node {
				return []*pipeline.Node{
					testutil.CreateTestStep(t, testutil.WithName("step1"), testutil.WithInputs("A"), testutil.WithOutput("C")),
					testutil.CreateTestStep(t, testutil.WithName("step2"), testutil.WithInputs("B"), testutil.WithOutput("C")),
				}
			},
			target: graph.ErrMultipleWriters,
		},
		"cycle": {
			nodes: func(t *testing.T) []*pipeline.Node {
				return append(testutil.CreateTestPipeline(t),
					testutil.CreateTestStep(t, testutil.WithName("step3"), testutil.WithInputs("C"), testutil.WithOutput("A")))
			},
			target: graph.ErrNotDAG,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			bus := newBus()
			checkpoints := &mocks.MockCheckpointStore{}

			eng := engine.New(testutil.CreateTestStore(t, ns, nil), checkpoints, bus, nil, testutil.Logger())

			run, err := eng.Run(context.Background(), tc.nodes(t), engine.RunOptions{Namespace: ns})
			require.ErrorIs(t, err, tc.target)
			assert.True(t, graph.IsValidationError(err) || errors.Is(err, graph.ErrNoSteps))

			assert.Equal(t, engine.Failed, run.State)
			assert.Nil(t, run.Schedule)
			assert.Equal(t, []events.EventType{events.RunFailedEvent}, bus.Types())
			checkpoints.AssertNotCalled(t, "Load", mock.Anything)
		})
	}
}

func TestRunChecksRawDatasets(t *testing.T) {
	t.Parallel()

	nodes := []*pipeline.Node{
		testutil.CreateTestStep(t, testutil.WithName("join"), testutil.WithInputs("A", "B", "Z"), testutil.WithOutput("C")),
	}

	eng := engine.New(testutil.CreateTestStore(t, ns, map[string]any{"B": 1}), nil, nil, nil, testutil.Logger())

	run, err := eng.Run(context.Background(), nodes, engine.RunOptions{Namespace: ns, CheckRawDatasets: true})
	require.ErrorIs(t, err, engine.ErrMissingRawDatasets)

	var missing *engine.MissingDatasetsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []dataset.Coordinate{q("A"), q("Z")}, missing.Datasets)
	assert.Equal(t, engine.Failed, run.State)
	assert.Empty(t, run.Executed)
}

func TestRunSurvivesEventBusFailures(t *testing.T) {
	t.Parallel()

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("broker down"))

	eng := engine.New(testutil.CreateTestStore(t, ns, nil), nil, bus, nil, testutil.Logger())

	run, err := eng.Run(context.Background(), []*pipeline.Node{testutil.CreateTestStep(t, testutil.WithInputs("A"))}, engine.RunOptions{Namespace: ns})
	require.NoError(t, err)
	assert.Equal(t, engine.Completed, run.State)
}

func TestRunFailsWhenCheckpointCannotBeSaved(t *testing.T) {
	t.Parallel()

	saveErr := errors.New("disk full")

	checkpoints := &mocks.MockCheckpointStore{}
	checkpoints.On("Load", mock.Anything).Return(checkpoint.NewSet(), nil)
	checkpoints.On("Save", mock.Anything, mock.Anything).Return(saveErr)

	eng := engine.New(testutil.CreateTestStore(t, ns, map[string]any{"A": 1}), checkpoints, nil, nil, testutil.Logger())

	run, err := eng.Run(context.Background(), testutil.CreateTestPipeline(t), engine.RunOptions{Namespace: ns})
	require.ErrorIs(t, err, saveErr)
	assert.False(t, engine.IsUserCodeError(err))
	assert.Equal(t, []dataset.Coordinate{q("B")}, run.Executed)
	checkpoints.AssertNumberOfCalls(t, "Save", 1)
}

func TestExecuteSingleStep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	st := testutil.CreateTestStore(t, ns, nil)
	checkpoints := &mocks.MockCheckpointStore{}
	nodes := testutil.CreateTestPipeline(t)

	eng := engine.New(st, checkpoints, nil, nil, testutil.Logger())

	require.NoError(t, eng.Execute(ctx, nodes, ns, nodes[1].ID()))

	ds, err := st.Resolve(q("C"))
	require.NoError(t, err)

	ok, err := ds.DataExists(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	checkpoints.AssertNotCalled(t, "Load", mock.Anything)
	checkpoints.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestExecuteLookupErrors(t *testing.T) {
	t.Parallel()

	nodes := testutil.CreateTestPipeline(t)
	eng := engine.New(testutil.CreateTestStore(t, ns, nil), nil, nil, nil, testutil.Logger())

	err := eng.Execute(context.Background(), nodes, ns, "nonexistent")
	require.ErrorIs(t, err, engine.ErrNoMatchingStep)

	var noMatch *engine.NoMatchError
	require.ErrorAs(t, err, &noMatch)
	assert.Equal(t, "nonexistent", noMatch.StepID)
	assert.Equal(t, []string{nodes[0].ID(), nodes[1].ID()}, noMatch.Available)

	twin := testutil.CreateTestStep(t, testutil.WithName("step1 again"), testutil.WithInputs("A"), testutil.WithOutput("B"))
	require.Equal(t, nodes[0].ID(), twin.ID())

	err = eng.Execute(context.Background(), append(nodes, twin), ns, twin.ID())
	require.ErrorIs(t, err, engine.ErrMultipleMatchingSteps)

	var multi *engine.MultipleMatchError
	require.ErrorAs(t, err, &multi)
	require.Len(t, multi.Matches, 2)
	assert.Equal(t, "step1", multi.Matches[0].Name)
	assert.Equal(t, "step1 again", multi.Matches[1].Name)
	assert.Contains(t, err.Error(), "step1 again")
}

func TestStateTransitions(t *testing.T) {
	t.Parallel()

	cases := []struct {
		from, to engine.State
		ok       bool
	}{
		{engine.Idle, engine.Validated, true},
		{engine.Validated, engine.Scheduled, true},
		{engine.Scheduled, engine.Executing, true},
		{engine.Executing, engine.Completed, true},
		{engine.Idle, engine.Failed, true},
		{engine.Executing, engine.Failed, true},
		{engine.Idle, engine.Executing, false},
		{engine.Scheduled, engine.Completed, false},
		{engine.Completed, engine.Failed, false},
		{engine.Failed, engine.Idle, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.ok, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}

	assert.True(t, engine.Completed.Terminal())
	assert.True(t, engine.Failed.Terminal())
	assert.False(t, engine.Executing.Terminal())
	assert.Equal(t, "scheduled", engine.Scheduled.String())
	assert.Equal(t, "unknown", engine.State(42).String())

	err := &engine.TransitionError{From: engine.Idle, To: engine.Completed}
	require.ErrorIs(t, err, engine.ErrIllegalTransition)
	assert.Equal(t, "illegal run state transition: idle -> completed", err.Error())
}

func TestExplain(t *testing.T) {
	t.Parallel()

	nodes := []*pipeline.Node{
		testutil.CreateTestStep(t, testutil.WithName("step1"), testutil.WithDescription("first"),
			testutil.WithInputs("A"), testutil.WithOutput("B")),
		testutil.CreateTestStep(t, testutil.WithName("step2"), testutil.WithInputs("B"), testutil.WithOutput("C")),
	}

	g, err := graph.Build(nodes, ns)
	require.NoError(t, err)

	schedule, err := graph.NewSchedule(g)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, engine.Explain(&out, schedule, ns, checkpoint.NewSet(dataset.Unqualified("B"))))

	text := out.String()
	assert.Contains(t, text, "  - test::A")
	assert.Contains(t, text, "[step1] first ---")
	assert.Contains(t, text, "inputs: test::B")
	assert.Contains(t, text, "output: test::C")
	assert.Equal(t, 1, strings.Count(text, "Skipping due to checkpoint"))
}
