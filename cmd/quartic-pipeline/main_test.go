package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/quartictech/quartic/pkg/checkpoint"
	"github.com/quartictech/quartic/pkg/engine"
	"github.com/quartictech/quartic/pkg/eventbus"
	"github.com/quartictech/quartic/pkg/graph"
	"github.com/quartictech/quartic/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer

	command := newCommand()
	command.Writer = &out

	base := []string{"quartic-pipeline"}
	err := command.Run(context.Background(), append(base, args...))

	return out.String(), err
}

func TestJSONAction(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "graph.json")

	_, err := runCommand(t, "json",
		"--config", filepath.Join(dir, "missing.yml"),
		"--namespace", "weather",
		"--plugins-path", dir,
		"--output", output,
		"examples/weather",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)

	var g graph.JSONGraph
	require.NoError(t, json.Unmarshal(data, &g))
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)
}

func TestGraphvizAction(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "graph.dot")

	_, err := runCommand(t, "graphviz",
		"--config", filepath.Join(dir, "missing.yml"),
		"--namespace", "weather",
		"--plugins-path", dir,
		"--output", output,
		"examples/weather",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "digraph")
	assert.Contains(t, string(data), "weather::average_temperatures")
}

func TestExplainAction(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, "explain",
		"--config", filepath.Join(dir, "missing.yml"),
		"--namespace", "weather",
		"--plugins-path", dir,
		"examples/weather",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "weather::stations_raw")
	assert.Contains(t, out, "[clean stations]")
	assert.Contains(t, out, "[average temperatures]")
	assert.NotContains(t, out, "Skipping due to checkpoint")
}

func TestRunChecksRawDatasets(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, "run",
		"--config", filepath.Join(dir, "missing.yml"),
		"--namespace", "weather",
		"--plugins-path", dir,
		"--store-url", "file://"+filepath.Join(dir, "store"),
		"--resume-file", filepath.Join(dir, "checkpoint.json"),
		"--check-raw-datasets",
		"examples/weather",
	)
	require.ErrorIs(t, err, engine.ErrMissingRawDatasets)
}

func TestRunFollowPrintsEvents(t *testing.T) {
	dir := t.TempDir()

	out, err := runCommand(t, "run",
		"--config", filepath.Join(dir, "missing.yml"),
		"--namespace", "weather",
		"--plugins-path", dir,
		"--store-url", "file://"+filepath.Join(dir, "store"),
		"--event-bus", "gochannel",
		"--check-raw-datasets",
		"--follow",
		"examples/weather",
	)
	require.ErrorIs(t, err, engine.ErrMissingRawDatasets)
	assert.Contains(t, out, "failed after")
	assert.Contains(t, out, "weather::stations_raw")
}

func TestRunFollowNeedsEventBus(t *testing.T) {
	dir := t.TempDir()

	_, err := runCommand(t, "run",
		"--config", filepath.Join(dir, "missing.yml"),
		"--namespace", "weather",
		"--plugins-path", dir,
		"--event-bus", "none",
		"--follow",
		"examples/weather",
	)
	require.ErrorIs(t, err, errFollowWithoutBus)
}

func TestConfigFileSuppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "quartic.yml")

	require.NoError(t, os.WriteFile(cfg, []byte("namespace: weather\nmodules: [examples/weather]\n"), 0o600))

	out, err := runCommand(t, "explain", "--config", cfg, "--plugins-path", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "weather::average_temperatures")
}

func TestSessionCloseFlushesTracer(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var flushed bool

	s := &session{
		logger:      testutil.Logger(),
		checkpoints: checkpoint.NewMemory(),
		eventBus:    eventbus.Nop{},
		shutdown: func(ctx context.Context) error {
			flushed = ctx.Err() == nil

			return nil
		},
	}

	s.Close(ctx)

	assert.True(t, flushed, "tracer must be shut down with a live context")
}
