package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/quartictech/quartic/examples/weather"
	"github.com/quartictech/quartic/pkg/loader"
	"github.com/quartictech/quartic/pkg/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestApp(t *testing.T) *fiber.App {
	t.Helper()

	l := loader.New(pipeline.NewRegistry(slog.Default()), slog.Default())
	require.NoError(t, l.Register("weather", weather.Define))

	nodes, err := l.Load("weather")
	require.NoError(t, err)

	return NewAPI(slog.Default(), nodes, "weather").App()
}

func get(t *testing.T, app *fiber.App, target string) (*http.Response, []byte) {
	t.Helper()

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, target, nil))
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp, body
}

func TestAPI_RootEndpoint(t *testing.T) {
	resp, body := get(t, setupTestApp(t), "/")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Quartic API", string(body))
}

func TestAPI_HealthCheck(t *testing.T) {
	resp, body := get(t, setupTestApp(t), "/livez")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))
}

func TestAPI_GetSteps(t *testing.T) {
	resp, body := get(t, setupTestApp(t), "/steps")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var steps struct {
		Steps []pipeline.Descriptor `json:"steps"`
		Total int                   `json:"total"`
	}
	require.NoError(t, json.Unmarshal(body, &steps))
	assert.Equal(t, 4, steps.Total)
	assert.Equal(t, "ingest stations", steps.Steps[0].Name)

	resp, body = get(t, setupTestApp(t), "/steps/"+steps.Steps[2].ID)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var step pipeline.Descriptor
	require.NoError(t, json.Unmarshal(body, &step))
	assert.Equal(t, "clean stations", step.Name)
}

func TestAPI_GetSchedule(t *testing.T) {
	resp, body := get(t, setupTestApp(t), "/schedule")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var plan map[string]any
	require.NoError(t, json.Unmarshal(body, &plan))
	assert.Equal(t, "weather", plan["namespace"])
	assert.Len(t, plan["raw"], 2)
	assert.Len(t, plan["derived"], 2)
}
