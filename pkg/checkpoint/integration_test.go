package checkpoint_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/quartictech/quartic/pkg/checkpoint"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("quartic_test"),
		postgres.WithUsername("quartic"),
		postgres.WithPassword("quartic"),
		postgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)

	defer func() { _ = testcontainers.TerminateContainer(container) }()

	databaseURL, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	store, err := checkpoint.Open(ctx, slog.Default(), databaseURL, "test")
	require.NoError(t, err)

	defer func() { _ = store.Close() }()

	exerciseStore(t, store)

	again, err := checkpoint.NewSQL(ctx, slog.Default(), checkpoint.DriverPostgres, databaseURL, "test")
	require.NoError(t, err)
	require.NoError(t, again.Close())
}

func TestRedisStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)

	defer func() { _ = testcontainers.TerminateContainer(container) }()

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	store, err := checkpoint.Open(ctx, slog.Default(), "redis://"+endpoint+"/0", "test")
	require.NoError(t, err)

	defer func() { _ = store.Close() }()

	exerciseStore(t, store)

	require.NoError(t, store.(*checkpoint.Redis).Clear(ctx))
}
