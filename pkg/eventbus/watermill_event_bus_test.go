package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/quartictech/quartic/pkg/channels/gochannel"
	"github.com/quartictech/quartic/pkg/eventbus"
	"github.com/quartictech/quartic/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillEventBusRoundTrip(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pub, sub := gochannel.CreateTestChannel(watermill.NopLogger{})
	bus := eventbus.NewWatermillEventBus(pub, sub)

	defer func() { _ = bus.Close() }()

	skipped := events.StepSkipped{
		BaseEvent: events.NewBaseEvent(events.StepSkippedEvent, "run-1", "test"),
		StepRef:   events.StepRef{StepID: "42", StepName: "clean", Output: "test::clean"},
	}

	require.NoError(t, bus.Publish(ctx, "run-1", skipped))
	require.NoError(t, bus.Publish(ctx, "run-1", events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, "run-1", "test"),
		Steps:     1,
	}))

	received := make(chan *events.StepSkipped, 1)

	require.NoError(t, bus.Handle(events.StepSkippedEvent, func(ctx context.Context, event any) error {
		received <- event.(*events.StepSkipped)

		return nil
	}))
	require.NoError(t, bus.Subscribe(ctx))

	select {
	case got := <-received:
		assert.Equal(t, events.StepSkippedEvent, got.Type)
		assert.Equal(t, "run-1", got.RunID)
		assert.Equal(t, skipped.StepRef, got.StepRef)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestNopBus(t *testing.T) {
	t.Parallel()

	var bus eventbus.EventBus = eventbus.Nop{}

	require.NoError(t, bus.Publish(context.Background(), "k", events.RunStarted{}))
	require.NoError(t, bus.Close())
}

func TestNewEventForType(t *testing.T) {
	t.Parallel()

	assert.IsType(t, &events.StepFailed{}, events.New(events.StepFailedEvent))
	assert.Nil(t, events.New("unknown"))
}
