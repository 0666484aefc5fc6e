// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/quartictech/quartic/pkg/channels/gochannel"
	"github.com/quartictech/quartic/pkg/channels/kafka"
	"github.com/quartictech/quartic/pkg/eventbus"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

// NewEventBus creates the event bus named by provider. "none" discards every event.
//
// nolint:ireturn // the bus is selected at runtime
func NewEventBus(provider, brokers string, logger *slog.Logger) (eventbus.EventBus, error) {
	switch provider {
	case "", "none":
		return eventbus.Nop{}, nil
	case "gochannel":
		pub, sub := gochannel.CreateChannel(watermill.NewSlogLogger(logger))

		return eventbus.NewWatermillEventBus(pub, sub), nil
	case "kafka":
		pub, sub, err := kafka.CreateChannel(watermill.NewSlogLogger(logger), kafka.ParseBrokers(brokers), "quartic")
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(pub, sub), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEventBus, provider)
	}
}
