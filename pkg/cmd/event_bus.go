package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"

	"github.com/dukex/flowrun/pkg/channels/gochannel"
	kafkachannel "github.com/dukex/flowrun/pkg/channels/kafka"
	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/eventbus/kafka"
)

const (
	EventBusKafka          = "kafka"
	EventBusWatermillKafka = "watermill-kafka"
	EventBusMemory         = "memory"
)

var ErrUnsupportedEventBus = errors.New("unsupported event bus provider")

type EventBusConfig struct {
	Provider    string
	Brokers     string
	GroupID     string
	ServiceName string
}

// NewEventBus builds the bus for the configured provider. The memory bus
// only connects components running in the same process.
func NewEventBus(config EventBusConfig, logger *slog.Logger) (eventbus.EventBus, error) {
	switch config.Provider {
	case EventBusKafka:
		bus, err := kafka.NewEventBus(logger, kafka.Config{
			Brokers: kafka.ParseBrokers(config.Brokers),
			GroupID: config.GroupID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka event bus: %w", err)
		}

		return bus, nil
	case EventBusWatermillKafka:
		pub, sub, err := kafkachannel.CreateChannel(
			watermill.NewSlogLogger(logger),
			kafka.ParseBrokers(config.Brokers),
			config.ServiceName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	case EventBusMemory:
		pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory pub/sub: %w", err)
		}

		return eventbus.NewWatermillEventBus(logger, pub, sub), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEventBus, config.Provider)
	}
}
