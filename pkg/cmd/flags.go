package cmd

import (
	"context"
	"log/slog"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/events"
	"github.com/dukex/flowrun/pkg/log"
	"github.com/dukex/flowrun/pkg/metrics"
	"github.com/dukex/flowrun/pkg/otelhelper"
)

// DatabaseFlags configures the store.
func DatabaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "database-url",
			Usage:    "Database connection URL for persistence (postgres://..., memory://)",
			Required: true,
			Sources:  cli.EnvVars("DATABASE_URL"),
		},
	}
}

// EventBusFlags configures the bus provider and the topic names.
func EventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus provider (kafka, watermill-kafka, memory)",
			Value:   EventBusKafka,
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated list of Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
		&cli.StringFlag{
			Name:    "kafka-group-id",
			Usage:   "Kafka consumer group id",
			Sources: cli.EnvVars("KAFKA_GROUP_ID"),
		},
		&cli.StringFlag{
			Name:    "trigger-event-topic",
			Usage:   "Topic carrying trigger events",
			Value:   events.TriggerEventTopic,
			Sources: cli.EnvVars("TRIGGER_EVENT_TOPIC"),
		},
		&cli.StringFlag{
			Name:    "run-ready-topic",
			Usage:   "Topic the outbox relay publishes run ids to",
			Value:   events.RunReadyTopic,
			Sources: cli.EnvVars("RUN_READY_TOPIC"),
		},
		&cli.StringFlag{
			Name:    "run-requested-topic",
			Usage:   "Topic carrying execution requests for workers",
			Value:   events.RunRequestedTopic,
			Sources: cli.EnvVars("RUN_REQUESTED_TOPIC"),
		},
	}
}

// ObservabilityFlags configures logging, tracing and the metrics listener.
func ObservabilityFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Usage:   "Log format (text, json)",
			Value:   "text",
			Sources: cli.EnvVars("LOG_FORMAT"),
		},
		&cli.BoolFlag{
			Name:    "otel-enabled",
			Usage:   "Export traces over OTLP/HTTP",
			Sources: cli.EnvVars("OTEL_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "metrics-addr",
			Usage:   "Address of the Prometheus metrics listener, empty to disable",
			Value:   ":9090",
			Sources: cli.EnvVars("METRICS_ADDR"),
		},
	}
}

func Flags(groups ...[]cli.Flag) []cli.Flag {
	var flags []cli.Flag
	for _, group := range groups {
		flags = append(flags, group...)
	}

	return flags
}

func EventBusConfigFrom(command *cli.Command, serviceName string) EventBusConfig {
	return EventBusConfig{
		Provider:    command.String("event-bus"),
		Brokers:     command.String("kafka-brokers"),
		GroupID:     command.String("kafka-group-id"),
		ServiceName: serviceName,
	}
}

func TopicsFrom(command *cli.Command) events.Topics {
	return events.Topics{
		TriggerEvent: command.String("trigger-event-topic"),
		RunReady:     command.String("run-ready-topic"),
		RunRequested: command.String("run-requested-topic"),
	}
}

// SetupObservability installs the default logger, starts tracing when
// enabled and serves metrics until ctx is done. The returned function
// flushes pending spans.
func SetupObservability(ctx context.Context, command *cli.Command, serviceName string) (*slog.Logger, func()) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(serviceName)
	shutdown := func() {}

	if command.Bool("otel-enabled") {
		shutdownTracer, err := otelhelper.Setup(ctx, serviceName)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to set up tracing", "error", err)
		} else {
			shutdown = func() {
				if err := shutdownTracer(context.WithoutCancel(ctx)); err != nil {
					logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
				}
			}
		}
	}

	metrics.Serve(ctx, logger, command.String("metrics-addr"))

	return logger, shutdown
}
