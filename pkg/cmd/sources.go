package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/protocol"
	"github.com/dukex/flowrun/pkg/sources/queue"
	"github.com/dukex/flowrun/pkg/sources/schedule"
)

// SourceFlags configures the redis queue and cron sources.
func SourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "queue-enabled",
			Usage:   "Consume trigger items from a redis list",
			Value:   true,
			Sources: cli.EnvVars("QUEUE_ENABLED"),
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Usage:   "Redis address of the queue source",
			Value:   "localhost:6379",
			Sources: cli.EnvVars("REDIS_ADDR"),
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password of the queue source",
			Sources: cli.EnvVars("REDIS_PASSWORD"),
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database of the queue source",
			Sources: cli.EnvVars("REDIS_DB"),
		},
		&cli.StringFlag{
			Name:    "queue",
			Usage:   "Redis list holding trigger items",
			Value:   queue.DefaultQueue,
			Sources: cli.EnvVars("QUEUE_NAME"),
		},
		&cli.BoolFlag{
			Name:    "schedule-enabled",
			Usage:   "Fire workflows bound to schedule triggers",
			Value:   true,
			Sources: cli.EnvVars("SCHEDULE_ENABLED"),
		},
		&cli.DurationFlag{
			Name:    "schedule-reload-interval",
			Usage:   "How often schedule workflows are reloaded",
			Value:   schedule.DefaultReloadInterval,
			Sources: cli.EnvVars("SCHEDULE_RELOAD_INTERVAL"),
		},
	}
}

// NewSources builds the enabled trigger sources. The returned function
// releases their clients.
func NewSources(
	ctx context.Context,
	command *cli.Command,
	workflows persistence.WorkflowRepository,
	logger *slog.Logger,
) ([]protocol.Source, func(), error) {
	var sources []protocol.Source

	cleanup := func() {}

	if command.Bool("queue-enabled") {
		client, err := queue.NewClient(ctx, queue.Config{
			Addr:     command.String("redis-addr"),
			Password: command.String("redis-password"),
			DB:       command.Int("redis-db"),
		})
		if err != nil {
			return nil, cleanup, err
		}

		cleanup = func() {
			if err := client.Close(); err != nil {
				logger.ErrorContext(ctx, "Error closing Redis client", "error", err)
			}
		}

		source, err := queue.NewSource(client, command.String("queue"), logger)
		if err != nil {
			cleanup()

			return nil, func() {}, err
		}

		sources = append(sources, source)
	}

	if command.Bool("schedule-enabled") {
		sources = append(sources, schedule.NewSource(workflows, command.Duration("schedule-reload-interval"), logger))
	}

	return sources, cleanup, nil
}

// StartSources starts every source. On failure the sources are stopped again.
func StartSources(ctx context.Context, logger *slog.Logger, sources []protocol.Source, callback protocol.TriggerCallback) error {
	if len(sources) == 0 {
		logger.WarnContext(ctx, "No trigger sources enabled")
	}

	for _, source := range sources {
		if err := source.Start(ctx, callback); err != nil {
			return errors.Join(fmt.Errorf("failed to start source: %w", err), StopSources(ctx, sources))
		}
	}

	return nil
}

func StopSources(ctx context.Context, sources []protocol.Source) error {
	var errs []error

	for _, source := range sources {
		if err := source.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
