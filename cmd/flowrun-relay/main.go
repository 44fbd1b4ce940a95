// Command flowrun-relay publishes pending outbox entries to the run-ready topic.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/outbox"
)

const serviceName = "flowrun-relay"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Publish pending outbox entries",
		EnableShellCompletion: true,
		Flags: cmd.Flags(
			cmd.DatabaseFlags(),
			cmd.EventBusFlags(),
			cmd.ObservabilityFlags(),
			[]cli.Flag{
				&cli.DurationFlag{
					Name:    "poll-interval",
					Usage:   "How often the outbox is polled",
					Value:   outbox.DefaultPollInterval,
					Sources: cli.EnvVars("OUTBOX_POLL_INTERVAL"),
				},
				&cli.IntFlag{
					Name:    "batch-size",
					Usage:   "Maximum number of entries published per poll",
					Value:   outbox.DefaultBatchSize,
					Sources: cli.EnvVars("OUTBOX_BATCH_SIZE"),
				},
			},
		),
		Action: run,
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, shutdown := cmd.SetupObservability(ctx, command, serviceName)
	defer shutdown()

	logger.InfoContext(ctx, "Initializing flowrun relay")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(cmd.EventBusConfigFrom(command, serviceName), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	relay := outbox.NewRelay(logger, persistence.Outbox(), eventBus, outbox.Config{
		PollInterval: command.Duration("poll-interval"),
		BatchSize:    command.Int("batch-size"),
		Topic:        cmd.TopicsFrom(command).RunReady,
	})

	err = relay.Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.InfoContext(ctx, "Shutting down relay")

		return nil
	}

	return err
}
