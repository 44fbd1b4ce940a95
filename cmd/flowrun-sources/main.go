// Command flowrun-sources runs the redis queue and cron trigger sources.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/services"
)

const serviceName = "flowrun-sources"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Fire trigger events from redis queues and cron schedules",
		EnableShellCompletion: true,
		Flags: cmd.Flags(
			cmd.DatabaseFlags(),
			cmd.EventBusFlags(),
			cmd.ObservabilityFlags(),
			cmd.SourceFlags(),
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

	logger.InfoContext(ctx, "Initializing flowrun sources")

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

	trigger := services.NewTrigger(persistence.Workflows(), eventBus, cmd.TopicsFrom(command).TriggerEvent)

	sources, cleanup, err := cmd.NewSources(ctx, command, persistence.Workflows(), logger)
	if err != nil {
		return err
	}

	defer cleanup()

	if err := cmd.StartSources(ctx, logger, sources, trigger.Fire); err != nil {
		return err
	}

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutting down sources")

	return cmd.StopSources(context.WithoutCancel(ctx), sources)
}
