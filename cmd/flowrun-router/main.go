// Command flowrun-router turns trigger events and run-ready announcements
// into running runs and execution requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/router"
)

const serviceName = "flowrun-router"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Route trigger events to runs",
		EnableShellCompletion: true,
		Flags:                 cmd.Flags(cmd.DatabaseFlags(), cmd.EventBusFlags(), cmd.ObservabilityFlags()),
		Action:                run,
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

	logger.InfoContext(ctx, "Initializing flowrun router")

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

	r := router.NewRouter(logger, persistence.Runs(), eventBus, cmd.TopicsFrom(command))
	if err := r.Subscribe(ctx, eventBus); err != nil {
		return fmt.Errorf("failed to subscribe router: %w", err)
	}

	logger.InfoContext(ctx, "Router started successfully")

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutting down router")

	return nil
}
