// Command flowrun-worker executes requested runs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/executor"
)

const serviceName = "flowrun-worker"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Start workers to execute runs",
		EnableShellCompletion: true,
		Flags: cmd.Flags(
			cmd.DatabaseFlags(),
			cmd.EventBusFlags(),
			cmd.ObservabilityFlags(),
			cmd.ActionFlags(),
			[]cli.Flag{
				&cli.StringFlag{
					Name:    "worker-id",
					Aliases: []string{"id"},
					Usage:   "Custom worker ID (auto-generated if not provided)",
					Sources: cli.EnvVars("WORKER_ID"),
				},
				&cli.DurationFlag{
					Name:    "action-timeout",
					Usage:   "Maximum duration of a single action",
					Value:   executor.DefaultActionTimeout,
					Sources: cli.EnvVars("ACTION_TIMEOUT"),
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

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger = logger.With("worker_id", workerID)
	logger.InfoContext(ctx, "Initializing flowrun worker")

	registry, err := cmd.NewRegistry(logger, cmd.RegistryConfigFrom(command))
	if err != nil {
		return err
	}

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

	exec := executor.NewExecutor(logger, persistence.Runs(), registry, executor.Config{
		ActionTimeout: command.Duration("action-timeout"),
		WorkerID:      workerID,
	})

	if err := exec.Subscribe(ctx, eventBus, cmd.TopicsFrom(command).RunRequested); err != nil {
		return fmt.Errorf("failed to subscribe worker: %w", err)
	}

	logger.InfoContext(ctx, "Worker started successfully", "actions", registry.Types())

	<-ctx.Done()
	logger.InfoContext(ctx, "Shutting down worker")

	return nil
}
