// Command flowrun-api serves the HTTP ingress for workflows, runs and webhooks.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/flowrun/pkg/cmd"
)

const (
	serviceName = "flowrun-api"
	defaultPort = 9091
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Create workflows, enqueue runs and receive webhooks",
		EnableShellCompletion: true,
		Flags: cmd.Flags(
			cmd.DatabaseFlags(),
			cmd.EventBusFlags(),
			cmd.ObservabilityFlags(),
			cmd.ActionFlags(),
			[]cli.Flag{
				&cli.IntFlag{
					Name:    "port",
					Aliases: []string{"p"},
					Usage:   "Port to run the API server on",
					Value:   defaultPort,
					Sources: cli.EnvVars("PORT"),
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

	logger.InfoContext(ctx, "Initializing flowrun API")

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

	app := NewAPI(logger, persistence, registry, eventBus, cmd.TopicsFrom(command).TriggerEvent).App()

	go func() {
		<-ctx.Done()

		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.ErrorContext(ctx, "Failed to shutdown API", "error", err)
		}
	}()

	return app.Listen(fmt.Sprintf(":%d", command.Int("port")))
}
