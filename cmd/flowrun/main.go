// Command flowrun runs the API, relay, router, worker and trigger sources in
// a single process. With the memory bus and the memory:// store it needs no
// external services.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/dukex/flowrun/pkg/cmd"
	"github.com/dukex/flowrun/pkg/executor"
	"github.com/dukex/flowrun/pkg/outbox"
	"github.com/dukex/flowrun/pkg/router"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/web"
)

const serviceName = "flowrun"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Run the whole trigger-to-execution pipeline in one process",
		EnableShellCompletion: true,
		Flags: cmd.Flags(
			cmd.DatabaseFlags(),
			cmd.EventBusFlags(),
			cmd.ObservabilityFlags(),
			cmd.ActionFlags(),
			cmd.SourceFlags(),
			[]cli.Flag{
				&cli.IntFlag{
					Name:    "port",
					Aliases: []string{"p"},
					Usage:   "Port to run the API server on",
					Value:   9091,
					Sources: cli.EnvVars("PORT"),
				},
				&cli.DurationFlag{
					Name:    "action-timeout",
					Usage:   "Maximum duration of a single action",
					Value:   executor.DefaultActionTimeout,
					Sources: cli.EnvVars("ACTION_TIMEOUT"),
				},
				&cli.DurationFlag{
					Name:    "poll-interval",
					Usage:   "How often the outbox is polled",
					Value:   outbox.DefaultPollInterval,
					Sources: cli.EnvVars("OUTBOX_POLL_INTERVAL"),
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

	topics := cmd.TopicsFrom(command)

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

	if err := router.NewRouter(logger, persistence.Runs(), eventBus, topics).Subscribe(ctx, eventBus); err != nil {
		return fmt.Errorf("failed to subscribe router: %w", err)
	}

	exec := executor.NewExecutor(logger, persistence.Runs(), registry, executor.Config{
		ActionTimeout: command.Duration("action-timeout"),
	})
	if err := exec.Subscribe(ctx, eventBus, topics.RunRequested); err != nil {
		return fmt.Errorf("failed to subscribe worker: %w", err)
	}

	workflowService := services.NewWorkflow(persistence, registry)
	trigger := services.NewTrigger(persistence.Workflows(), eventBus, topics.TriggerEvent)

	sources, cleanup, err := cmd.NewSources(ctx, command, persistence.Workflows(), logger)
	if err != nil {
		return err
	}

	defer cleanup()

	if err := cmd.StartSources(ctx, logger, sources, trigger.Fire); err != nil {
		return err
	}

	app := web.NewApp(web.NewAPIHandlers(
		workflowService,
		services.NewRun(persistence, workflowService),
		trigger,
		validator.New(validator.WithRequiredStructEnabled()),
		registry,
	))

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := outbox.NewRelay(logger, persistence.Outbox(), eventBus, outbox.Config{
			PollInterval: command.Duration("poll-interval"),
			Topic:        topics.RunReady,
		}).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	group.Go(func() error {
		return app.Listen(fmt.Sprintf(":%d", command.Int("port")))
	})

	group.Go(func() error {
		<-ctx.Done()
		logger.InfoContext(ctx, "Shutting down flowrun")

		return errors.Join(
			app.ShutdownWithTimeout(10*time.Second),
			cmd.StopSources(context.WithoutCancel(ctx), sources),
		)
	})

	logger.InfoContext(ctx, "flowrun started", "port", command.Int("port"), "actions", registry.Types())

	return group.Wait()
}
