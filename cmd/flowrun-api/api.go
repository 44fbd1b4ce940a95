package main

import (
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/flowrun/pkg/eventbus"
	"github.com/dukex/flowrun/pkg/persistence"
	"github.com/dukex/flowrun/pkg/registry"
	"github.com/dukex/flowrun/pkg/services"
	"github.com/dukex/flowrun/pkg/web"
)

type API struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	publisher    eventbus.Publisher
	triggerTopic string
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	publisher eventbus.Publisher,
	triggerTopic string,
) *API {
	return &API{
		logger:       logger,
		persistence:  persistence,
		registry:     registry,
		publisher:    publisher,
		triggerTopic: triggerTopic,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	workflowService := services.NewWorkflow(a.persistence, a.registry)
	runService := services.NewRun(a.persistence, workflowService)
	triggerService := services.NewTrigger(a.persistence.Workflows(), a.publisher, a.triggerTopic)

	return web.NewApp(web.NewAPIHandlers(workflowService, runService, triggerService, a.validate, a.registry))
}
