package web

import "github.com/gofiber/fiber/v3"

// Mount registers the workflow, run and webhook routes.
func (h *APIHandlers) Mount(router fiber.Router) {
	w := router.Group("/workflows")
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/runs", h.EnqueueRun)

	router.Get("/runs/:id", h.GetRun)
	router.Post("/hooks/:workflowId", h.Webhook)
	router.Get("/actions", h.GetActions)
	router.Get("/health", h.HealthCheck)
}
