package system

import (
	"kod-admin/internal/common/api"
	"kod-admin/internal/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
)

type SystemApi struct {
	controller *HealthController
	metrics    *metrics.Metrics
}

func NewSystemApi(controller *HealthController, m *metrics.Metrics) api.Route {
	return &SystemApi{
		controller: controller,
		metrics:    m,
	}
}

// Setup registers health, Prometheus and API docs routes
func (h *SystemApi) Setup(app *fiber.App) {
	app.Get("/api/health", h.controller.Health)
	app.Get("/metrics", adaptor.HTTPHandler(h.metrics.Handler()))
	app.Get("/swagger/*", swagger.HandlerDefault)
}
