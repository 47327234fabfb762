package audit

import (
	"kod-admin/internal/common/api"
	"kod-admin/internal/config"
	"kod-admin/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type AuditApi struct {
	controller *AuditController
	config     *config.Config
	checker    middleware.PermissionChecker
}

func NewAuditApi(controller *AuditController, cfg *config.Config, checker middleware.PermissionChecker) api.Route {
	return &AuditApi{
		controller: controller,
		config:     cfg,
		checker:    checker,
	}
}

func (h *AuditApi) Setup(app *fiber.App) {
	logs := app.Group("/api/audit-logs",
		middleware.AuthMiddleware(h.config.SkipAuth),
		middleware.RequirePermission(h.checker, "audit.read"),
	)

	logs.Get("/", h.controller.ListLogs)
	logs.Get("/roles/:name", h.controller.RoleHistory)
}
