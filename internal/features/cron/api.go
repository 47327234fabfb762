package cron_feature

import (
	"kod-admin/internal/common/api"
	"kod-admin/internal/config"
	"kod-admin/internal/features/permission"
	"kod-admin/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type CronApi struct {
	cronController *CronController
	config         *config.Config
	checker        middleware.PermissionChecker
}

func NewCronApi(
	cronController *CronController,
	config *config.Config,
	checker middleware.PermissionChecker,
) api.Route {
	return &CronApi{
		cronController: cronController,
		config:         config,
		checker:        checker,
	}
}

func (h *CronApi) Setup(app *fiber.App) {
	reconcile := app.Group("/api/cron/reconcile", middleware.AuthMiddleware(h.config.SkipAuth))

	// Manual runs touch every role, so they are limited to super admins
	reconcile.Post("/", middleware.RequireRole(permission.SuperAdminRole), h.cronController.RunReconcile)
	reconcile.Get("/runs", middleware.RequirePermission(h.checker, "roles.read"), h.cronController.ListRuns)
}
