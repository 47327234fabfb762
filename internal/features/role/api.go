package role

import (
	"kod-admin/internal/common/api"
	"kod-admin/internal/config"
	"kod-admin/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type RoleApi struct {
	controller  *RoleController
	config      *config.Config
	roleService RoleService
}

func NewRoleApi(controller *RoleController, cfg *config.Config, roleService RoleService) api.Route {
	return &RoleApi{
		controller:  controller,
		config:      cfg,
		roleService: roleService,
	}
}

// Setup registers role routes
func (h *RoleApi) Setup(app *fiber.App) {
	roles := app.Group("/api/roles", middleware.AuthMiddleware(h.config.SkipAuth))

	// Static paths before /:name
	roles.Post("/resync", middleware.RequirePermission(h.roleService, "roles.update"), h.controller.Resync)

	roles.Get("/", middleware.RequirePermission(h.roleService, "roles.read"), h.controller.ListRoles)
	roles.Post("/", middleware.RequirePermission(h.roleService, "roles.create"), h.controller.CreateRole)
	roles.Get("/:name", middleware.RequirePermission(h.roleService, "roles.read"), h.controller.GetRole)
	roles.Delete("/:name", middleware.RequirePermission(h.roleService, "roles.delete"), h.controller.DeleteRole)
	roles.Get("/:name/snapshot", middleware.RequirePermission(h.roleService, "roles.read"), h.controller.Snapshot)
	roles.Put("/:name/permissions", middleware.RequirePermission(h.roleService, "roles.update"), h.controller.UpdatePermissions)
	roles.Post("/:name/permissions/toggle", middleware.RequirePermission(h.roleService, "roles.update"), h.controller.TogglePermission)
}
