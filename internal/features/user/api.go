package user

import (
	"kod-admin/internal/common/api"
	"kod-admin/internal/config"
	"kod-admin/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type UserApi struct {
	controller *UserController
	config     *config.Config
	checker    middleware.PermissionChecker
}

func NewUserApi(controller *UserController, config *config.Config, checker middleware.PermissionChecker) api.Route {
	return &UserApi{
		controller: controller,
		config:     config,
		checker:    checker,
	}
}

// Setup registers all user-related routes
func (h *UserApi) Setup(app *fiber.App) {
	users := app.Group("/api/users", middleware.AuthMiddleware(h.config.SkipAuth))

	users.Post("/", middleware.RequirePermission(h.checker, "users.create"), h.controller.CreateUser)
	users.Get("/", middleware.RequirePermission(h.checker, "users.read"), h.controller.ListUsers)
	users.Get("/:id", middleware.RequirePermission(h.checker, "users.read"), h.controller.GetUser)
	users.Put("/:id/role", middleware.RequirePermission(h.checker, "users.update"), h.controller.AssignRole)
	users.Put("/:id/status", middleware.RequirePermission(h.checker, "users.update"), h.controller.UpdateUserStatus)
}
