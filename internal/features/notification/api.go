package notification

import (
	"kod-admin/internal/common/api"
	"kod-admin/internal/config"
	"kod-admin/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type NotificationApi struct {
	controller *NotificationController
	config     *config.Config
}

func NewNotificationApi(controller *NotificationController, cfg *config.Config) api.Route {
	return &NotificationApi{
		controller: controller,
		config:     cfg,
	}
}

// Setup registers the caller's inbox. Every route is scoped to the
// authenticated user, so no permission token is needed.
func (h *NotificationApi) Setup(app *fiber.App) {
	inbox := app.Group("/api/notifications", middleware.AuthMiddleware(h.config.SkipAuth))

	inbox.Get("/", h.controller.List)
	inbox.Get("/unread-count", h.controller.GetUnreadCount)
	inbox.Post("/mark-all-read", h.controller.MarkAllAsRead)
	inbox.Delete("/read", h.controller.ClearRead)
	inbox.Put("/:id/read", h.controller.MarkAsRead)
}
