package realtime

import (
	"kod-admin/internal/common/api"
	"kod-admin/internal/config"
	"kod-admin/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type RealtimeApi struct {
	controller *RealtimeController
	config     *config.Config
}

func NewRealtimeApi(controller *RealtimeController, cfg *config.Config) api.Route {
	return &RealtimeApi{
		controller: controller,
		config:     cfg,
	}
}

func (h *RealtimeApi) Setup(app *fiber.App) {
	ws := app.Group("/api/ws", middleware.AuthMiddleware(h.config.SkipAuth), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	ws.Get("/permissions", websocket.New(h.controller.HandlePermissions))
}
