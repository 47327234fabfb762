package auth

import (
	"time"

	"kod-admin/internal/common/api"
	"kod-admin/internal/config"
	"kod-admin/internal/middleware"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// Login attempts allowed per client IP per window.
const (
	loginAttempts = 10
	loginWindow   = time.Minute
)

type AuthApi struct {
	controller *AuthController
	config     *config.Config
}

func NewAuthApi(controller *AuthController, cfg *config.Config) api.Route {
	return &AuthApi{
		controller: controller,
		config:     cfg,
	}
}

// Setup registers all auth-related routes
func (h *AuthApi) Setup(app *fiber.App) {
	loginLimit := limiter.New(limiter.Config{
		Max:        loginAttempts,
		Expiration: loginWindow,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many login attempts, try again later",
			})
		},
	})

	app.Post("/api/login", loginLimit, h.controller.Login)
	app.Get("/api/me", middleware.AuthMiddleware(h.config.SkipAuth), h.controller.Me)
}
