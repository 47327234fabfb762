package middleware

import (
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// RequireRole admits only callers whose role is one of roles
func RequireRole(roles ...string) fiber.Handler {
	allowed := make([]string, 0, len(roles))
	for _, r := range roles {
		allowed = append(allowed, strings.ToLower(strings.TrimSpace(r)))
	}

	return func(c *fiber.Ctx) error {
		claims, ok := Claims(c)
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Unauthorized",
			})
		}

		if !slices.Contains(allowed, strings.ToLower(strings.TrimSpace(claims.Role))) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied: role not permitted",
			})
		}

		return c.Next()
	}
}
