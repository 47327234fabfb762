package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// PermissionChecker answers whether a role currently holds a permission token.
type PermissionChecker interface {
	HasPermission(ctx context.Context, role, token string) (bool, error)
}

// RequirePermission is the server-side gate. Lookup failures deny access.
func RequirePermission(checker PermissionChecker, token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := Claims(c)
		if !ok || claims.Role == "" {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied: No role assigned",
			})
		}

		allowed, err := checker.HasPermission(c.UserContext(), claims.Role, token)
		if err != nil || !allowed {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Access denied: Insufficient permissions for this action",
			})
		}

		return c.Next()
	}
}
