package middleware

import (
	"strings"

	"kod-admin/pkg/utils"

	"github.com/gofiber/fiber/v2"
)

// ClaimsLocal is the fiber locals key holding *utils.UserClaims. It is a plain
// string so the value survives the websocket upgrade.
const ClaimsLocal = "user_claims"

// AuthMiddleware validates JWT tokens and injects user claims into context.
// Websocket upgrades cannot set headers from browsers, so a "token" query
// parameter is accepted as well.
func AuthMiddleware(skipAuth bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if skipAuth {
			// Dev mode acts as the super admin aggregate
			dummyClaims := &utils.UserClaims{
				UserID:   "dev-admin-id",
				Username: "dev",
				Role:     "super admin",
			}
			setClaims(c, dummyClaims)
			return c.Next()
		}

		token := bearerToken(c.Get("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authorization header required",
			})
		}

		claims, err := utils.ValidateToken(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		setClaims(c, claims)
		return c.Next()
	}
}

// Claims returns the claims stored by AuthMiddleware.
func Claims(c *fiber.Ctx) (*utils.UserClaims, bool) {
	claims, ok := c.Locals(ClaimsLocal).(*utils.UserClaims)
	return claims, ok && claims != nil
}

func setClaims(c *fiber.Ctx, claims *utils.UserClaims) {
	c.Locals(ClaimsLocal, claims)
	c.SetUserContext(utils.WithClaims(c.UserContext(), claims))
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
