package auth

import (
	"context"

	"kod-admin/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// PermissionSource resolves the current permission set of a role.
type PermissionSource interface {
	EffectivePermissions(ctx context.Context, role string) ([]string, error)
}

type AuthController struct {
	AuthService AuthService
	Permissions PermissionSource
}

func NewAuthController(authService AuthService, permissions PermissionSource) *AuthController {
	return &AuthController{
		AuthService: authService,
		Permissions: permissions,
	}
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Login godoc
// @Summary      Login
// @Description  Login with username and password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        input body LoginRequest true "Login Input"
// @Success      200  {object} AuthResponse
// @Failure      400  {string} string "Invalid request body"
// @Failure      401  {string} string "Invalid credentials"
// @Router       /api/login [post]
func (ctrl *AuthController) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	token, usr, err := ctrl.AuthService.Login(c.UserContext(), req.Username, req.Password)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(AuthResponse{Token: token, Role: usr.Role})
}

// Me godoc
// @Summary      Current user
// @Description  Claims of the caller and the permissions their role holds right now
// @Tags         auth
// @Produce      json
// @Success      200  {object} map[string]interface{}
// @Failure      401  {string} string
// @Router       /api/me [get]
func (ctrl *AuthController) Me(c *fiber.Ctx) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Unauthorized"})
	}

	perms, err := ctrl.Permissions.EffectivePermissions(c.UserContext(), claims.Role)
	if err != nil {
		// Fail closed
		perms = []string{}
	}

	return c.JSON(fiber.Map{
		"user_id":     claims.UserID,
		"username":    claims.Username,
		"role":        claims.Role,
		"permissions": perms,
	})
}
