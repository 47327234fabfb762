package user

import (
	"errors"
	"strconv"

	"kod-admin/internal/features/permission"
	"kod-admin/internal/features/role"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type UserController struct {
	Service   UserService
	validator *validator.Validate
}

func NewUserController(service UserService, v *validator.Validate) *UserController {
	return &UserController{Service: service, validator: v}
}

type AssignRoleRequest struct {
	Role string `json:"role" validate:"required"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive suspended"`
}

// CreateUser godoc
// @Summary      Create user
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        user body      CreateUserRequest  true  "User data"
// @Success      201  {object}  models.User
// @Failure      400  {string}  string
// @Failure      409  {string}  string
// @Router       /api/users [post]
func (ctrl *UserController) CreateUser(c *fiber.Ctx) error {
	var req CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := ctrl.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": permission.FromValidatorError(err).Error()})
	}

	user, err := ctrl.Service.CreateUser(c.UserContext(), req)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// ListUsers godoc
// @Summary      List users
// @Tags         users
// @Produce      json
// @Param        role  query string false "Role filter"
// @Param        page  query int    false "Page"
// @Param        limit query int    false "Page size"
// @Success      200  {object} map[string]interface{}
// @Router       /api/users [get]
func (ctrl *UserController) ListUsers(c *fiber.Ctx) error {
	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	filter := make(map[string]interface{})
	if r := c.Query("role"); r != "" {
		filter["role"] = permission.NormalizeRole(r)
	}
	if status := c.Query("status"); status != "" {
		filter["status"] = status
	}

	users, total, err := ctrl.Service.ListUsers(c.UserContext(), filter, page, limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to fetch users"})
	}

	return c.JSON(fiber.Map{
		"data":  users,
		"total": total,
		"page":  page,
		"limit": limit,
	})
}

// GetUser godoc
// @Summary      Get user
// @Tags         users
// @Produce      json
// @Param        id  path     string true "User ID"
// @Success      200 {object} models.User
// @Failure      404 {string} string
// @Router       /api/users/{id} [get]
func (ctrl *UserController) GetUser(c *fiber.Ctx) error {
	user, err := ctrl.Service.GetUserByID(c.UserContext(), c.Params("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// AssignRole godoc
// @Summary      Assign role
// @Tags         users
// @Accept       json
// @Param        id   path string            true "User ID"
// @Param        body body AssignRoleRequest true "Role"
// @Success      200  {object} map[string]string
// @Failure      404  {string} string
// @Router       /api/users/{id}/role [put]
func (ctrl *UserController) AssignRole(c *fiber.Ctx) error {
	var req AssignRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := ctrl.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "role is required"})
	}

	if err := ctrl.Service.AssignRole(c.UserContext(), c.Params("id"), req.Role); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Role updated"})
}

// UpdateUserStatus godoc
// @Summary      Update user status
// @Tags         users
// @Accept       json
// @Param        id   path string              true "User ID"
// @Param        body body UpdateStatusRequest true "Status"
// @Success      200  {object} map[string]string
// @Router       /api/users/{id}/status [put]
func (ctrl *UserController) UpdateUserStatus(c *fiber.Ctx) error {
	var req UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if err := ctrl.validator.Struct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ErrInvalidStatus.Error()})
	}

	if err := ctrl.Service.UpdateUserStatus(c.UserContext(), c.Params("id"), req.Status); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"message": "Status updated"})
}

func respondError(c *fiber.Ctx, err error) error {
	var verr *permission.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, ErrInvalidStatus):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, ErrUserNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "User not found"})
	case errors.Is(err, role.ErrRoleNotFound):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Role does not exist"})
	case errors.Is(err, ErrUserExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
