package role

import (
	"errors"
	"net/url"

	"kod-admin/internal/broadcast"
	"kod-admin/internal/features/permission"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

type RoleController struct {
	Service   RoleService
	validator *validator.Validate
}

func NewRoleController(service RoleService, v *validator.Validate) *RoleController {
	return &RoleController{Service: service, validator: v}
}

// ListRoles godoc
// @Summary      List all roles
// @Description  Get all roles with their permission tokens
// @Tags         roles
// @Produce      json
// @Success      200  {array}   Role
// @Failure      500  {string}  string
// @Router       /api/roles [get]
func (ctrl *RoleController) ListRoles(c *fiber.Ctx) error {
	roles, err := ctrl.Service.ListRoles(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch roles",
		})
	}
	return c.JSON(roles)
}

// GetRole godoc
// @Summary      Get role by name
// @Tags         roles
// @Produce      json
// @Param        name path      string  true  "Role name"
// @Success      200  {object}  Role
// @Failure      404  {string}  string
// @Router       /api/roles/{name} [get]
func (ctrl *RoleController) GetRole(c *fiber.Ctx) error {
	role, err := ctrl.Service.GetRole(c.UserContext(), roleParam(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(role)
}

// CreateRole godoc
// @Summary      Create a new role
// @Description  Creates a removable role and broadcasts its permissions
// @Tags         roles
// @Accept       json
// @Produce      json
// @Param        role  body      CreateRoleRequest  true  "Role data"
// @Success      201   {object}  UpdateResult
// @Failure      400   {string}  string
// @Failure      409   {string}  string
// @Router       /api/roles [post]
func (ctrl *RoleController) CreateRole(c *fiber.Ctx) error {
	var req CreateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := ctrl.validator.Struct(req); err != nil {
		return respondError(c, permission.FromValidatorError(err))
	}

	result, err := ctrl.Service.CreateRole(c.UserContext(), req.Role, req.Permissions)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// UpdatePermissions godoc
// @Summary      Replace role permissions
// @Description  Replaces the whole permission set and pushes it to live sessions
// @Tags         roles
// @Accept       json
// @Produce      json
// @Param        name  path      string                    true  "Role name"
// @Param        body  body      UpdatePermissionsRequest  true  "Permission tokens"
// @Success      200   {object}  UpdateResult
// @Failure      400   {string}  string
// @Failure      404   {string}  string
// @Failure      502   {string}  string
// @Router       /api/roles/{name}/permissions [put]
func (ctrl *RoleController) UpdatePermissions(c *fiber.Ctx) error {
	var req UpdatePermissionsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := ctrl.validator.Struct(req); err != nil {
		return respondError(c, permission.FromValidatorError(err))
	}

	result, err := ctrl.Service.UpdatePermissions(c.UserContext(), roleParam(c), req.Permissions)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// TogglePermission godoc
// @Summary      Grant or revoke one permission
// @Tags         roles
// @Accept       json
// @Produce      json
// @Param        name  path      string                   true  "Role name"
// @Param        body  body      TogglePermissionRequest  true  "Token and state"
// @Success      200   {object}  UpdateResult
// @Failure      400   {string}  string
// @Failure      404   {string}  string
// @Router       /api/roles/{name}/permissions/toggle [post]
func (ctrl *RoleController) TogglePermission(c *fiber.Ctx) error {
	var req TogglePermissionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := ctrl.validator.Struct(req); err != nil {
		return respondError(c, permission.FromValidatorError(err))
	}

	result, err := ctrl.Service.TogglePermission(c.UserContext(), roleParam(c), req.Permission, *req.Enabled)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// DeleteRole godoc
// @Summary      Delete role
// @Description  Fixed roles cannot be deleted
// @Tags         roles
// @Param        name path      string  true  "Role name"
// @Success      200  {object}  UpdateResult
// @Failure      404  {string}  string
// @Failure      409  {string}  string
// @Router       /api/roles/{name} [delete]
func (ctrl *RoleController) DeleteRole(c *fiber.Ctx) error {
	result, err := ctrl.Service.DeleteRole(c.UserContext(), roleParam(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(result)
}

// Resync godoc
// @Summary      Republish every role
// @Description  Rebuilds the broadcast tree from the record store
// @Tags         roles
// @Produce      json
// @Success      200  {object}  ResyncReport
// @Failure      502  {object}  ResyncReport
// @Router       /api/roles/resync [post]
func (ctrl *RoleController) Resync(c *fiber.Ctx) error {
	report, err := ctrl.Service.ResyncAll(c.UserContext())
	if err != nil {
		if report == nil {
			return respondError(c, err)
		}
		return c.Status(fiber.StatusBadGateway).JSON(report)
	}
	return c.JSON(report)
}

// Snapshot godoc
// @Summary      Read the broadcast snapshot of a role
// @Description  Shows what live sessions of the role currently observe
// @Tags         roles
// @Produce      json
// @Param        name path      string  true  "Role name"
// @Success      200  {object}  map[string]interface{}
// @Failure      502  {string}  string
// @Router       /api/roles/{name}/snapshot [get]
func (ctrl *RoleController) Snapshot(c *fiber.Ctx) error {
	ev, err := ctrl.Service.Snapshot(c.UserContext(), roleParam(c))
	if err != nil {
		return respondError(c, err)
	}

	body := fiber.Map{
		"path":   ev.Path,
		"status": ev.Status.String(),
	}
	if ev.Status == broadcast.EventSnapshot {
		body["permissions"] = ev.Snapshot.Permissions
		body["updatedAt"] = ev.Snapshot.UpdatedAt
	}
	return c.JSON(body)
}

func roleParam(c *fiber.Ctx) string {
	// Fixed role names contain spaces ("super admin")
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		return c.Params("name")
	}
	return name
}

func respondError(c *fiber.Ctx, err error) error {
	var verr *permission.ValidationError
	var ierr *permission.InfrastructureError
	switch {
	case errors.As(err, &verr):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": verr.Error()})
	case errors.Is(err, ErrRoleNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Role not found"})
	case errors.Is(err, ErrRoleExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Role already exists"})
	case errors.Is(err, ErrRoleNotRemovable):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Role cannot be deleted"})
	case errors.Is(err, ErrBroadcastFailed), errors.As(err, &ierr):
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}
