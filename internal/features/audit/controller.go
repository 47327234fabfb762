package audit

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	common_models "kod-admin/internal/common/models"

	"github.com/gofiber/fiber/v2"
)

type AuditController struct {
	Service AuditService
}

func NewAuditController(service AuditService) *AuditController {
	return &AuditController{Service: service}
}

// ListLogs godoc
// @Summary      List audit logs
// @Description  Paginated audit trail, newest first
// @Tags         audit
// @Produce      json
// @Param        page      query int    false "Page"
// @Param        limit     query int    false "Page size"
// @Param        module    query string false "Module filter (role, user, reconcile)"
// @Param        action    query string false "Action filter (CREATE, UPDATE, DELETE, LOGIN, SYNC, CRON)"
// @Param        record_id query string false "Record filter"
// @Param        actor_id  query string false "Actor filter"
// @Success      200  {object} LogPage
// @Failure      400  {string} string
// @Router       /api/audit-logs [get]
func (ctrl *AuditController) ListLogs(c *fiber.Ctx) error {
	return ctrl.list(c, LogFilter{
		Module:   c.Query("module"),
		Action:   common_models.AuditAction(c.Query("action")),
		RecordID: c.Query("record_id"),
		ActorID:  c.Query("actor_id"),
	})
}

// RoleHistory godoc
// @Summary      Permission history of a role
// @Tags         audit
// @Produce      json
// @Param        name  path  string true  "Role name"
// @Param        page  query int    false "Page"
// @Param        limit query int    false "Page size"
// @Success      200  {object} LogPage
// @Router       /api/audit-logs/roles/{name} [get]
func (ctrl *AuditController) RoleHistory(c *fiber.Ctx) error {
	name, err := url.PathUnescape(c.Params("name"))
	if err != nil {
		name = c.Params("name")
	}
	return ctrl.list(c, LogFilter{
		Module:   "role",
		RecordID: strings.ToLower(strings.TrimSpace(name)),
	})
}

func (ctrl *AuditController) list(c *fiber.Ctx, filter LogFilter) error {
	page, _ := strconv.ParseInt(c.Query("page", "1"), 10, 64)
	limit, _ := strconv.ParseInt(c.Query("limit", "20"), 10, 64)

	result, err := ctrl.Service.ListLogs(c.UserContext(), filter, page, limit)
	if errors.Is(err, ErrUnknownAction) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.JSON(result)
}
