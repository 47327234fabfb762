package cron_feature

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
)

type CronController struct {
	Service ReconcileService
}

func NewCronController(service ReconcileService) *CronController {
	return &CronController{
		Service: service,
	}
}

// RunReconcile godoc
// @Summary Run permission reconcile
// @Description Republishes every role and the super admin aggregate now
// @Tags cron
// @Produce json
// @Success 200 {object} ReconcileRun
// @Failure 409 {object} map[string]interface{}
// @Failure 502 {object} ReconcileRun
// @Router /api/cron/reconcile [post]
func (c *CronController) RunReconcile(ctx *fiber.Ctx) error {
	run, err := c.Service.RunNow(ctx.UserContext(), TriggerManual)
	if errors.Is(err, ErrReconcileRunning) {
		return ctx.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	}
	if err != nil {
		return ctx.Status(fiber.StatusBadGateway).JSON(run)
	}
	return ctx.JSON(run)
}

// ListRuns godoc
// @Summary List reconcile runs
// @Tags cron
// @Produce json
// @Param limit query int false "Limit"
// @Success 200 {array} ReconcileRun
// @Router /api/cron/reconcile/runs [get]
func (c *CronController) ListRuns(ctx *fiber.Ctx) error {
	limit, _ := strconv.Atoi(ctx.Query("limit", "50"))

	runs, err := c.Service.ListRuns(ctx.UserContext(), limit)
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(runs)
}
