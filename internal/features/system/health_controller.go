package system

import (
	"context"
	"time"

	"kod-admin/internal/broadcast"
	"kod-admin/internal/database"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const pingTimeout = 3 * time.Second

// Pinger is a dependency the service cannot work without.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthController struct {
	checks map[string]Pinger
	logger *zap.Logger
}

func NewHealthController(db *database.MongodbDB, store broadcast.Store, logger *zap.Logger) *HealthController {
	return newHealthController(map[string]Pinger{
		"mongo":     db,
		"broadcast": store,
	}, logger)
}

func newHealthController(checks map[string]Pinger, logger *zap.Logger) *HealthController {
	return &HealthController{checks: checks, logger: logger}
}

// Health godoc
// @Summary      Service health
// @Description  Pings the record store and the broadcast store
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Failure      503  {object}  map[string]interface{}
// @Router       /api/health [get]
func (c *HealthController) Health(ctx *fiber.Ctx) error {
	pingCtx, cancel := context.WithTimeout(ctx.UserContext(), pingTimeout)
	defer cancel()

	names := make([]string, 0, len(c.checks))
	results := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
		results = append(results, "")
	}

	var g errgroup.Group
	for i, name := range names {
		g.Go(func() error {
			if err := c.checks[name].Ping(pingCtx); err != nil {
				results[i] = err.Error()
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	err := g.Wait()

	report := fiber.Map{}
	for i, name := range names {
		report[name] = results[i]
	}

	if err != nil {
		c.logger.Warn("health check failed", zap.Error(err))
		return ctx.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"status": "unavailable",
			"checks": report,
		})
	}
	return ctx.JSON(fiber.Map{
		"status": "ok",
		"checks": report,
	})
}
