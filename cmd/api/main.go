package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"kod-admin/internal/broadcast"
	common_api "kod-admin/internal/common/api"
	"kod-admin/internal/config"
	"kod-admin/internal/database"
	"kod-admin/internal/features/audit"
	"kod-admin/internal/features/auth"
	cron_feature "kod-admin/internal/features/cron"
	"kod-admin/internal/features/notification"
	"kod-admin/internal/features/permission"
	"kod-admin/internal/features/realtime"
	"kod-admin/internal/features/role"
	"kod-admin/internal/features/system"
	"kod-admin/internal/features/user"
	"kod-admin/internal/logger"
	"kod-admin/internal/metrics"
	"kod-admin/internal/middleware"
	"kod-admin/pkg/utils"

	_ "kod-admin/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes calls Setup() on every member of the "routes" group.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route, logger *zap.Logger) {
	for _, route := range routes {
		logger.Debug("registering route", zap.String("api", fmt.Sprintf("%T", route)))
		route.Setup(app)
	}
	logger.Info("all routes registered", zap.Int("count", len(routes)))
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`, ``),
)

// StartServer starts Fiber in a goroutine and shuts it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			utils.SetSecret(cfg.JWTSecret)
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				logger.Info("server listening", zap.String("port", port), zap.String("environment", cfg.Environment))
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// InitializeIndexes ensures that necessary database indexes are created
func InitializeIndexes(lc fx.Lifecycle, roleRepo role.RoleRepository, userRepo user.UserRepository, auditRepo audit.AuditRepository, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()

				if err := roleRepo.EnsureIndexes(ctx); err != nil {
					logger.Error("failed to ensure role indexes", zap.Error(err))
				}
				if err := userRepo.EnsureIndexes(ctx); err != nil {
					logger.Error("failed to ensure user indexes", zap.Error(err))
				}
				if err := auditRepo.EnsureIndexes(ctx); err != nil {
					logger.Error("failed to ensure audit indexes", zap.Error(err))
				}
			}()
			return nil
		},
	})
}

// StartReconcile runs the periodic resync for the lifetime of the app.
func StartReconcile(lc fx.Lifecycle, svc cron_feature.ReconcileService) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return svc.InitializeScheduler(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return svc.StopScheduler()
		},
	})
}

// @title           Knock Off Dues Admin API
// @version         1.0
// @description     Role permissions and realtime authorization for Knock Off Dues.

// @host            localhost:8080
// @BasePath        /
func main() {
	app := fx.New(
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Provide(
			config.LoadConfig,
			database.NewDatabase,
			logger.NewLogger,
			metrics.NewMetrics,
			NewFiberServer,

			// Broadcast
			broadcast.NewStore,
			broadcast.PathsFromConfig,
			permission.NewSyncService,
			permission.NewValidator,

			// Repositories
			audit.NewAuditRepository,
			role.NewRoleRepository,
			user.NewUserRepository,
			notification.NewNotificationRepository,
			cron_feature.NewReconcileRepository,

			// Services
			audit.NewAuditService,
			role.NewRoleService,
			user.NewUserService,
			auth.NewAuthService,
			notification.NewNotificationService,
			cron_feature.NewReconcileService,

			// Interface adapters to break circular dependencies
			func(s role.RoleService) middleware.PermissionChecker { return s },
			func(s role.RoleService) user.RoleLookup { return s },
			func(s role.RoleService) auth.PermissionSource { return s },
			func(s role.RoleService) cron_feature.Resyncer { return s },
			func(s notification.NotificationService) role.Notifier { return s },
			func(r user.UserRepository) notification.RecipientFinder { return r },
			func(r user.UserRepository) audit.UserFinder { return r },

			// Controllers
			auth.NewAuthController,
			role.NewRoleController,
			user.NewUserController,
			audit.NewAuditController,
			notification.NewNotificationController,
			realtime.NewRealtimeController,
			cron_feature.NewCronController,
			system.NewHealthController,

			// API Routes
			AsRoute(auth.NewAuthApi),
			AsRoute(role.NewRoleApi),
			AsRoute(user.NewUserApi),
			AsRoute(audit.NewAuditApi),
			AsRoute(notification.NewNotificationApi),
			AsRoute(realtime.NewRealtimeApi),
			AsRoute(cron_feature.NewCronApi),
			AsRoute(system.NewSystemApi),
		),
		fx.Invoke(
			RegisterAllRoutesWithAnnotation,
			InitializeIndexes,
			StartReconcile,
			StartServer,
		),
	)

	app.Run()
}
