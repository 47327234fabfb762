package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"kod-admin/internal/broadcast"
	common_models "kod-admin/internal/common/models"
	"kod-admin/internal/config"
	"kod-admin/internal/database"
	"kod-admin/internal/features/audit"
	"kod-admin/internal/features/permission"
	"kod-admin/internal/features/role"
	"kod-admin/internal/features/user"
	"kod-admin/internal/logger"
	"kod-admin/internal/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

type seedUser struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

func readJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// Seed writes the fixed roles and bootstrap users, then publishes every role
// to the broadcast store.
func Seed(
	lc fx.Lifecycle,
	roleRepo role.RoleRepository,
	roleService role.RoleService,
	userRepo user.UserRepository,
	logger *zap.Logger,
	shutdowner fx.Shutdowner,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer func() {
					if err := shutdowner.Shutdown(); err != nil {
						logger.Error("Failed to shutdown", zap.Error(err))
					}
				}()

				ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
				defer cancel()

				logger.Info("Starting database seeding")

				if err := roleRepo.EnsureIndexes(ctx); err != nil {
					logger.Fatal("Failed to ensure role indexes", zap.Error(err))
				}
				if err := userRepo.EnsureIndexes(ctx); err != nil {
					logger.Fatal("Failed to ensure user indexes", zap.Error(err))
				}

				// 1. Roles
				var roles []role.Role
				if err := readJSON("cmd/seed/data/roles.json", &roles); err != nil {
					logger.Fatal("Failed to read roles.json", zap.Error(err))
				}
				for _, r := range roles {
					seedRole(ctx, roleRepo, r, logger)
				}

				// 2. Users
				var users []seedUser
				if err := readJSON("cmd/seed/data/users.json", &users); err != nil {
					logger.Error("Failed to read users.json", zap.Error(err))
				}
				for _, u := range users {
					seedUserRecord(ctx, userRepo, u, logger)
				}

				// 3. Broadcast
				report, err := roleService.ResyncAll(ctx)
				if err != nil {
					logger.Error("Broadcast resync incomplete", zap.Error(err))
					return
				}
				logger.Info("Seeding complete",
					zap.Int("roles_published", report.Roles),
					zap.Bool("aggregated", report.Aggregated),
				)
			}()
			return nil
		},
	})
}

func seedRole(ctx context.Context, roleRepo role.RoleRepository, r role.Role, logger *zap.Logger) {
	name := permission.NormalizeRole(r.Role)
	set, err := permission.ParseSet(r.Permissions)
	if err != nil {
		logger.Error("Invalid permissions in roles.json", zap.String("role", name), zap.Error(err))
		return
	}

	now := time.Now()
	if _, err := roleRepo.FindByName(ctx, name); err == nil {
		if _, err := roleRepo.ReplacePermissions(ctx, name, set.Strings(), now); err != nil {
			logger.Error("Failed to update role", zap.String("role", name), zap.Error(err))
			return
		}
		logger.Info("Role exists, permissions updated", zap.String("role", name))
		return
	} else if !errors.Is(err, role.ErrRoleNotFound) {
		logger.Error("Failed to look up role", zap.String("role", name), zap.Error(err))
		return
	}

	if err := roleRepo.Create(ctx, &role.Role{
		Role:        name,
		Permissions: set.Strings(),
		IsRemovable: !permission.IsFixedRole(name),
		CreatedAt:   now,
		UpdatedAt:   now,
	}); err != nil {
		logger.Error("Failed to create role", zap.String("role", name), zap.Error(err))
		return
	}
	logger.Info("Role created", zap.String("role", name))
}

func seedUserRecord(ctx context.Context, userRepo user.UserRepository, u seedUser, logger *zap.Logger) {
	if _, err := userRepo.FindByUsername(ctx, u.Username); err == nil {
		logger.Info("User exists, skipping", zap.String("username", u.Username))
		return
	}

	hashed, err := user.HashPassword(u.Password)
	if err != nil {
		logger.Error("Failed to hash password", zap.String("username", u.Username), zap.Error(err))
		return
	}

	now := time.Now()
	if err := userRepo.Create(ctx, &common_models.User{
		ID:        primitive.NewObjectID(),
		Username:  u.Username,
		Password:  hashed,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      permission.NormalizeRole(u.Role),
		Status:    common_models.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		logger.Error("Failed to create user", zap.String("username", u.Username), zap.Error(err))
		return
	}
	logger.Info("User created", zap.String("username", u.Username), zap.String("role", u.Role))
}

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
			broadcast.NewStore,
			broadcast.PathsFromConfig,
			permission.NewSyncService,
			audit.NewAuditRepository,
			audit.NewAuditService,
			role.NewRoleRepository,
			user.NewUserRepository,
			role.NewRoleService,
			func(r user.UserRepository) audit.UserFinder { return r },
			// Seeding does not notify anyone
			func() role.Notifier { return nil },
		),
		fx.Invoke(Seed),
	)

	app.Run()
}
