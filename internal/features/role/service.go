package role

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kod-admin/internal/broadcast"
	common_models "kod-admin/internal/common/models"
	"kod-admin/internal/config"
	"kod-admin/internal/features/audit"
	"kod-admin/internal/features/permission"
	"kod-admin/pkg/utils"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notifier delivers in-app notifications. Levels are "info" and "warning".
type Notifier interface {
	NotifyUser(ctx context.Context, userID, title, message, level string) error
	NotifyRole(ctx context.Context, role, title, message, level string) error
}

type RoleService interface {
	CreateRole(ctx context.Context, name string, permissions []string) (*UpdateResult, error)
	GetRole(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdatePermissions(ctx context.Context, name string, permissions []string) (*UpdateResult, error)
	TogglePermission(ctx context.Context, name, token string, enabled bool) (*UpdateResult, error)
	DeleteRole(ctx context.Context, name string) (*UpdateResult, error)
	ResyncAll(ctx context.Context) (*ResyncReport, error)
	Snapshot(ctx context.Context, name string) (broadcast.Event, error)
	EffectivePermissions(ctx context.Context, role string) ([]string, error)
	HasPermission(ctx context.Context, role, token string) (bool, error)
}

type RoleServiceImpl struct {
	RoleRepo     RoleRepository
	Sync         permission.SyncService
	AuditService audit.AuditService
	Notifier     Notifier
	config       *config.Config
	logger       *zap.Logger
	now          func() time.Time
}

func NewRoleService(
	roleRepo RoleRepository,
	sync permission.SyncService,
	auditService audit.AuditService,
	notifier Notifier,
	cfg *config.Config,
	logger *zap.Logger,
) RoleService {
	return &RoleServiceImpl{
		RoleRepo:     roleRepo,
		Sync:         sync,
		AuditService: auditService,
		Notifier:     notifier,
		config:       cfg,
		logger:       logger,
		now:          time.Now,
	}
}

func (s *RoleServiceImpl) CreateRole(ctx context.Context, name string, permissions []string) (*UpdateResult, error) {
	name, err := roleName(name)
	if err != nil {
		return nil, err
	}
	set, err := permission.ParseSet(permissions)
	if err != nil {
		return nil, err
	}

	now := s.now()
	role := &Role{
		Role:        name,
		Permissions: set.Strings(),
		IsRemovable: !permission.IsFixedRole(name),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.RoleRepo.Create(ctx, role); err != nil {
		return nil, err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionCreate, "role", name, map[string]common_models.Change{
		"permissions": {New: role.Permissions},
	})

	return s.finish(ctx, role, s.propagate(ctx, role))
}

func (s *RoleServiceImpl) GetRole(ctx context.Context, name string) (*Role, error) {
	name, err := roleName(name)
	if err != nil {
		return nil, err
	}
	return s.RoleRepo.FindByName(ctx, name)
}

func (s *RoleServiceImpl) ListRoles(ctx context.Context) ([]Role, error) {
	return s.RoleRepo.List(ctx)
}

// UpdatePermissions replaces the permission set of a role and propagates it to
// live sessions. Nothing is written when a token is malformed.
func (s *RoleServiceImpl) UpdatePermissions(ctx context.Context, name string, permissions []string) (*UpdateResult, error) {
	name, err := roleName(name)
	if err != nil {
		return nil, err
	}
	set, err := permission.ParseSet(permissions)
	if err != nil {
		return nil, err
	}

	now := s.now()
	before, err := s.RoleRepo.ReplacePermissions(ctx, name, set.Strings(), now)
	if err != nil {
		return nil, err
	}

	// Publish what the record store holds now, not what this call sent. The
	// write is already committed, so a failed re-read falls back to it.
	current, err := s.RoleRepo.FindByName(ctx, name)
	if err != nil {
		s.logger.Warn("re-read after permission update failed, publishing written set",
			zap.String("role", name),
			zap.Error(err),
		)
		written := *before
		written.Permissions = set.Strings()
		written.UpdatedAt = now
		current = &written
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionUpdate, "role", name, map[string]common_models.Change{
		"permissions": {Old: before.Permissions, New: current.Permissions},
	})

	return s.finish(ctx, current, s.propagate(ctx, current))
}

func (s *RoleServiceImpl) TogglePermission(ctx context.Context, name, token string, enabled bool) (*UpdateResult, error) {
	name, err := roleName(name)
	if err != nil {
		return nil, err
	}
	t, err := permission.ParseToken(token)
	if err != nil {
		return nil, err
	}

	var current *Role
	change := common_models.Change{}
	if enabled {
		current, err = s.RoleRepo.AddPermission(ctx, name, t.String(), s.now())
		change.New = t.String()
	} else {
		current, err = s.RoleRepo.RemovePermission(ctx, name, t.String(), s.now())
		change.Old = t.String()
	}
	if err != nil {
		return nil, err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionUpdate, "role", name, map[string]common_models.Change{
		"permission": change,
	})

	return s.finish(ctx, current, s.propagate(ctx, current))
}

// DeleteRole removes an ad hoc role. Sessions still bound to it receive an
// empty set.
func (s *RoleServiceImpl) DeleteRole(ctx context.Context, name string) (*UpdateResult, error) {
	name, err := roleName(name)
	if err != nil {
		return nil, err
	}

	role, err := s.RoleRepo.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if !role.IsRemovable {
		return nil, ErrRoleNotRemovable
	}
	if err := s.RoleRepo.Delete(ctx, name); err != nil {
		return nil, err
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionDelete, "role", name, map[string]common_models.Change{
		"permissions": {Old: role.Permissions},
	})

	cleared := *role
	cleared.Permissions = []string{}
	return s.finish(ctx, role, s.propagate(ctx, &cleared))
}

// ResyncAll republishes every role and the super admin aggregate from the
// record store.
func (s *RoleServiceImpl) ResyncAll(ctx context.Context) (*ResyncReport, error) {
	roles, err := s.RoleRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	report := &ResyncReport{}
	var errs []error
	all := make([]permission.RolePermissions, 0, len(roles))
	for _, r := range roles {
		if permission.IsSuperAdmin(r.Role) {
			continue
		}
		all = append(all, permission.RolePermissions{Role: r.Role, Permissions: r.Permissions})
		if err := s.Sync.SyncRole(ctx, r.Role, r.Permissions); err != nil {
			report.Failed = append(report.Failed, r.Role)
			errs = append(errs, err)
			continue
		}
		report.Roles++
	}

	if err := s.Sync.SyncSuperAdminAggregate(ctx, all); err != nil {
		report.Failed = append(report.Failed, permission.SuperAdminRole)
		errs = append(errs, err)
	} else {
		report.Aggregated = true
	}

	_ = s.AuditService.LogChange(ctx, common_models.AuditActionSync, "role", "*", map[string]common_models.Change{
		"published": {New: report.Roles},
		"failed":    {New: report.Failed},
	})

	s.logger.Info("permission resync finished",
		zap.Int("roles", report.Roles),
		zap.Strings("failed", report.Failed),
		zap.Bool("aggregated", report.Aggregated),
	)
	return report, errors.Join(errs...)
}

func (s *RoleServiceImpl) Snapshot(ctx context.Context, name string) (broadcast.Event, error) {
	return s.Sync.Snapshot(ctx, name)
}

// EffectivePermissions returns the tokens a role holds according to the
// record store. For super admin this is the union of every other role.
func (s *RoleServiceImpl) EffectivePermissions(ctx context.Context, role string) ([]string, error) {
	name, err := roleName(role)
	if err != nil {
		return nil, err
	}

	if !permission.IsSuperAdmin(name) {
		r, err := s.RoleRepo.FindByName(ctx, name)
		if err != nil {
			return nil, err
		}
		set, err := permission.ParseSet(r.Permissions)
		if err != nil {
			return nil, err
		}
		return set.Strings(), nil
	}

	others, err := s.RoleRepo.FindAllExceptSuperAdmin(ctx)
	if err != nil {
		return nil, err
	}
	aggregate := permission.Set{}
	for _, r := range others {
		set, err := permission.ParseSet(r.Permissions)
		if err != nil {
			return nil, err
		}
		aggregate.Union(set)
	}
	return aggregate.Strings(), nil
}

func (s *RoleServiceImpl) HasPermission(ctx context.Context, role, token string) (bool, error) {
	t, err := permission.ParseToken(token)
	if err != nil {
		return false, err
	}
	perms, err := s.EffectivePermissions(ctx, role)
	if err != nil {
		return false, err
	}
	set, _ := permission.ParseSet(perms)
	return set.Has(t), nil
}

// propagate publishes role and the aggregate concurrently. Both writes are
// always attempted.
func (s *RoleServiceImpl) propagate(ctx context.Context, role *Role) error {
	errs := make([]error, 2)

	var g errgroup.Group
	if !permission.IsSuperAdmin(role.Role) {
		g.Go(func() error {
			errs[0] = s.Sync.SyncRole(ctx, role.Role, role.Permissions)
			return errs[0]
		})
	}
	g.Go(func() error {
		errs[1] = s.syncAggregate(ctx)
		return errs[1]
	})

	if err := g.Wait(); err != nil {
		return errors.Join(errs...)
	}
	return nil
}

func (s *RoleServiceImpl) syncAggregate(ctx context.Context) error {
	others, err := s.RoleRepo.FindAllExceptSuperAdmin(ctx)
	if err != nil {
		return fmt.Errorf("load roles for aggregate: %w", err)
	}
	all := make([]permission.RolePermissions, 0, len(others))
	for _, r := range others {
		all = append(all, permission.RolePermissions{Role: r.Role, Permissions: r.Permissions})
	}
	return s.Sync.SyncSuperAdminAggregate(ctx, all)
}

// finish turns a propagation error after a committed write into either a
// warning or ErrBroadcastFailed, and notifies the affected users.
func (s *RoleServiceImpl) finish(ctx context.Context, role *Role, syncErr error) (*UpdateResult, error) {
	result := &UpdateResult{Role: role}

	if syncErr == nil {
		s.notifyRole(ctx, role.Role)
		return result, nil
	}

	s.logger.Warn("role saved but permission broadcast failed",
		zap.String("role", role.Role),
		zap.Error(syncErr),
	)

	if s.config != nil && s.config.BroadcastFailureFatal {
		return nil, fmt.Errorf("%w: %v", ErrBroadcastFailed, syncErr)
	}

	result.BroadcastWarning = "Saved, but live sessions could not be updated. They will catch up on the next resync."
	if claims, ok := utils.ClaimsFromContext(ctx); ok && s.Notifier != nil {
		msg := fmt.Sprintf("Permissions for %q were saved but not broadcast: %v", role.Role, syncErr)
		if err := s.Notifier.NotifyUser(ctx, claims.UserID, "Permission broadcast failed", msg, "warning"); err != nil {
			s.logger.Warn("failed to notify actor", zap.String("user_id", claims.UserID), zap.Error(err))
		}
	}
	return result, nil
}

func (s *RoleServiceImpl) notifyRole(ctx context.Context, name string) {
	if s.Notifier == nil {
		return
	}
	msg := fmt.Sprintf("Permissions for role %q have changed.", name)
	if err := s.Notifier.NotifyRole(ctx, name, "Permissions updated", msg, "info"); err != nil {
		s.logger.Warn("failed to notify role members", zap.String("role", name), zap.Error(err))
	}
}

func roleName(name string) (string, error) {
	n := permission.NormalizeRole(name)
	if n == "" {
		return "", &permission.ValidationError{Field: "role", Reason: "must not be empty"}
	}
	return n, nil
}
