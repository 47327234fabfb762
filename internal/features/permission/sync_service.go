package permission

import (
	"context"
	"time"

	"kod-admin/internal/broadcast"
	"kod-admin/internal/metrics"

	"go.uber.org/zap"
)

// RolePermissions is one role's permission set as read from the record store.
type RolePermissions struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

// SyncService publishes role permission sets to the broadcast store. It is the
// only writer of the broadcast tree.
type SyncService interface {
	SyncRole(ctx context.Context, role string, permissions []string) error
	SyncSuperAdminAggregate(ctx context.Context, roles []RolePermissions) error
	Snapshot(ctx context.Context, role string) (broadcast.Event, error)
}

type SyncServiceImpl struct {
	store   broadcast.Store
	paths   broadcast.Paths
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

func NewSyncService(store broadcast.Store, paths broadcast.Paths, m *metrics.Metrics, logger *zap.Logger) SyncService {
	return newSyncService(store, paths, m, logger)
}

func newSyncService(store broadcast.Store, paths broadcast.Paths, m *metrics.Metrics, logger *zap.Logger) *SyncServiceImpl {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncServiceImpl{
		store:   store,
		paths:   paths,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// SyncRole replaces the broadcast snapshot of role with permissions.
func (s *SyncServiceImpl) SyncRole(ctx context.Context, role string, permissions []string) error {
	name := NormalizeRole(role)
	if name == "" {
		return &ValidationError{Field: "role", Reason: "must not be empty"}
	}
	set, err := ParseSet(permissions)
	if err != nil {
		return err
	}

	return s.publish(ctx, metrics.TargetRole, name, set)
}

// SyncSuperAdminAggregate publishes the union of every other role's tokens at
// the super admin path. Entries for the super admin role itself are ignored.
func (s *SyncServiceImpl) SyncSuperAdminAggregate(ctx context.Context, roles []RolePermissions) error {
	aggregate := Set{}
	for _, rp := range roles {
		if IsSuperAdmin(rp.Role) {
			continue
		}
		set, err := ParseSet(rp.Permissions)
		if err != nil {
			return err
		}
		aggregate.Union(set)
	}

	return s.publish(ctx, metrics.TargetSuperAdmin, SuperAdminRole, aggregate)
}

// Snapshot reads what subscribers of role currently observe.
func (s *SyncServiceImpl) Snapshot(ctx context.Context, role string) (broadcast.Event, error) {
	name := NormalizeRole(role)
	if name == "" {
		return broadcast.Event{}, &ValidationError{Field: "role", Reason: "must not be empty"}
	}
	path := s.paths.For(name)
	ev, err := s.store.Read(ctx, path)
	if err != nil {
		return broadcast.Event{}, &InfrastructureError{Op: "read", Path: path, Err: err}
	}
	return ev, nil
}

func (s *SyncServiceImpl) publish(ctx context.Context, target, role string, set Set) error {
	path := s.paths.For(role)
	snap := broadcast.Snapshot{
		Permissions: set.Strings(),
		UpdatedAt:   s.now().UnixMilli(),
	}

	started := time.Now()
	err := s.store.Write(ctx, path, snap)
	s.metrics.ObserveSync(target, started, err)
	if err != nil {
		s.logger.Error("permission broadcast failed",
			zap.String("role", role),
			zap.String("path", path),
			zap.Error(err),
		)
		return &InfrastructureError{Op: "write", Path: path, Err: err}
	}

	s.logger.Debug("permission broadcast written",
		zap.String("role", role),
		zap.String("path", path),
		zap.Int("tokens", len(snap.Permissions)),
		zap.Duration("took", time.Since(started)),
	)
	return nil
}
