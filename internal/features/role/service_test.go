package role

import (
	"context"
	"errors"
	"slices"
	"sort"
	"sync"
	"testing"
	"time"

	"kod-admin/internal/broadcast"
	common_models "kod-admin/internal/common/models"
	"kod-admin/internal/config"
	"kod-admin/internal/features/audit"
	"kod-admin/internal/features/permission"
	"kod-admin/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockRoleRepo keeps roles in memory with the same semantics as the Mongo
// repository.
type MockRoleRepo struct {
	mu    sync.Mutex
	roles map[string]Role
}

func NewMockRoleRepo(roles ...Role) *MockRoleRepo {
	m := &MockRoleRepo{roles: map[string]Role{}}
	for _, r := range roles {
		m.roles[r.Role] = r
	}
	return m
}

func (m *MockRoleRepo) Create(ctx context.Context, role *Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.roles[role.Role]; ok {
		return ErrRoleExists
	}
	m.roles[role.Role] = *role
	return nil
}

func (m *MockRoleRepo) FindByName(ctx context.Context, name string) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok {
		return nil, ErrRoleNotFound
	}
	r.Permissions = slices.Clone(r.Permissions)
	return &r, nil
}

func (m *MockRoleRepo) List(ctx context.Context) ([]Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Role{}
	for _, r := range m.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (m *MockRoleRepo) FindAllExceptSuperAdmin(ctx context.Context) ([]Role, error) {
	all, _ := m.List(ctx)
	return slices.DeleteFunc(all, func(r Role) bool { return r.Role == permission.SuperAdminRole }), nil
}

func (m *MockRoleRepo) ReplacePermissions(ctx context.Context, name string, permissions []string, at time.Time) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok {
		return nil, ErrRoleNotFound
	}
	before := r
	r.Permissions = permissions
	r.UpdatedAt = at
	m.roles[name] = r
	return &before, nil
}

func (m *MockRoleRepo) AddPermission(ctx context.Context, name, token string, at time.Time) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok {
		return nil, ErrRoleNotFound
	}
	if !slices.Contains(r.Permissions, token) {
		r.Permissions = append(slices.Clone(r.Permissions), token)
	}
	m.roles[name] = r
	return &r, nil
}

func (m *MockRoleRepo) RemovePermission(ctx context.Context, name, token string, at time.Time) (*Role, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok {
		return nil, ErrRoleNotFound
	}
	r.Permissions = slices.DeleteFunc(slices.Clone(r.Permissions), func(p string) bool { return p == token })
	m.roles[name] = r
	return &r, nil
}

func (m *MockRoleRepo) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.roles[name]
	if !ok || !r.IsRemovable {
		return ErrRoleNotRemovable
	}
	delete(m.roles, name)
	return nil
}

func (m *MockRoleRepo) EnsureIndexes(ctx context.Context) error {
	return nil
}

type MockAuditService struct {
	mu      sync.Mutex
	Entries []common_models.AuditAction
}

func (m *MockAuditService) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Entries = append(m.Entries, action)
	return nil
}

func (m *MockAuditService) ListLogs(ctx context.Context, filter audit.LogFilter, page, limit int64) (*audit.LogPage, error) {
	return &audit.LogPage{}, nil
}

type sentNotification struct {
	Target string
	Level  string
}

type MockNotifier struct {
	mu   sync.Mutex
	Sent []sentNotification
}

func (m *MockNotifier) NotifyUser(ctx context.Context, userID, title, message, level string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentNotification{Target: "user:" + userID, Level: level})
	return nil
}

func (m *MockNotifier) NotifyRole(ctx context.Context, role, title, message, level string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, sentNotification{Target: "role:" + role, Level: level})
	return nil
}

// brokenStore accepts subscriptions but rejects every write.
type brokenStore struct {
	*broadcast.MemoryStore
}

func (brokenStore) Write(ctx context.Context, path string, snap broadcast.Snapshot) error {
	return errors.New("broadcast store unavailable")
}

type fixture struct {
	service  *RoleServiceImpl
	repo     *MockRoleRepo
	store    broadcast.Store
	audit    *MockAuditService
	notifier *MockNotifier
}

func newFixture(t *testing.T, store broadcast.Store, cfg *config.Config) fixture {
	t.Helper()
	repo := NewMockRoleRepo(
		Role{Role: "super admin", Permissions: []string{}},
		Role{Role: "admin", Permissions: []string{"employee.create", "employee.read"}},
		Role{Role: "hr", Permissions: []string{"employee.read"}},
		Role{Role: "employee", Permissions: []string{}},
	)
	auditSvc := &MockAuditService{}
	notifier := &MockNotifier{}
	syncSvc := permission.NewSyncService(store, broadcast.NewPaths("development"), nil, zap.NewNop())

	if cfg == nil {
		cfg = &config.Config{}
	}
	svc := NewRoleService(repo, syncSvc, auditSvc, notifier, cfg, zap.NewNop()).(*RoleServiceImpl)
	return fixture{service: svc, repo: repo, store: store, audit: auditSvc, notifier: notifier}
}

func snapshotOf(t *testing.T, store broadcast.Store, role string) []string {
	t.Helper()
	ev, err := store.Read(context.Background(), broadcast.NewPaths("development").For(role))
	require.NoError(t, err)
	require.Equal(t, broadcast.EventSnapshot, ev.Status, "role %s", role)
	return ev.Snapshot.Permissions
}

func TestUpdatePermissions_EndToEnd(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)
	ctx := context.Background()

	result, err := f.service.UpdatePermissions(ctx, "Admin", []string{"employee.create", "employee.read", "payroll.view"})
	require.NoError(t, err)
	assert.Empty(t, result.BroadcastWarning)
	assert.Equal(t, []string{"employee.create", "employee.read", "payroll.view"}, result.Role.Permissions)

	assert.Equal(t, []string{"employee.create", "employee.read", "payroll.view"}, snapshotOf(t, f.store, "admin"))
	assert.Equal(t, []string{"employee.create", "employee.read", "payroll.view"}, snapshotOf(t, f.store, "super admin"))

	_, err = f.service.UpdatePermissions(ctx, "hr", []string{"leave.approve"})
	require.NoError(t, err)

	assert.Equal(t, []string{"leave.approve"}, snapshotOf(t, f.store, "hr"))
	assert.Equal(t, []string{"employee.create", "employee.read", "leave.approve", "payroll.view"}, snapshotOf(t, f.store, "super admin"))

	assert.Contains(t, f.notifier.Sent, sentNotification{Target: "role:admin", Level: "info"})
	assert.Len(t, f.audit.Entries, 2)
}

func TestUpdatePermissions_InvalidTokenWritesNothing(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := f.service.UpdatePermissions(ctx, "admin", []string{"employee.read", "DROP TABLE"})
	var verr *permission.ValidationError
	require.ErrorAs(t, err, &verr)

	r, _ := f.repo.FindByName(ctx, "admin")
	assert.Equal(t, []string{"employee.create", "employee.read"}, r.Permissions)

	ev, err := f.store.Read(ctx, "permissions_local/admin")
	require.NoError(t, err)
	assert.Equal(t, broadcast.EventNoData, ev.Status)
	assert.Empty(t, f.audit.Entries)
}

func TestUpdatePermissions_UnknownRole(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)

	_, err := f.service.UpdatePermissions(context.Background(), "ghost", []string{"a.read"})
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestUpdatePermissions_SuperAdminOnlyRepublishesAggregate(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)

	_, err := f.service.UpdatePermissions(context.Background(), "super admin", []string{"secret.only"})
	require.NoError(t, err)

	assert.Equal(t, []string{"employee.create", "employee.read"}, snapshotOf(t, f.store, "super admin"))
	assert.Equal(t, []common_models.AuditAction{common_models.AuditActionUpdate}, f.audit.Entries)
}

// unreadableRepo commits writes but cannot read roles back.
type unreadableRepo struct {
	*MockRoleRepo
}

func (unreadableRepo) FindByName(ctx context.Context, name string) (*Role, error) {
	return nil, errors.New("connection reset")
}

func TestUpdatePermissions_RereadFailurePublishesWrittenSet(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)
	f.service.RoleRepo = unreadableRepo{f.repo}

	result, err := f.service.UpdatePermissions(context.Background(), "hr", []string{"leave.approve", "employee.read"})
	require.NoError(t, err)
	assert.Equal(t, []string{"employee.read", "leave.approve"}, result.Role.Permissions)
	assert.Empty(t, result.BroadcastWarning)

	assert.Equal(t, []string{"employee.read", "leave.approve"}, snapshotOf(t, f.store, "hr"))
	assert.Equal(t, []string{"employee.create", "employee.read", "leave.approve"}, snapshotOf(t, f.store, "super admin"))
}

func TestUpdatePermissions_BroadcastFailureIsWarning(t *testing.T) {
	f := newFixture(t, brokenStore{broadcast.NewMemoryStore()}, nil)
	ctx := utils.WithClaims(context.Background(), &utils.UserClaims{UserID: "u1", Role: "admin"})

	result, err := f.service.UpdatePermissions(ctx, "hr", []string{"leave.approve"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.BroadcastWarning)

	// Record store change stays committed.
	r, _ := f.repo.FindByName(ctx, "hr")
	assert.Equal(t, []string{"leave.approve"}, r.Permissions)

	assert.Equal(t, []sentNotification{{Target: "user:u1", Level: "warning"}}, f.notifier.Sent)
}

func TestUpdatePermissions_BroadcastFailureFatal(t *testing.T) {
	f := newFixture(t, brokenStore{broadcast.NewMemoryStore()}, &config.Config{BroadcastFailureFatal: true})

	result, err := f.service.UpdatePermissions(context.Background(), "hr", []string{"leave.approve"})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrBroadcastFailed)

	r, _ := f.repo.FindByName(context.Background(), "hr")
	assert.Equal(t, []string{"leave.approve"}, r.Permissions)
}

func TestTogglePermission(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)
	ctx := context.Background()

	_, err := f.service.TogglePermission(ctx, "hr", "leave.approve", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"employee.read", "leave.approve"}, snapshotOf(t, f.store, "hr"))

	_, err = f.service.TogglePermission(ctx, "hr", "employee.read", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"leave.approve"}, snapshotOf(t, f.store, "hr"))
	assert.Equal(t, []string{"employee.create", "employee.read", "leave.approve"}, snapshotOf(t, f.store, "super admin"))

	_, err = f.service.TogglePermission(ctx, "hr", "bad", true)
	var verr *permission.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestCreateAndDeleteRole(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)
	ctx := context.Background()

	result, err := f.service.CreateRole(ctx, "Auditor", []string{"audit.read"})
	require.NoError(t, err)
	assert.True(t, result.Role.IsRemovable)
	assert.Equal(t, []string{"audit.read"}, snapshotOf(t, f.store, "auditor"))
	assert.Contains(t, snapshotOf(t, f.store, "super admin"), "audit.read")

	_, err = f.service.CreateRole(ctx, "auditor", nil)
	assert.ErrorIs(t, err, ErrRoleExists)

	_, err = f.service.DeleteRole(ctx, "auditor")
	require.NoError(t, err)
	assert.Equal(t, []string{}, snapshotOf(t, f.store, "auditor"))
	assert.NotContains(t, snapshotOf(t, f.store, "super admin"), "audit.read")
}

func TestDeleteRole_FixedRoleRefused(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)

	_, err := f.service.DeleteRole(context.Background(), "admin")
	assert.ErrorIs(t, err, ErrRoleNotRemovable)

	_, err = f.service.GetRole(context.Background(), "admin")
	assert.NoError(t, err)
}

func TestResyncAll(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)

	report, err := f.service.ResyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Roles)
	assert.True(t, report.Aggregated)
	assert.Empty(t, report.Failed)

	assert.Equal(t, []string{"employee.read"}, snapshotOf(t, f.store, "hr"))
	assert.Equal(t, []string{}, snapshotOf(t, f.store, "employee"))
	assert.Equal(t, []string{"employee.create", "employee.read"}, snapshotOf(t, f.store, "super admin"))
}

func TestResyncAll_ReportsFailures(t *testing.T) {
	f := newFixture(t, brokenStore{broadcast.NewMemoryStore()}, nil)

	report, err := f.service.ResyncAll(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, report.Roles)
	assert.False(t, report.Aggregated)
	assert.ElementsMatch(t, []string{"admin", "employee", "hr", "super admin"}, report.Failed)
}

func TestEffectivePermissionsAndHasPermission(t *testing.T) {
	f := newFixture(t, broadcast.NewMemoryStore(), nil)
	ctx := context.Background()

	perms, err := f.service.EffectivePermissions(ctx, "HR")
	require.NoError(t, err)
	assert.Equal(t, []string{"employee.read"}, perms)

	perms, err = f.service.EffectivePermissions(ctx, "super admin")
	require.NoError(t, err)
	assert.Equal(t, []string{"employee.create", "employee.read"}, perms)

	ok, err := f.service.HasPermission(ctx, "hr", "employee.create")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = f.service.HasPermission(ctx, "super admin", "employee.create")
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = f.service.HasPermission(ctx, "ghost", "employee.create")
	assert.ErrorIs(t, err, ErrRoleNotFound)
}
