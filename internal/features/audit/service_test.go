package audit

import (
	"context"
	"testing"
	"time"

	common_models "kod-admin/internal/common/models"
	"kod-admin/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MockAuditRepo struct {
	logs       []common_models.AuditLog
	lastFilter LogFilter
	lastLimit  int64
	lastOffset int64
}

func (m *MockAuditRepo) Create(ctx context.Context, log common_models.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func (m *MockAuditRepo) List(ctx context.Context, filter LogFilter, limit, offset int64) ([]common_models.AuditLog, int64, error) {
	m.lastFilter, m.lastLimit, m.lastOffset = filter, limit, offset
	out := append([]common_models.AuditLog{}, m.logs...)
	return out, int64(len(out)), nil
}

func (m *MockAuditRepo) EnsureIndexes(ctx context.Context) error {
	return nil
}

type MockUserFinder []common_models.User

func (m MockUserFinder) FindByIDs(ctx context.Context, ids []string) ([]common_models.User, error) {
	return m, nil
}

func TestLogChange_ActorFromClaims(t *testing.T) {
	repo := &MockAuditRepo{}
	svc := NewAuditService(repo, MockUserFinder{}).(*AuditServiceImpl)
	svc.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ctx := utils.WithClaims(context.Background(), &utils.UserClaims{UserID: "u-1", Role: "admin"})
	require.NoError(t, svc.LogChange(ctx, common_models.AuditActionUpdate, "role", "hr", map[string]common_models.Change{
		"permissions": {Old: []string{"a.read"}, New: []string{"a.read", "b.read"}},
	}))
	require.NoError(t, svc.LogChange(context.Background(), common_models.AuditActionCron, "reconcile", "r-1", nil))

	require.Len(t, repo.logs, 2)
	assert.Equal(t, "u-1", repo.logs[0].ActorID)
	assert.Equal(t, "hr", repo.logs[0].RecordID)
	assert.Equal(t, time.UnixMilli(1700000000000), repo.logs[0].Timestamp)
	assert.Equal(t, systemActor, repo.logs[1].ActorID)
}

func TestListLogs_ResolvesActors(t *testing.T) {
	alice := primitive.NewObjectID()
	repo := &MockAuditRepo{logs: []common_models.AuditLog{
		{ActorID: alice.Hex()},
		{ActorID: systemActor},
		{ActorID: primitive.NewObjectID().Hex()},
	}}
	svc := NewAuditService(repo, MockUserFinder{{ID: alice, Username: "alice"}})

	page, err := svc.ListLogs(context.Background(), LogFilter{Module: "role", Action: "update"}, 2, 500)
	require.NoError(t, err)

	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, int64(20), page.Limit)
	assert.Equal(t, int64(20), repo.lastOffset)
	assert.Equal(t, common_models.AuditActionUpdate, repo.lastFilter.Action)
	assert.Equal(t, []string{"alice", "System", "Unknown User"}, []string{
		page.Logs[0].ActorName, page.Logs[1].ActorName, page.Logs[2].ActorName,
	})
}

func TestListLogs_UnknownAction(t *testing.T) {
	svc := NewAuditService(&MockAuditRepo{}, MockUserFinder{})
	_, err := svc.ListLogs(context.Background(), LogFilter{Action: "PURGE"}, 1, 10)
	assert.ErrorIs(t, err, ErrUnknownAction)
}
