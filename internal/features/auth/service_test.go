package auth

import (
	"context"
	"testing"

	"kod-admin/internal/common/models"
	"kod-admin/internal/features/audit"
	"kod-admin/internal/features/user"
	"kod-admin/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MockUserRepo implements the lookups Login needs. Other methods panic
// through the nil embedded interface.
type MockUserRepo struct {
	user.UserRepository
	users   map[string]models.User
	updates []bson.M
}

func (m *MockUserRepo) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	u, ok := m.users[username]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	return &u, nil
}

func (m *MockUserRepo) Update(ctx context.Context, id string, fields bson.M) error {
	m.updates = append(m.updates, fields)
	return nil
}

type MockAuditService struct {
	Actors []string
}

func (m *MockAuditService) LogChange(ctx context.Context, action models.AuditAction, module string, recordID string, changes map[string]models.Change) error {
	claims, _ := utils.ClaimsFromContext(ctx)
	m.Actors = append(m.Actors, claims.UserID)
	return nil
}

func (m *MockAuditService) ListLogs(ctx context.Context, filter audit.LogFilter, page, limit int64) (*audit.LogPage, error) {
	return &audit.LogPage{}, nil
}

func newTestAuth(t *testing.T) (AuthService, *MockUserRepo, *MockAuditService) {
	t.Helper()
	hash, err := user.HashPassword("s3cret-pass")
	require.NoError(t, err)

	repo := &MockUserRepo{users: map[string]models.User{}}
	for name, status := range map[string]string{
		"alice": models.UserStatusActive,
		"bob":   models.UserStatusSuspended,
		"carol": models.UserStatusInactive,
	} {
		repo.users[name] = models.User{
			ID:       primitive.NewObjectID(),
			Username: name,
			Password: hash,
			Role:     "hr",
			Status:   status,
		}
	}
	auditSvc := &MockAuditService{}
	return NewAuthService(repo, auditSvc), repo, auditSvc
}

func TestLogin_IssuesTokenWithRole(t *testing.T) {
	svc, repo, auditSvc := newTestAuth(t)

	token, usr, err := svc.Login(context.Background(), "alice", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "alice", usr.Username)

	claims, err := utils.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, usr.ID.Hex(), claims.UserID)
	assert.Equal(t, "hr", claims.Role)

	require.Len(t, repo.updates, 1)
	assert.Contains(t, repo.updates[0], "last_login")
	assert.Equal(t, []string{usr.ID.Hex()}, auditSvc.Actors)
}

func TestLogin_Rejections(t *testing.T) {
	svc, _, auditSvc := newTestAuth(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"unknown user", "mallory", "s3cret-pass", ErrInvalidCredentials},
		{"wrong password", "alice", "nope", ErrInvalidCredentials},
		{"suspended", "bob", "s3cret-pass", ErrAccountSuspended},
		{"inactive", "carol", "s3cret-pass", ErrAccountInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := svc.Login(ctx, tt.username, tt.password)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, token)
		})
	}
	assert.Empty(t, auditSvc.Actors)
}
