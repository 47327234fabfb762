package user

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"kod-admin/internal/common/models"
	"kod-admin/internal/features/audit"
	"kod-admin/internal/features/role"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidStatus = errors.New("invalid status: must be active, inactive, or suspended")

type CreateUserRequest struct {
	Username  string `json:"username" validate:"required,min=3,max=64"`
	Password  string `json:"password" validate:"required,min=8"`
	Email     string `json:"email" validate:"omitempty,email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role" validate:"required"`
}

// RoleLookup confirms a role exists before users are bound to it.
type RoleLookup interface {
	GetRole(ctx context.Context, name string) (*role.Role, error)
}

type UserService interface {
	CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error)
	ListUsers(ctx context.Context, filter map[string]interface{}, page, limit int64) ([]models.User, int64, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	AssignRole(ctx context.Context, id, roleName string) error
	UpdateUserStatus(ctx context.Context, id string, status string) error
}

type UserServiceImpl struct {
	UserRepo     UserRepository
	Roles        RoleLookup
	AuditService audit.AuditService
}

func NewUserService(userRepo UserRepository, roles RoleLookup, auditService audit.AuditService) UserService {
	return &UserServiceImpl{
		UserRepo:     userRepo,
		Roles:        roles,
		AuditService: auditService,
	}
}

// HashPassword hashes a plaintext password with bcrypt's default cost.
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func (s *UserServiceImpl) CreateUser(ctx context.Context, req CreateUserRequest) (*models.User, error) {
	r, err := s.Roles.GetRole(ctx, req.Role)
	if err != nil {
		return nil, err
	}

	hashed, err := HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	user := &models.User{
		ID:        primitive.NewObjectID(),
		Username:  strings.TrimSpace(req.Username),
		Password:  hashed,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Role:      r.Role,
		Status:    models.UserStatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.UserRepo.Create(ctx, user); err != nil {
		return nil, err
	}

	_ = s.AuditService.LogChange(ctx, models.AuditActionCreate, "user", user.ID.Hex(), map[string]models.Change{
		"username": {New: user.Username},
		"role":     {New: user.Role},
	})

	return user, nil
}

func (s *UserServiceImpl) ListUsers(ctx context.Context, filter map[string]interface{}, page, limit int64) ([]models.User, int64, error) {
	if filter == nil {
		filter = make(map[string]interface{})
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	return s.UserRepo.List(ctx, filter, limit, (page-1)*limit)
}

func (s *UserServiceImpl) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.UserRepo.FindByID(ctx, id)
}

// AssignRole binds a user to an existing role. The user picks up the new
// permission set on the next login.
func (s *UserServiceImpl) AssignRole(ctx context.Context, id, roleName string) error {
	user, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}
	r, err := s.Roles.GetRole(ctx, roleName)
	if err != nil {
		return err
	}
	if r.Role == user.Role {
		return nil
	}

	if err := s.UserRepo.Update(ctx, id, bson.M{"role": r.Role}); err != nil {
		return err
	}

	_ = s.AuditService.LogChange(ctx, models.AuditActionUpdate, "user", id, map[string]models.Change{
		"role": {Old: user.Role, New: r.Role},
	})
	return nil
}

func (s *UserServiceImpl) UpdateUserStatus(ctx context.Context, id string, status string) error {
	valid := []string{models.UserStatusActive, models.UserStatusInactive, models.UserStatusSuspended}
	if !slices.Contains(valid, status) {
		return ErrInvalidStatus
	}

	user, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.UserRepo.Update(ctx, id, bson.M{"status": status}); err != nil {
		return err
	}

	_ = s.AuditService.LogChange(ctx, models.AuditActionUpdate, "user", id, map[string]models.Change{
		"status": {Old: user.Status, New: status},
	})
	return nil
}
