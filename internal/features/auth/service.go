package auth

import (
	"context"
	"errors"
	"time"

	"kod-admin/internal/common/models"
	"kod-admin/internal/features/audit"
	"kod-admin/internal/features/user"
	"kod-admin/pkg/utils"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"
)

const tokenTTL = 24 * time.Hour

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountSuspended   = errors.New("account suspended")
	ErrAccountInactive    = errors.New("account inactive")
)

type AuthService interface {
	Login(ctx context.Context, username, password string) (string, *models.User, error)
}

type AuthServiceImpl struct {
	UserRepo     user.UserRepository
	AuditService audit.AuditService
}

func NewAuthService(userRepo user.UserRepository, auditService audit.AuditService) AuthService {
	return &AuthServiceImpl{
		UserRepo:     userRepo,
		AuditService: auditService,
	}
}

// Login verifies credentials and issues a JWT carrying the user's role.
func (s *AuthServiceImpl) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	usr, err := s.UserRepo.FindByUsername(ctx, username)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(usr.Password), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	switch usr.Status {
	case models.UserStatusSuspended:
		return "", nil, ErrAccountSuspended
	case models.UserStatusInactive:
		return "", nil, ErrAccountInactive
	}

	token, err := utils.GenerateToken(usr.ID.Hex(), usr.Username, usr.Role, tokenTTL)
	if err != nil {
		return "", nil, err
	}

	_ = s.UserRepo.Update(ctx, usr.ID.Hex(), bson.M{"last_login": time.Now()})

	ctx = utils.WithClaims(ctx, &utils.UserClaims{UserID: usr.ID.Hex(), Username: usr.Username, Role: usr.Role})
	_ = s.AuditService.LogChange(ctx, models.AuditActionLogin, "user", usr.ID.Hex(), nil)

	return token, usr, nil
}
