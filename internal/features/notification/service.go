package notification

import (
	"context"
	"fmt"

	"kod-admin/internal/common/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// RecipientFinder lists the active users bound to a role.
type RecipientFinder interface {
	FindByRole(ctx context.Context, role string) ([]models.User, error)
}

type NotificationService interface {
	NotifyUser(ctx context.Context, userID, title, message, level string) error
	NotifyRole(ctx context.Context, role, title, message, level string) error
	GetUserNotifications(ctx context.Context, userID primitive.ObjectID, page, limit int64) ([]Notification, int64, error)
	GetUnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error)
	MarkAsRead(ctx context.Context, id string, userID primitive.ObjectID) error
	MarkAllAsRead(ctx context.Context, userID primitive.ObjectID) error
	ClearRead(ctx context.Context, userID primitive.ObjectID) (int64, error)
}

type NotificationServiceImpl struct {
	repo       NotificationRepository
	recipients RecipientFinder
}

func NewNotificationService(repo NotificationRepository, recipients RecipientFinder) NotificationService {
	return &NotificationServiceImpl{
		repo:       repo,
		recipients: recipients,
	}
}

func (s *NotificationServiceImpl) NotifyUser(ctx context.Context, userID, title, message, level string) error {
	oid, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return fmt.Errorf("notify user %q: %w", userID, err)
	}
	return s.repo.Create(ctx, &Notification{
		UserID:  oid,
		Title:   title,
		Message: message,
		Type:    ParseType(level),
		Link:    RolesLink,
	})
}

// NotifyRole sends one notification to every active user of role.
func (s *NotificationServiceImpl) NotifyRole(ctx context.Context, role, title, message, level string) error {
	users, err := s.recipients.FindByRole(ctx, role)
	if err != nil {
		return err
	}

	batch := make([]Notification, 0, len(users))
	for _, u := range users {
		batch = append(batch, Notification{
			UserID:  u.ID,
			Role:    role,
			Title:   title,
			Message: message,
			Type:    ParseType(level),
			Link:    RolesLink,
		})
	}
	return s.repo.CreateMany(ctx, batch)
}

func (s *NotificationServiceImpl) GetUserNotifications(ctx context.Context, userID primitive.ObjectID, page, limit int64) ([]Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	return s.repo.GetByUserID(ctx, userID, page, limit)
}

func (s *NotificationServiceImpl) GetUnreadCount(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.repo.GetUnreadCount(ctx, userID)
}

func (s *NotificationServiceImpl) MarkAsRead(ctx context.Context, id string, userID primitive.ObjectID) error {
	objID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	return s.repo.MarkAsRead(ctx, objID, userID)
}

func (s *NotificationServiceImpl) MarkAllAsRead(ctx context.Context, userID primitive.ObjectID) error {
	return s.repo.MarkAllAsRead(ctx, userID)
}

// ClearRead deletes the caller's read notifications and reports how many went.
func (s *NotificationServiceImpl) ClearRead(ctx context.Context, userID primitive.ObjectID) (int64, error) {
	return s.repo.DeleteRead(ctx, userID)
}
