package audit

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	common_models "kod-admin/internal/common/models"
	"kod-admin/pkg/utils"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	systemActor = "system"
	maxPageSize = 100
)

var ErrUnknownAction = errors.New("unknown audit action")

var knownActions = []common_models.AuditAction{
	common_models.AuditActionCreate,
	common_models.AuditActionUpdate,
	common_models.AuditActionDelete,
	common_models.AuditActionLogin,
	common_models.AuditActionSync,
	common_models.AuditActionCron,
}

// UserFinder resolves actor IDs to usernames.
type UserFinder interface {
	FindByIDs(ctx context.Context, ids []string) ([]common_models.User, error)
}

type AuditService interface {
	LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error
	ListLogs(ctx context.Context, filter LogFilter, page, limit int64) (*LogPage, error)
}

type AuditServiceImpl struct {
	Repo     AuditRepository
	UserRepo UserFinder
	now      func() time.Time
}

func NewAuditService(repo AuditRepository, userRepo UserFinder) AuditService {
	return &AuditServiceImpl{
		Repo:     repo,
		UserRepo: userRepo,
		now:      time.Now,
	}
}

// LogChange records one change. The actor comes from the request claims, or
// "system" for scheduled work.
func (s *AuditServiceImpl) LogChange(ctx context.Context, action common_models.AuditAction, module string, recordID string, changes map[string]common_models.Change) error {
	actorID := systemActor
	if claims, ok := utils.ClaimsFromContext(ctx); ok {
		actorID = claims.UserID
	}

	return s.Repo.Create(ctx, common_models.AuditLog{
		ID:        primitive.NewObjectID(),
		Action:    action,
		Module:    module,
		RecordID:  recordID,
		ActorID:   actorID,
		Changes:   changes,
		Timestamp: s.now(),
	})
}

func (s *AuditServiceImpl) ListLogs(ctx context.Context, filter LogFilter, page, limit int64) (*LogPage, error) {
	if filter.Action != "" {
		filter.Action = common_models.AuditAction(strings.ToUpper(string(filter.Action)))
		if !slices.Contains(knownActions, filter.Action) {
			return nil, ErrUnknownAction
		}
	}
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > maxPageSize {
		limit = 20
	}

	logs, total, err := s.Repo.List(ctx, filter, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	s.resolveActors(ctx, logs)

	return &LogPage{Logs: logs, Total: total, Page: page, Limit: limit}, nil
}

// resolveActors fills ActorName. Lookup failures leave names as "Unknown User".
func (s *AuditServiceImpl) resolveActors(ctx context.Context, logs []common_models.AuditLog) {
	ids := []string{}
	for _, l := range logs {
		if l.ActorID != systemActor && l.ActorID != "" && !slices.Contains(ids, l.ActorID) {
			ids = append(ids, l.ActorID)
		}
	}

	names := map[string]string{}
	if len(ids) > 0 {
		if users, err := s.UserRepo.FindByIDs(ctx, ids); err == nil {
			for _, u := range users {
				names[u.ID.Hex()] = u.Username
			}
		}
	}

	for i, l := range logs {
		switch {
		case l.ActorID == systemActor || l.ActorID == "":
			logs[i].ActorName = "System"
		case names[l.ActorID] != "":
			logs[i].ActorName = names[l.ActorID]
		default:
			logs[i].ActorName = "Unknown User"
		}
	}
}
