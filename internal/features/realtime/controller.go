package realtime

import (
	"context"
	"sync"

	"kod-admin/internal/broadcast"
	"kod-admin/internal/config"
	"kod-admin/internal/metrics"
	"kod-admin/internal/middleware"
	"kod-admin/pkg/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Client -> server
type clientMessage struct {
	Type       string `json:"type"` // "check" or "role"
	Permission string `json:"permission,omitempty"`
	Token      string `json:"token,omitempty"`
}

type permissionsMessage struct {
	Type string `json:"type"`
	View
}

type decisionMessage struct {
	Type       string   `json:"type"`
	Permission string   `json:"permission"`
	Decision   Decision `json:"decision"`
	Allowed    bool     `json:"allowed"`
}

type errorMessage struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type RealtimeController struct {
	store   broadcast.Store
	paths   broadcast.Paths
	config  *config.Config
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func NewRealtimeController(store broadcast.Store, cfg *config.Config, m *metrics.Metrics, logger *zap.Logger) *RealtimeController {
	return &RealtimeController{
		store:   store,
		paths:   broadcast.PathsFromConfig(cfg),
		config:  cfg,
		metrics: m,
		logger:  logger,
	}
}

// HandlePermissions streams the caller's live permission set and answers
// gate checks over the same connection.
func (h *RealtimeController) HandlePermissions(c *websocket.Conn) {
	sessionID := uuid.NewString()
	log := h.logger.With(zap.String("session_id", sessionID))

	claims, ok := c.Locals(middleware.ClaimsLocal).(*utils.UserClaims)
	if !ok || claims == nil {
		_ = c.WriteJSON(errorMessage{Type: "error", Error: "unauthorized"})
		return
	}
	log = log.With(zap.String("user_id", claims.UserID))

	sub := NewSubscriber(h.store, h.paths,
		WithTimeout(h.config.SubscribeTimeout),
		WithLogger(log),
		WithMetrics(h.metrics),
	)
	gate := NewGate(sub)

	var writeMu sync.Mutex
	send := func(v any) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return c.WriteJSON(v)
	}

	pushed := make(chan struct{})
	go func() {
		defer close(pushed)
		for v := range sub.Updates() {
			if err := send(permissionsMessage{Type: "permissions", View: v}); err != nil {
				log.Debug("permission push failed", zap.Error(err))
			}
		}
	}()
	defer func() {
		_ = sub.Close()
		<-pushed
		log.Info("permission session closed")
	}()

	ctx := context.Background()
	if err := sub.SetRole(ctx, claims.Role); err != nil {
		log.Error("failed to bind role", zap.Error(err))
		return
	}
	log.Info("permission session opened", zap.String("role", claims.Role))

	for {
		var msg clientMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn("permission session read failed", zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "check":
			d := gate.Check(msg.Permission)
			_ = send(decisionMessage{Type: "decision", Permission: msg.Permission, Decision: d, Allowed: d == Allow})
		case "role":
			next, err := utils.ValidateToken(msg.Token)
			if err != nil || next.UserID != claims.UserID {
				_ = send(errorMessage{Type: "error", Error: "invalid token"})
				continue
			}
			claims = next
			if err := sub.SetRole(ctx, claims.Role); err != nil {
				return
			}
		default:
			_ = send(errorMessage{Type: "error", Error: "unknown message type"})
		}
	}
}
