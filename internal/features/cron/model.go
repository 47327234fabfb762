package cron_feature

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"

	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// ReconcileRun is one republish of the broadcast tree from the record store.
type ReconcileRun struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Trigger     string             `json:"trigger" bson:"trigger"`
	StartTime   time.Time          `json:"start_time" bson:"start_time"`
	EndTime     *time.Time         `json:"end_time,omitempty" bson:"end_time,omitempty"`
	Status      string             `json:"status" bson:"status"` // "running", "success", "failed"
	RolesSynced int                `json:"roles_synced" bson:"roles_synced"`
	Failed      []string           `json:"failed,omitempty" bson:"failed,omitempty"`
	Aggregated  bool               `json:"aggregated" bson:"aggregated"`
	Error       string             `json:"error,omitempty" bson:"error,omitempty"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
}
