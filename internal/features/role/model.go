package role

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role is the authoritative permission record of one role
type Role struct {
	ID          primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Role        string             `json:"role" bson:"role"`               // Unique, lower-cased
	Permissions []string           `json:"permissions" bson:"permissions"` // <module>.<action> tokens, sorted
	IsRemovable bool               `json:"isRemovable" bson:"is_removable"`
	CreatedAt   time.Time          `json:"created_at" bson:"created_at"`
	UpdatedAt   time.Time          `json:"updated_at" bson:"updated_at"`
}

type CreateRoleRequest struct {
	Role        string   `json:"role" validate:"required,max=64"`
	Permissions []string `json:"permissions" validate:"dive,permtoken"`
}

type UpdatePermissionsRequest struct {
	Permissions []string `json:"permissions" validate:"required,dive,permtoken"`
}

type TogglePermissionRequest struct {
	Permission string `json:"permission" validate:"required,permtoken"`
	Enabled    *bool  `json:"enabled" validate:"required"`
}

// UpdateResult reports a committed record store change. BroadcastWarning is
// set when live sessions could not be updated yet.
type UpdateResult struct {
	Role             *Role  `json:"role"`
	BroadcastWarning string `json:"broadcastWarning,omitempty"`
}

// ResyncReport summarizes a full republish of the broadcast tree.
type ResyncReport struct {
	Roles      int      `json:"roles"`
	Failed     []string `json:"failed,omitempty"`
	Aggregated bool     `json:"aggregated"`
}
