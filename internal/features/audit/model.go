package audit

import (
	common_models "kod-admin/internal/common/models"
)

// LogFilter narrows ListLogs. Empty fields match everything.
type LogFilter struct {
	Module   string
	Action   common_models.AuditAction
	RecordID string
	ActorID  string
}

type LogPage struct {
	Logs  []common_models.AuditLog `json:"data"`
	Total int64                    `json:"total"`
	Page  int64                    `json:"page"`
	Limit int64                    `json:"limit"`
}
