package role

import "errors"

var (
	ErrRoleNotFound     = errors.New("role not found")
	ErrRoleExists       = errors.New("role already exists")
	ErrRoleNotRemovable = errors.New("role cannot be removed")
	ErrBroadcastFailed  = errors.New("permission broadcast failed")
)
