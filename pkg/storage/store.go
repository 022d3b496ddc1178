package storage

import (
	"encoding/json"
	"errors"
	"time"
)

// ErrRoleNotFound is returned when no record exists for a role key
var ErrRoleNotFound = errors.New("role not found")

// RoleRecord is the persisted state of one role
type RoleRecord struct {
	Key       string          `json:"key"` // "<group>/<role>"
	GroupID   string          `json:"groupId"`
	RoleID    string          `json:"roleId"`
	RoleGUID  string          `json:"roleGuid"`
	Stopped   bool            `json:"stopped,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Snapshot  json.RawMessage `json:"snapshot"`
}

// RoleKey builds the key a role is stored under
func RoleKey(groupID, roleID string) string {
	return groupID + "/" + roleID
}

// Store persists role records
type Store interface {
	SaveRole(rec *RoleRecord) error
	GetRole(key string) (*RoleRecord, error)
	ListRoles() ([]*RoleRecord, error)
	DeleteRole(key string) error

	Close() error
}
