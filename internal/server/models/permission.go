package models

import "time"

// PermissionLevel is a per-document grant, ordered read < write < admin.
type PermissionLevel string

const (
	PermissionRead  PermissionLevel = "read"
	PermissionWrite PermissionLevel = "write"
	PermissionAdmin PermissionLevel = "admin"
)

// Rank returns 1, 2 or 3 for valid levels and 0 otherwise.
func (l PermissionLevel) Rank() int {
	switch l {
	case PermissionRead:
		return 1
	case PermissionWrite:
		return 2
	case PermissionAdmin:
		return 3
	}
	return 0
}

func (l PermissionLevel) Valid() bool { return l.Rank() > 0 }

type DocumentPermission struct {
	ID         string          `json:"id"`
	DocumentID string          `json:"documentId"`
	UserID     string          `json:"userId"`
	Permission PermissionLevel `json:"permission"`
	GrantedBy  string          `json:"grantedBy"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}
