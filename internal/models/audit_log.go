package models

import "gorm.io/datatypes"

// AuditLog records moderation and administration actions.
type AuditLog struct {
	BaseModel

	ActorID  *string        `gorm:"size:36;index" json:"actorId"`
	Actor    *User          `gorm:"foreignKey:ActorID" json:"actor,omitempty"`
	Action   string         `gorm:"size:64;not null;index" json:"action"`
	Resource string         `gorm:"size:64;index" json:"resource"`
	TargetID string         `gorm:"size:36;index" json:"targetId"`
	Result   string         `gorm:"size:16;not null" json:"result"`
	Metadata datatypes.JSON `json:"metadata,omitempty"`
}
