package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AuditLog records admin actions. Writes are best-effort; a failed insert
// never fails the operation being audited.
type AuditLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    *uuid.UUID     `gorm:"type:uuid;index" json:"user_id,omitempty"`
	Action    string         `gorm:"size:100;not null" json:"action"`
	Module    string         `gorm:"size:50;not null;index" json:"module"`
	Details   datatypes.JSON `json:"details,omitempty"`
	IPAddress string         `gorm:"size:64" json:"ip_address,omitempty"`
	UserAgent string         `gorm:"size:512" json:"user_agent,omitempty"`
	CreatedAt time.Time      `gorm:"index" json:"created_at"`
}

func (l *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
