package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SystemLog stores structured ERROR+ logs for later querying.
type SystemLog struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Timestamp time.Time      `gorm:"not null;index" json:"timestamp"`
	Level     string         `gorm:"size:10;not null;index" json:"level"`
	Message   string         `gorm:"type:text" json:"message"`
	Module    string         `gorm:"size:50;index" json:"module"`
	Action    string         `gorm:"size:100" json:"action"`
	UserID    *string        `gorm:"size:36" json:"user_id,omitempty"`
	ChannelID string         `gorm:"size:128" json:"channel_id,omitempty"`
	Error     string         `gorm:"type:text" json:"error,omitempty"`
	Extra     datatypes.JSON `json:"extra,omitempty"`
}

func (l *SystemLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
