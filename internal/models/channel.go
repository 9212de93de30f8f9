package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChannelCategory links an external channel (stored as "type:id") to a
// category. The set for a channel is always replaced wholesale, never
// merged. A channel with zero links is invisible to membership
// reconciliation.
type ChannelCategory struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ChannelID  string    `gorm:"size:128;not null;uniqueIndex:idx_channel_category" json:"channel_id"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_channel_category" json:"category_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (cc *ChannelCategory) BeforeCreate(tx *gorm.DB) error {
	if cc.ID == uuid.Nil {
		cc.ID = uuid.New()
	}
	return nil
}
