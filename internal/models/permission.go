package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PermissionGrant is one user's capability bundle for one category. At most
// one row exists per (user, category); permission updates replace the whole
// set for a user rather than patching individual rows.
type PermissionGrant struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_grants_user_category" json:"user_id"`
	CategoryID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_grants_user_category" json:"category_id"`

	CanViewChat            bool `gorm:"default:false" json:"can_view_chat"`
	CanSendMessages        bool `gorm:"default:false" json:"can_send_messages"`
	CanViewAnnouncements   bool `gorm:"default:false" json:"can_view_announcements"`
	CanCreateAnnouncements bool `gorm:"default:false" json:"can_create_announcements"`
	CanModerate            bool `gorm:"default:false" json:"can_moderate"`
	CanDeleteMessages      bool `gorm:"default:false" json:"can_delete_messages"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *PermissionGrant) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}
