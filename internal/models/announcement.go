package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	AnnouncementDraft     = "draft"
	AnnouncementPublished = "published"
)

// Announcement is owned by the relational store; the copies in the external
// per-category feeds are derived projections, not a second source of truth.
type Announcement struct {
	ID      uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Title   string    `gorm:"size:255;not null" json:"title"`
	Content string    `gorm:"type:text;not null" json:"content"`
	Status  string    `gorm:"size:20;default:'draft'" json:"status"`

	Template    string         `gorm:"size:20;default:'hero'" json:"template"`
	Attachments datatypes.JSON `json:"attachments,omitempty"`
	ImageURL    string         `gorm:"size:512" json:"image_url,omitempty"`
	LinkURL     string         `gorm:"size:512" json:"link_url,omitempty"`
	LinkText    string         `gorm:"size:255" json:"link_text,omitempty"`

	// ExternalActivityID is the feed activity id last assigned by the
	// platform, if the announcement has ever been published.
	ExternalActivityID *string `gorm:"size:128" json:"external_activity_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (a *Announcement) IsPublished() bool {
	return a.Status == AnnouncementPublished
}

// AnnouncementCategory links an announcement to a category. Replace-all
// semantics, same as ChannelCategory.
type AnnouncementCategory struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AnnouncementID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_announcement_category;constraint:OnDelete:CASCADE" json:"announcement_id"`
	CategoryID     uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_announcement_category" json:"category_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// AnnouncementImportance links an announcement to an importance level.
type AnnouncementImportance struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	AnnouncementID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_announcement_importance;constraint:OnDelete:CASCADE" json:"announcement_id"`
	ImportanceID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_announcement_importance" json:"importance_id"`
	CreatedAt      time.Time `json:"created_at"`
}

func (a *Announcement) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

func (ac *AnnouncementCategory) BeforeCreate(tx *gorm.DB) error {
	if ac.ID == uuid.Nil {
		ac.ID = uuid.New()
	}
	return nil
}

func (ai *AnnouncementImportance) BeforeCreate(tx *gorm.DB) error {
	if ai.ID == uuid.Nil {
		ai.ID = uuid.New()
	}
	return nil
}
