package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Category scopes both announcement feeds and channel visibility. Slugs are
// immutable once created; categories are soft-deleted via Active=false
// because grants and links reference them by id.
type Category struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug        string    `gorm:"size:64;not null;uniqueIndex" json:"slug"`
	Name        string    `gorm:"size:255;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description,omitempty"`
	Color       string    `gorm:"size:16" json:"color"`
	Icon        string    `gorm:"size:512" json:"icon,omitempty"`
	Active      bool      `gorm:"default:true" json:"active"`
	SortOrder   int       `gorm:"default:0" json:"sort_order"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Importance is a secondary announcement label (normal, urgent, ...).
type Importance struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Slug      string    `gorm:"size:64;not null;uniqueIndex" json:"slug"`
	Name      string    `gorm:"size:255;not null" json:"name"`
	Color     string    `gorm:"size:16" json:"color"`
	SortOrder int       `gorm:"default:0" json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (i *Importance) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}
