package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the system-of-record row for a community member. The external
// messaging platform holds a derived copy keyed by ExternalID.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	Email        string    `gorm:"size:255;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255" json:"-"`
	Avatar       string    `gorm:"size:512" json:"avatar,omitempty"`
	Role         string    `gorm:"size:20;default:'user'" json:"role"`
	Status       string    `gorm:"size:20;default:'active'" json:"status"`
	// ExternalID is assigned on the first successful directory sync and
	// never changes afterwards.
	ExternalID *string        `gorm:"size:64;index" json:"external_id,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) IsActive() bool {
	return u.Status == "active"
}

// BeforeCreate assigns an id when the caller did not, so the model works
// under databases without a uuid default.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
