package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the subset of the account record the session core reads when minting access tokens.
// Registration and profile management live outside this module.
type User struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	IsGuest  bool   `gorm:"default:false" json:"is_guest"`
	IsActive bool   `gorm:"default:true" json:"is_active"`

	Roles []UserRole `gorm:"foreignKey:UserID" json:"roles,omitempty"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
