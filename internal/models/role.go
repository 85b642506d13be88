package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Role is the persisted form of a role table entry. Permissions holds a JSON array of
// permission identifiers, or ["all"] for roles granting the universal set.
type Role struct {
	Name        string         `gorm:"primaryKey;size:64" json:"name"`
	Level       int            `gorm:"not null;default:0" json:"level"`
	Description string         `json:"description"`
	Permissions datatypes.JSON `json:"permissions"`
	IsSystem    bool           `gorm:"default:false" json:"is_system"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// UserRole assigns a role to a user, optionally until ExpiresAt.
type UserRole struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	UserID    string     `gorm:"size:36;not null;uniqueIndex:idx_user_roles_user_role" json:"user_id"`
	RoleName  string     `gorm:"size:64;not null;uniqueIndex:idx_user_roles_user_role;index" json:"role"`
	ExpiresAt *time.Time `gorm:"index" json:"expires_at,omitempty"`
	GrantedBy *string    `gorm:"size:36" json:"granted_by,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func (r *UserRole) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
