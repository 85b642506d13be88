package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one link in a refresh-token rotation chain. Rows sharing a FamilyID descend from
// the same login; RotatedFrom points at the predecessor and is never rewritten.
type Session struct {
	ID               string     `gorm:"primaryKey;size:36" json:"id"`
	UserID           string     `gorm:"size:36;not null;index" json:"user_id"`
	FamilyID         string     `gorm:"size:36;not null;index" json:"family_id"`
	RotatedFrom      *string    `gorm:"size:36;index" json:"rotated_from,omitempty"`
	RefreshTokenHash string     `gorm:"size:128;not null" json:"-"`
	UserAgent        string     `gorm:"size:512" json:"user_agent"`
	IPAddress        string     `gorm:"column:ip;size:64" json:"ip"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       time.Time  `json:"last_used_at"`
	ExpiresAt        time.Time  `gorm:"index" json:"expires_at"`
	RevokedAt        *time.Time `gorm:"index" json:"revoked_at,omitempty"`
	RevokedReason    *string    `gorm:"size:32" json:"revoked_reason,omitempty"`
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// ActiveAt reports whether the session is neither revoked nor expired at the supplied instant.
func (s *Session) ActiveAt(now time.Time) bool {
	return s != nil && s.RevokedAt == nil && s.ExpiresAt.After(now)
}
