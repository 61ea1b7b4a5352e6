package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated client. The id is the high-entropy token the
// client presents; validity requires both presence in the store and
// ExpiresAt in the future, checked at read time.
type Session struct {
	ID        string    `json:"id" gorm:"type:varchar(64);primaryKey"`
	UserID    uuid.UUID `json:"userId" gorm:"type:uuid;index;not null"`
	ExpiresAt time.Time `json:"expiresAt" gorm:"not null;index"`
	IPAddress string    `json:"-" gorm:"type:varchar(45)"`
	UserAgent string    `json:"-" gorm:"type:text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
