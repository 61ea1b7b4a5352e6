package models

import (
	"time"

	"github.com/google/uuid"
)

type VerificationTokenType string

const (
	VerificationTypePasswordReset VerificationTokenType = "password_reset"
)

// VerificationToken authorizes a single follow-up action without
// credentials. Consumed tokens are deleted; the rest expire.
type VerificationToken struct {
	BaseModel
	UserID    uuid.UUID             `json:"-" gorm:"type:uuid;index;not null"`
	Token     string                `json:"-" gorm:"type:varchar(64);uniqueIndex;not null"`
	Type      VerificationTokenType `json:"-" gorm:"type:varchar(30);not null"`
	ExpiresAt time.Time             `json:"-" gorm:"not null;index"`
}
