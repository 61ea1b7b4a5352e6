package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type UserRole string

const (
	UserRoleOwner  UserRole = "owner"
	UserRoleAdmin  UserRole = "admin"
	UserRoleMember UserRole = "member"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusPending   UserStatus = "pending"
)

type User struct {
	BaseModel
	TenantID uuid.UUID  `json:"tenantId" gorm:"type:uuid;index;not null"`
	Email    string     `json:"email" gorm:"type:varchar(255);uniqueIndex;not null"`
	Name     string     `json:"name" gorm:"type:varchar(255);not null"`
	Role     UserRole   `json:"role" gorm:"type:varchar(20);not null;default:'member'"`
	Status   UserStatus `json:"status" gorm:"type:varchar(20);not null;default:'pending'"`

	// Nil means password authentication is not configured for this user.
	PasswordHash *string `json:"-" gorm:"type:text"`

	MFAEnabled bool   `json:"mfaEnabled" gorm:"not null;default:false"`
	MFASecret  string `json:"-" gorm:"type:text"` // base64 of 20 raw bytes, empty unless enabled
	// JSON array of plaintext single-use codes, each removed on use.
	BackupCodes string `json:"-" gorm:"type:text"`
	// Last TOTP time step accepted for this user; codes at or before this
	// step are rejected as replays.
	LastTOTPStep int64 `json:"-" gorm:"not null;default:0"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`

	Tenant Tenant `json:"-" gorm:"foreignKey:TenantID"`
}

// BackupCodeList decodes the stored backup codes. An empty column yields
// an empty list.
func (u *User) BackupCodeList() ([]string, error) {
	if u.BackupCodes == "" {
		return nil, nil
	}
	var codes []string
	if err := json.Unmarshal([]byte(u.BackupCodes), &codes); err != nil {
		return nil, err
	}
	return codes, nil
}

func EncodeBackupCodes(codes []string) (string, error) {
	raw, err := json.Marshal(codes)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
