package models

import "time"

type TenantStatus string

const (
	TenantStatusTrial     TenantStatus = "trial"
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

type Tenant struct {
	BaseModel
	Name        string       `json:"name" gorm:"type:varchar(255);not null"`
	Slug        string       `json:"slug" gorm:"type:varchar(50);uniqueIndex;not null"`
	Plan        string       `json:"plan" gorm:"type:varchar(20);not null;default:'free'"`
	Status      TenantStatus `json:"status" gorm:"type:varchar(20);not null;default:'trial'"`
	TrialEndsAt *time.Time   `json:"trialEndsAt,omitempty"`
	Users       []User       `json:"-" gorm:"foreignKey:TenantID"`
}
