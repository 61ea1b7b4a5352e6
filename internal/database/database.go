package database

import (
	"fmt"
	"os"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/sitework/backend/internal/config"
	"github.com/sitework/backend/internal/models"
	"github.com/sitework/backend/pkg/logger"
	"github.com/sitework/backend/pkg/utils"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	if err := SeedBootstrapTenant(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Tenant{},
		&models.User{},
		&models.Session{},
		&models.VerificationToken{},
	)
}

// SeedBootstrapTenant creates an initial tenant and owner when BOOTSTRAP_*
// variables are set and the email is not yet taken. Idempotent: reruns are
// no-ops, so it is safe on every startup.
func SeedBootstrapTenant(db *gorm.DB) error {
	email := os.Getenv("BOOTSTRAP_EMAIL")
	password := os.Getenv("BOOTSTRAP_PASSWORD")
	slug := os.Getenv("BOOTSTRAP_TENANT_SLUG")
	if email == "" || password == "" || slug == "" {
		return nil
	}

	var count int64
	if err := db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}

	return db.Transaction(func(tx *gorm.DB) error {
		tenant := models.Tenant{
			Name:   slug,
			Slug:   slug,
			Status: models.TenantStatusActive,
		}
		if err := tx.Create(&tenant).Error; err != nil {
			return err
		}

		owner := models.User{
			TenantID:     tenant.ID,
			Email:        email,
			Name:         "Bootstrap Owner",
			Role:         models.UserRoleOwner,
			Status:       models.UserStatusActive,
			PasswordHash: &hash,
		}
		if err := tx.Create(&owner).Error; err != nil {
			return err
		}

		logger.Info("bootstrap_tenant_seeded", map[string]interface{}{
			"tenant_id": tenant.ID.String(),
			"slug":      tenant.Slug,
		})
		return nil
	})
}
