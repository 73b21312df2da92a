package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"gorm.io/gorm"
)

const (
	OrgStatusActive   = "active"
	OrgStatusInactive = "inactive"
	OrgStatusDisabled = "disabled"
)

// Organization is the tenant that owns credit balances, payment records and
// subscription state. API access is authenticated by a hashed API key.
type Organization struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	PublicID   string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"public_id"`
	Name       string    `gorm:"type:varchar(150);not null" json:"name" validate:"required,min=2,max=150"`
	Email      string    `gorm:"type:varchar(200);index" json:"email" validate:"omitempty,email"`
	Status     string    `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	APIKeyHash string    `gorm:"type:varchar(64);uniqueIndex" json:"-"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// HashAPIKey returns the hex SHA-256 digest used for API key lookups.
func HashAPIKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(sum[:])
}

// FindOrganizationByAPIKeyHash resolves an organization from a hashed API key.
func FindOrganizationByAPIKeyHash(db *gorm.DB, hash string) (*Organization, error) {
	var org Organization
	if err := db.Where("api_key_hash = ?", hash).First(&org).Error; err != nil {
		return nil, err
	}
	return &org, nil
}
