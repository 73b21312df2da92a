package models

import (
	"time"

	"gorm.io/gorm"
)

// CreditPackage is a one-time purchasable credit bundle. ProviderPriceRef is
// the payment processor's price identifier sent on checkout.
type CreditPackage struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	Name             string    `gorm:"type:varchar(100);not null" json:"name"`
	Pool             string    `gorm:"type:varchar(32);not null" json:"pool"`
	CreditAmount     int64     `gorm:"not null" json:"credit_amount"`
	PriceCents       int64     `gorm:"not null" json:"price_cents"`
	Currency         string    `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	ProviderPriceRef string    `gorm:"type:varchar(191);uniqueIndex" json:"provider_price_ref"`
	Active           bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// FindActiveCreditPackage loads an active package by primary key.
func FindActiveCreditPackage(db *gorm.DB, id uint) (*CreditPackage, error) {
	var pkg CreditPackage
	if err := db.Where("id = ? AND active = ?", id, true).First(&pkg).Error; err != nil {
		return nil, err
	}
	return &pkg, nil
}
