package models

import "time"

// Credit pools tracked independently per organization.
const (
	PoolCVProcessing = "cv_processing"
	PoolInterview    = "interview"
)

// CreditBalance holds the current amount of one credit pool for one
// organization. Amount never goes below zero; it is mutated only through the
// ledger package's conditional update primitives.
type CreditBalance struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:ux_credit_balances_org_pool,unique,priority:1" json:"organization_id"`
	Pool           string    `gorm:"type:varchar(32);not null;index:ux_credit_balances_org_pool,unique,priority:2" json:"pool"`
	Amount         int64     `gorm:"not null;default:0" json:"amount"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// KnownPool reports whether pool is one of the supported credit pools.
func KnownPool(pool string) bool {
	switch pool {
	case PoolCVProcessing, PoolInterview:
		return true
	default:
		return false
	}
}
