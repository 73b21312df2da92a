package models

import (
	"time"

	"gorm.io/gorm"
)

const (
	BillingCycleMonthly = "monthly"
	BillingCycleYearly  = "yearly"
)

// SubscriptionPlan is a catalog entity: prices, monthly credit allotments per
// pool and job-post limits. Read-only at runtime except via admin update.
type SubscriptionPlan struct {
	ID                      uint      `gorm:"primaryKey" json:"id"`
	Code                    string    `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Name                    string    `gorm:"type:varchar(100);not null" json:"name"`
	MonthlyPriceCents       int64     `gorm:"not null" json:"monthly_price_cents"`
	YearlyPriceCents        int64     `gorm:"not null" json:"yearly_price_cents"`
	MonthlyCVCredits        int64     `gorm:"not null;default:0" json:"monthly_cv_credits"`
	MonthlyInterviewCredits int64     `gorm:"not null;default:0" json:"monthly_interview_credits"`
	JobPostLimit            int       `gorm:"not null;default:0" json:"job_post_limit"`
	ProviderMonthlyPriceRef string    `gorm:"type:varchar(191)" json:"provider_monthly_price_ref"`
	ProviderYearlyPriceRef  string    `gorm:"type:varchar(191)" json:"provider_yearly_price_ref"`
	Active                  bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt               time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// PoolAllotments returns the per-pool monthly credit grants for the plan.
// Pools with a zero allotment are omitted so no empty ledger entries are
// written on invoice allocation.
func (p *SubscriptionPlan) PoolAllotments() map[string]int64 {
	allotments := make(map[string]int64, 2)
	if p.MonthlyCVCredits > 0 {
		allotments[PoolCVProcessing] = p.MonthlyCVCredits
	}
	if p.MonthlyInterviewCredits > 0 {
		allotments[PoolInterview] = p.MonthlyInterviewCredits
	}
	return allotments
}

// FindActiveSubscriptionPlan loads an active plan by primary key.
func FindActiveSubscriptionPlan(db *gorm.DB, id uint) (*SubscriptionPlan, error) {
	var plan SubscriptionPlan
	if err := db.Where("id = ? AND active = ?", id, true).First(&plan).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}
