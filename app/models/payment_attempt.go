package models

import "time"

const (
	PaymentAttemptKindPurchase     = "purchase"
	PaymentAttemptKindSubscription = "subscription"
)

const (
	PaymentAttemptStatusInitiated = "initiated"
	PaymentAttemptStatusSucceeded = "succeeded"
	PaymentAttemptStatusFailed    = "failed"
	PaymentAttemptStatusExpired   = "expired"
)

// PaymentAttempt records a checkout session from initiation until the webhook
// confirms the outcome. The attempt id travels through checkout metadata.
type PaymentAttempt struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	PublicID           string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"public_id"`
	OrganizationID     uint       `gorm:"not null;index" json:"organization_id"`
	Kind               string     `gorm:"type:varchar(20);not null" json:"kind"`
	CreditPackageID    *uint      `gorm:"index" json:"credit_package_id,omitempty"`
	SubscriptionPlanID *uint      `gorm:"index" json:"subscription_plan_id,omitempty"`
	BillingCycle       string     `gorm:"type:varchar(10)" json:"billing_cycle,omitempty"`
	CheckoutSessionID  string     `gorm:"type:varchar(191);index" json:"checkout_session_id"`
	Status             string     `gorm:"type:varchar(20);not null;default:'initiated';index" json:"status"`
	FailureReason      string     `gorm:"type:text" json:"failure_reason,omitempty"`
	CompletedAt        *time.Time `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
