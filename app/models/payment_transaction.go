package models

import "time"

const (
	PaymentTxStatusSucceeded = "succeeded"
	PaymentTxStatusRefunding = "refunding"
	PaymentTxStatusRefunded  = "refunded"
)

// PaymentTransaction is created exactly once per successfully completed
// payment. The unique checkout session id is the idempotency key that makes
// duplicate webhook deliveries a no-op.
type PaymentTransaction struct {
	ID                uint       `gorm:"primaryKey" json:"id"`
	OrganizationID    uint       `gorm:"not null;index" json:"organization_id"`
	PaymentAttemptID  uint       `gorm:"index" json:"payment_attempt_id"`
	CreditPackageID   uint       `gorm:"index" json:"credit_package_id"`
	CheckoutSessionID string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"checkout_session_id"`
	AmountCents       int64      `gorm:"not null" json:"amount_cents"`
	Currency          string     `gorm:"type:varchar(3);not null;default:'usd'" json:"currency"`
	Pool              string     `gorm:"type:varchar(32);not null" json:"pool"`
	CreditsAdded      int64      `gorm:"not null" json:"credits_added"`
	Status            string     `gorm:"type:varchar(20);not null;default:'succeeded';index" json:"status"`
	RefundedAmount    int64      `gorm:"not null;default:0" json:"refunded_amount"`
	RefundReason      string     `gorm:"type:text" json:"refund_reason,omitempty"`
	ProviderRefundID  string     `gorm:"type:varchar(191)" json:"provider_refund_id,omitempty"`
	RefundedAt        *time.Time `gorm:"type:timestamp;default:null" json:"refunded_at,omitempty"`
	CreatedAt         time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
