package models

import "time"

// SubscriptionInvoice marks a billing-period invoice whose credits have been
// allocated. The composite unique key on (subscription, external invoice id)
// enforces allocate-once per invoice even under redelivered webhooks.
type SubscriptionInvoice struct {
	ID                         uint       `gorm:"primaryKey" json:"id"`
	OrganizationSubscriptionID uint       `gorm:"not null;index:ux_subscription_invoices_sub_invoice,unique,priority:1" json:"organization_subscription_id"`
	ExternalInvoiceID          string     `gorm:"type:varchar(191);not null;index:ux_subscription_invoices_sub_invoice,unique,priority:2" json:"external_invoice_id"`
	AmountCents                int64      `gorm:"not null;default:0" json:"amount_cents"`
	CVCreditsAllocated         int64      `gorm:"not null;default:0" json:"cv_credits_allocated"`
	InterviewCreditsAllocated  int64      `gorm:"not null;default:0" json:"interview_credits_allocated"`
	PeriodStart                *time.Time `gorm:"type:timestamp;default:null" json:"period_start,omitempty"`
	PeriodEnd                  *time.Time `gorm:"type:timestamp;default:null" json:"period_end,omitempty"`
	CreatedAt                  time.Time  `gorm:"autoCreateTime" json:"created_at"`
}
