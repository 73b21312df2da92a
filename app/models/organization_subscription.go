package models

import "time"

const (
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// OrganizationSubscription mirrors the payment processor's subscription state
// for one organization. Transitions are driven exclusively by verified
// webhook events; at most one non-canceled subscription exists per
// organization.
type OrganizationSubscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	OrganizationID         uint       `gorm:"not null;index:idx_org_subscriptions_org_status,priority:1" json:"organization_id"`
	SubscriptionPlanID     uint       `gorm:"not null;index" json:"subscription_plan_id"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"provider_subscription_id"`
	BillingCycle           string     `gorm:"type:varchar(10);not null;default:'monthly'" json:"billing_cycle"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'active';index:idx_org_subscriptions_org_status,priority:2" json:"status"`
	CurrentPeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd       *time.Time `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	CancelAtPeriodEnd      bool       `gorm:"default:false" json:"cancel_at_period_end"`
	CanceledAt             *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	RawPayloadJSON         string     `gorm:"type:longtext" json:"raw_payload_json,omitempty"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
