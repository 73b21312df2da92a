package models

import "time"

// Action types that consume credits.
const (
	ActionResumeProcessing    = "resume_processing"
	ActionInterviewScheduling = "interview_scheduling"
)

// CreditPricing maps an action type to its credit cost and target pool. At
// most one active row exists per action type, enforced by the pricing
// registry's update-or-insert.
type CreditPricing struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ActionType  string    `gorm:"type:varchar(64);not null;index" json:"action_type"`
	Pool        string    `gorm:"type:varchar(32);not null" json:"pool"`
	Cost        int64     `gorm:"not null;default:1" json:"cost"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
	Active      bool      `gorm:"not null;default:true;index" json:"active"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// DefaultPoolForAction returns the pool an action draws from when no pricing
// row is configured.
func DefaultPoolForAction(actionType string) string {
	switch actionType {
	case ActionInterviewScheduling:
		return PoolInterview
	default:
		return PoolCVProcessing
	}
}
