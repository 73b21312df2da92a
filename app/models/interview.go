package models

import "time"

const (
	InterviewStatusScheduled = "scheduled"
	InterviewStatusCanceled  = "canceled"
)

// Interview is the entity behind the credit-guarded scheduling operation.
type Interview struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PublicID       string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"public_id"`
	OrganizationID uint      `gorm:"not null;index" json:"organization_id"`
	CandidateName  string    `gorm:"type:varchar(150);not null" json:"candidate_name"`
	ScheduledAt    time.Time `gorm:"not null" json:"scheduled_at"`
	Status         string    `gorm:"type:varchar(20);not null;default:'scheduled';index" json:"status"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
