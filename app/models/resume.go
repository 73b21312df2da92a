package models

import "time"

const (
	ResumeStatusPending    = "pending"
	ResumeStatusProcessing = "processing"
	ResumeStatusProcessed  = "processed"
	ResumeStatusFailed     = "failed"
)

// Resume is the entity behind the credit-guarded processing operation. The
// parsing/matching heuristics themselves live outside this service.
type Resume struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	PublicID       string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"public_id"`
	OrganizationID uint       `gorm:"not null;index" json:"organization_id"`
	FileName       string     `gorm:"type:varchar(255);not null" json:"file_name"`
	CandidateName  string     `gorm:"type:varchar(150)" json:"candidate_name,omitempty"`
	Status         string     `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	FailureReason  string     `gorm:"type:text" json:"failure_reason,omitempty"`
	ProcessedAt    *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
