package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeResumeProcessing JobType = "resume_processing"
	JobTypeLedgerReconcile  JobType = "ledger_reconcile"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// ResumeProcessingJobPayload contains the payload for resume processing jobs.
// The credit authorization happened when the job was enqueued; the worker
// only commits the charge after the work succeeds.
type ResumeProcessingJobPayload struct {
	ResumeID       uint   `json:"resume_id"`
	ResumePublicID string `json:"resume_public_id"`
	OrganizationID uint   `json:"organization_id"`
	ActionType     string `json:"action_type"`
	AuthorizedPool string `json:"authorized_pool"`
	AuthorizedCost int64  `json:"authorized_cost"`
}

// ToMap converts the payload to a map for storage
func (p ResumeProcessingJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"resume_id":        p.ResumeID,
		"resume_public_id": p.ResumePublicID,
		"organization_id":  p.OrganizationID,
		"action_type":      p.ActionType,
		"authorized_pool":  p.AuthorizedPool,
		"authorized_cost":  p.AuthorizedCost,
	}
}

// FromMap creates a payload from a map
func ResumeProcessingJobPayloadFromMap(data map[string]interface{}) (*ResumeProcessingJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload ResumeProcessingJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// LedgerReconcileJobPayload contains the payload for ledger reconciliation
// sweeps. OrganizationID 0 means all organizations.
type LedgerReconcileJobPayload struct {
	OrganizationID uint `json:"organization_id"`
}

// ToMap converts the payload to a map for storage
func (p LedgerReconcileJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"organization_id": p.OrganizationID,
	}
}

// FromMap creates a payload from a map
func LedgerReconcileJobPayloadFromMap(data map[string]interface{}) (*LedgerReconcileJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload LedgerReconcileJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
