package jobqueue

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/creditguard"
)

// ResumeProcessor runs the asynchronous half of resume processing. The
// credits were authorized when the job was enqueued; the charge is committed
// only after the processing work succeeds.
type ResumeProcessor struct {
	db    *gorm.DB
	guard *creditguard.Guard
}

// NewResumeProcessor creates a resume processor.
func NewResumeProcessor(db *gorm.DB, guard *creditguard.Guard) *ResumeProcessor {
	return &ResumeProcessor{db: db, guard: guard}
}

// Handle processes one resume processing job.
func (p *ResumeProcessor) Handle(ctx context.Context, job *Job) error {
	payload, err := ResumeProcessingJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid resume processing payload: %w", err)
	}

	var resume models.Resume
	if err := p.db.WithContext(ctx).First(&resume, payload.ResumeID).Error; err != nil {
		return fmt.Errorf("resume %d not found: %w", payload.ResumeID, err)
	}
	if resume.Status == models.ResumeStatusProcessed {
		// Redelivered job after a crash between completion and ack.
		log.Infof("[ResumeProcessor] Resume %s already processed, skipping", resume.PublicID)
		return nil
	}

	if err := p.db.WithContext(ctx).Model(&resume).
		Update("status", models.ResumeStatusProcessing).Error; err != nil {
		return err
	}

	if err := p.extractCandidate(ctx, &resume); err != nil {
		_ = p.db.WithContext(ctx).Model(&resume).Updates(map[string]interface{}{
			"status":         models.ResumeStatusFailed,
			"failure_reason": err.Error(),
		}).Error
		return fmt.Errorf("resume %s processing failed: %w", resume.PublicID, err)
	}

	now := time.Now()
	if err := p.db.WithContext(ctx).Model(&resume).Updates(map[string]interface{}{
		"status":         models.ResumeStatusProcessed,
		"candidate_name": resume.CandidateName,
		"processed_at":   &now,
		"failure_reason": "",
	}).Error; err != nil {
		return err
	}

	if payload.AuthorizedCost <= 0 {
		log.Warnf("[ResumeProcessor] Job %s carries no authorized cost, skipping charge", job.ID)
		return nil
	}
	auth := creditguard.Authorization{
		ActionType: payload.ActionType,
		Pool:       payload.AuthorizedPool,
		Cost:       payload.AuthorizedCost,
	}
	return p.guard.Commit(ctx, payload.OrganizationID, auth, resume.PublicID)
}

// extractCandidate derives the candidate name from the uploaded file name.
// The real parsing pipeline (text extraction, skill matching) runs in a
// separate service; this keeps the billing-relevant state machine intact.
func (p *ResumeProcessor) extractCandidate(_ context.Context, resume *models.Resume) error {
	if resume.FileName == "" {
		return fmt.Errorf("resume has no file name")
	}
	if resume.CandidateName != "" {
		return nil
	}

	base := resume.FileName
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	base = strings.NewReplacer("_", " ", "-", " ").Replace(base)
	resume.CandidateName = strings.TrimSpace(base)
	return nil
}
