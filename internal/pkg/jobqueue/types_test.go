package jobqueue

import (
	"testing"
	"time"

	"github.com/hirewireapp/hirewire/app/models"
)

func TestJobRetryLifecycle(t *testing.T) {
	job := &Job{
		ID:         "test-job",
		Type:       JobTypeResumeProcessing,
		Status:     JobStatusPending,
		MaxRetries: 2,
		CreatedAt:  time.Now(),
	}

	job.MarkAsProcessing()
	if job.Status != JobStatusProcessing || job.ProcessedAt == nil {
		t.Fatalf("unexpected state after MarkAsProcessing: %+v", job)
	}

	job.MarkAsFailed("boom")
	if !job.IsRetryable() {
		t.Fatal("first failure should be retryable")
	}
	job.MarkAsRetrying()
	if job.Status != JobStatusRetrying {
		t.Fatalf("expected retrying, got %s", job.Status)
	}

	job.MarkAsFailed("boom again")
	if job.IsRetryable() {
		t.Fatalf("expected retries exhausted at count %d/%d", job.RetryCount, job.MaxRetries)
	}

	job.MarkAsCompleted()
	if job.Status != JobStatusCompleted || job.CompletedAt == nil || job.ErrorMsg != "" {
		t.Fatalf("unexpected state after MarkAsCompleted: %+v", job)
	}
}

func TestResumeProcessingPayloadCarriesAuthorization(t *testing.T) {
	original := ResumeProcessingJobPayload{
		ResumeID:       42,
		ResumePublicID: "res-42",
		OrganizationID: 7,
		ActionType:     models.ActionResumeProcessing,
		AuthorizedPool: models.PoolCVProcessing,
		AuthorizedCost: 2,
	}

	restored, err := ResumeProcessingJobPayloadFromMap(original.ToMap())
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if *restored != original {
		t.Fatalf("payload changed through map round trip:\n  got  %+v\n  want %+v", *restored, original)
	}
}

func TestLedgerReconcilePayloadDefaultsToAllOrgs(t *testing.T) {
	restored, err := LedgerReconcileJobPayloadFromMap(LedgerReconcileJobPayload{}.ToMap())
	if err != nil {
		t.Fatalf("FromMap: %v", err)
	}
	if restored.OrganizationID != 0 {
		t.Fatalf("expected 0 (all organizations), got %d", restored.OrganizationID)
	}
}
