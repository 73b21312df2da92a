package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/internal/pkg/archive"
)

// ReconcileResult is one balance row checked against the transaction log.
type ReconcileResult struct {
	OrganizationID uint   `json:"organization_id"`
	Pool           string `json:"pool"`
	Balance        int64  `json:"balance"`
	EntrySum       int64  `json:"entry_sum"`
	Drift          int64  `json:"drift"`
}

// ReconcileReport is the archived output of one reconciliation sweep.
type ReconcileReport struct {
	GeneratedAt  time.Time         `json:"generated_at"`
	RowsChecked  int               `json:"rows_checked"`
	DriftedRows  []ReconcileResult `json:"drifted_rows"`
	Organization uint              `json:"organization_id,omitempty"`
}

// ReconcileProcessor verifies the ledger invariant that every balance equals
// the sum of its transaction entries. Drift can only mean a bug or manual DB
// surgery; it is reported, never auto-corrected.
type ReconcileProcessor struct {
	db       *gorm.DB
	uploader archive.Uploader
}

// NewReconcileProcessor creates a reconcile processor. uploader may be nil
// when report archiving is disabled.
func NewReconcileProcessor(db *gorm.DB, uploader archive.Uploader) *ReconcileProcessor {
	return &ReconcileProcessor{db: db, uploader: uploader}
}

// Handle runs one reconciliation sweep.
func (p *ReconcileProcessor) Handle(ctx context.Context, job *Job) error {
	payload, err := LedgerReconcileJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid reconcile payload: %w", err)
	}

	results, err := p.sweep(ctx, payload.OrganizationID)
	if err != nil {
		return err
	}

	report := ReconcileReport{
		GeneratedAt:  time.Now().UTC(),
		RowsChecked:  len(results),
		Organization: payload.OrganizationID,
	}
	for _, r := range results {
		if r.Drift != 0 {
			report.DriftedRows = append(report.DriftedRows, r)
			log.Errorf("[Reconcile] Balance drift org=%d pool=%s balance=%d entry_sum=%d drift=%d",
				r.OrganizationID, r.Pool, r.Balance, r.EntrySum, r.Drift)
		}
	}

	if len(report.DriftedRows) == 0 {
		log.Infof("[Reconcile] %d balance rows checked, no drift", report.RowsChecked)
	}

	if p.uploader != nil {
		body, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal reconcile report: %w", err)
		}
		if _, err := p.uploader.UploadReport(ctx, "ledger-reconcile", body); err != nil {
			// Archiving is best-effort; the drift is already in the logs.
			log.Errorf("[Reconcile] Failed to archive report: %v", err)
		}
	}

	if len(report.DriftedRows) > 0 {
		return fmt.Errorf("ledger drift detected in %d balance rows", len(report.DriftedRows))
	}
	return nil
}

// sweep compares each credit balance with the sum of its ledger entries.
// orgID 0 checks all organizations.
func (p *ReconcileProcessor) sweep(ctx context.Context, orgID uint) ([]ReconcileResult, error) {
	query := p.db.WithContext(ctx).
		Table("credit_balances AS b").
		Select("b.organization_id, b.pool, b.amount AS balance, COALESCE(SUM(t.amount), 0) AS entry_sum").
		Joins("LEFT JOIN credit_transactions t ON t.organization_id = b.organization_id AND t.pool = b.pool").
		Group("b.organization_id, b.pool, b.amount")
	if orgID != 0 {
		query = query.Where("b.organization_id = ?", orgID)
	}

	var rows []struct {
		OrganizationID uint
		Pool           string
		Balance        int64
		EntrySum       int64
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("reconcile query failed: %w", err)
	}

	results := make([]ReconcileResult, 0, len(rows))
	for _, row := range rows {
		results = append(results, ReconcileResult{
			OrganizationID: row.OrganizationID,
			Pool:           row.Pool,
			Balance:        row.Balance,
			EntrySum:       row.EntrySum,
			Drift:          row.Balance - row.EntrySum,
		})
	}
	return results, nil
}
