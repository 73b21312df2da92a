package ledger

import (
	"context"

	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
)

// MutationParams describes one balance mutation (grant or deduction).
type MutationParams struct {
	OrganizationID uint
	Pool           string
	Amount         int64
	Type           string
	Description    string
	RelatedID      string
}

// UsageStats aggregates ledger activity for one organization.
type UsageStats struct {
	TotalGranted    int64            `json:"total_granted"`
	TotalDeducted   int64            `json:"total_deducted"`
	DeductionCounts map[string]int64 `json:"deduction_counts"`
}

// Repository provides the durable operations used by the ledger service.
type Repository interface {
	GetBalances(ctx context.Context, orgID uint) (map[string]int64, error)
	Deduct(ctx context.Context, p MutationParams) (*models.CreditTransaction, error)
	Add(ctx context.Context, p MutationParams) (*models.CreditTransaction, error)
	ListTransactions(ctx context.Context, orgID uint, limit int) ([]models.CreditTransaction, error)
	UsageStats(ctx context.Context, orgID uint) (*UsageStats, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a ledger repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetBalances(ctx context.Context, orgID uint) (map[string]int64, error) {
	var rows []models.CreditBalance
	if err := r.db.WithContext(ctx).Where("organization_id = ?", orgID).Find(&rows).Error; err != nil {
		return nil, err
	}
	balances := map[string]int64{
		models.PoolCVProcessing: 0,
		models.PoolInterview:    0,
	}
	for _, row := range rows {
		balances[row.Pool] = row.Amount
	}
	return balances, nil
}

func (r *gormRepository) Deduct(ctx context.Context, p MutationParams) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = ApplyDeduction(tx, p.OrganizationID, p.Pool, p.Amount, p.Type, p.Description, p.RelatedID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *gormRepository) Add(ctx context.Context, p MutationParams) (*models.CreditTransaction, error) {
	var entry *models.CreditTransaction
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var txErr error
		entry, txErr = ApplyGrant(tx, p.OrganizationID, p.Pool, p.Amount, p.Type, p.Description, p.RelatedID)
		return txErr
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

func (r *gormRepository) ListTransactions(ctx context.Context, orgID uint, limit int) ([]models.CreditTransaction, error) {
	var entries []models.CreditTransaction
	err := r.db.WithContext(ctx).
		Where("organization_id = ?", orgID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

func (r *gormRepository) UsageStats(ctx context.Context, orgID uint) (*UsageStats, error) {
	stats := &UsageStats{DeductionCounts: make(map[string]int64)}

	type sumRow struct {
		Granted  int64
		Deducted int64
	}
	var sums sumRow
	err := r.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Select("COALESCE(SUM(CASE WHEN amount > 0 THEN amount ELSE 0 END), 0) AS granted, COALESCE(SUM(CASE WHEN amount < 0 THEN -amount ELSE 0 END), 0) AS deducted").
		Where("organization_id = ?", orgID).
		Scan(&sums).Error
	if err != nil {
		return nil, err
	}
	stats.TotalGranted = sums.Granted
	stats.TotalDeducted = sums.Deducted

	type countRow struct {
		Type  string
		Count int64
	}
	var counts []countRow
	err = r.db.WithContext(ctx).Model(&models.CreditTransaction{}).
		Select("type, COUNT(*) AS count").
		Where("organization_id = ? AND amount < 0", orgID).
		Group("type").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	for _, row := range counts {
		stats.DeductionCounts[row.Type] = row.Count
	}
	return stats, nil
}
