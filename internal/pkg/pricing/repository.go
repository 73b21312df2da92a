package pricing

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
)

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a pricing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindActive(ctx context.Context, actionType string) (*models.CreditPricing, error) {
	var row models.CreditPricing
	err := r.db.WithContext(ctx).
		Where("action_type = ? AND active = ?", actionType, true).
		Order("updated_at DESC").
		First(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Upsert keeps at most one active row per action type: any currently active
// row for the action type is updated in place, otherwise a new row is
// inserted. Done in one transaction so concurrent admin updates cannot leave
// two active rows.
func (r *gormRepository) Upsert(ctx context.Context, row *models.CreditPricing) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.CreditPricing
		err := tx.Where("action_type = ? AND active = ?", row.ActionType, true).First(&existing).Error
		if err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			return tx.Create(row).Error
		}

		updates := map[string]interface{}{
			"pool":        row.Pool,
			"cost":        row.Cost,
			"description": row.Description,
			"active":      row.Active,
		}
		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		row.ID = existing.ID
		return nil
	})
}
