package ledger

import (
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hirewireapp/hirewire/app/models"
)

// ApplyDeduction performs the atomic conditional decrement and appends the
// matching ledger entry. It must run inside a transaction owned by the
// caller; the decrement is a single conditional UPDATE so two concurrent
// deductions can never drive a balance below zero.
func ApplyDeduction(tx *gorm.DB, orgID uint, pool string, amount int64, txType, description, relatedID string) (*models.CreditTransaction, error) {
	res := tx.Model(&models.CreditBalance{}).
		Where("organization_id = ? AND pool = ? AND amount >= ?", orgID, pool, amount).
		UpdateColumn("amount", gorm.Expr("amount - ?", amount))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		available, err := currentAmount(tx, orgID, pool)
		if err != nil {
			return nil, err
		}
		return nil, &InsufficientCreditsError{Pool: pool, Required: amount, Available: available}
	}

	balanceAfter, err := currentAmount(tx, orgID, pool)
	if err != nil {
		return nil, err
	}

	entry := &models.CreditTransaction{
		OrganizationID: orgID,
		Pool:           pool,
		Amount:         -amount,
		BalanceAfter:   balanceAfter,
		Type:           txType,
		RelatedID:      relatedID,
		Description:    description,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

// ApplyGrant increments (or creates) the balance row and appends the matching
// ledger entry. Grants have no upper bound. Like ApplyDeduction it runs inside
// the caller's transaction, so payment and subscription repositories can make
// their idempotency markers atomic with the grant itself.
func ApplyGrant(tx *gorm.DB, orgID uint, pool string, amount int64, txType, description, relatedID string) (*models.CreditTransaction, error) {
	bal := &models.CreditBalance{OrganizationID: orgID, Pool: pool, Amount: amount}
	err := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "organization_id"},
			{Name: "pool"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"amount": gorm.Expr("amount + VALUES(amount)"),
		}),
	}).Create(bal).Error
	if err != nil {
		return nil, err
	}

	balanceAfter, err := currentAmount(tx, orgID, pool)
	if err != nil {
		return nil, err
	}

	entry := &models.CreditTransaction{
		OrganizationID: orgID,
		Pool:           pool,
		Amount:         amount,
		BalanceAfter:   balanceAfter,
		Type:           txType,
		RelatedID:      relatedID,
		Description:    description,
	}
	if err := tx.Create(entry).Error; err != nil {
		return nil, err
	}
	return entry, nil
}

func currentAmount(tx *gorm.DB, orgID uint, pool string) (int64, error) {
	var bal models.CreditBalance
	err := tx.Where("organization_id = ? AND pool = ?", orgID, pool).First(&bal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return bal.Amount, nil
}
