package subscription

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
)

// Repository provides the DB operations used by the lifecycle manager.
type Repository interface {
	FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.OrganizationSubscription, error)
	CreateIfNotExists(ctx context.Context, sub *models.OrganizationSubscription) (bool, *models.OrganizationSubscription, error)
	Save(ctx context.Context, sub *models.OrganizationSubscription) error
	FindPlan(ctx context.Context, id uint) (*models.SubscriptionPlan, error)
	AllocateInvoice(ctx context.Context, sub *models.OrganizationSubscription, plan *models.SubscriptionPlan, invoice *models.SubscriptionInvoice) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a subscription repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindByProviderID(ctx context.Context, providerSubscriptionID string) (*models.OrganizationSubscription, error) {
	var sub models.OrganizationSubscription
	if err := r.db.WithContext(ctx).
		Where("provider_subscription_id = ?", providerSubscriptionID).
		First(&sub).Error; err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateIfNotExists inserts the subscription unless one with the same
// provider subscription id already exists, in which case the stored row is
// returned unchanged. This makes redelivered creation events a no-op.
func (r *gormRepository) CreateIfNotExists(ctx context.Context, sub *models.OrganizationSubscription) (bool, *models.OrganizationSubscription, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_subscription_id"}},
		DoNothing: true,
	}).Create(sub)
	if tx.Error != nil {
		return false, nil, tx.Error
	}
	created := tx.RowsAffected > 0

	stored, err := r.FindByProviderID(ctx, sub.ProviderSubscriptionID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *gormRepository) Save(ctx context.Context, sub *models.OrganizationSubscription) error {
	return r.db.WithContext(ctx).Save(sub).Error
}

func (r *gormRepository) FindPlan(ctx context.Context, id uint) (*models.SubscriptionPlan, error) {
	var plan models.SubscriptionPlan
	if err := r.db.WithContext(ctx).First(&plan, id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

// AllocateInvoice writes the invoice marker and grants the plan's per-pool
// allotments in one transaction. The conditional insert on the composite
// unique key (subscription, external invoice id) enforces allocate-once: a
// redelivered invoice.paid event inserts nothing and grants nothing.
func (r *gormRepository) AllocateInvoice(ctx context.Context, sub *models.OrganizationSubscription, plan *models.SubscriptionPlan, invoice *models.SubscriptionInvoice) (bool, error) {
	allocated := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "organization_subscription_id"},
				{Name: "external_invoice_id"},
			},
			DoNothing: true,
		}).Create(invoice)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		allocated = true

		for pool, amount := range plan.PoolAllotments() {
			if _, err := ledger.ApplyGrant(tx,
				sub.OrganizationID,
				pool,
				amount,
				models.CreditTxTypeSubscription,
				"monthly allocation for plan "+plan.Code,
				invoice.ExternalInvoiceID,
			); err != nil {
				return err
			}
		}
		return nil
	})
	return allocated, err
}
