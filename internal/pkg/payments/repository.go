package payments

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
)

// PurchaseRecord carries everything needed to durably record one completed
// checkout: the transaction row, the credit grant and the attempt update are
// written in a single storage transaction.
type PurchaseRecord struct {
	OrganizationID         uint
	CreditPackage          *models.CreditPackage
	PaymentAttemptPublicID string
	CheckoutSessionID      string
	AmountCents            int64
	Currency               string
}

// Repository provides the DB operations used by the payment event processor.
type Repository interface {
	CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error
	SetAttemptSession(ctx context.Context, attemptID uint, sessionID string) error
	MarkAttemptFailed(ctx context.Context, sessionID, status, reason string) error
	FindCreditPackage(ctx context.Context, id uint) (*models.CreditPackage, error)
	FindTransaction(ctx context.Context, id uint) (*models.PaymentTransaction, error)
	FindTransactionBySession(ctx context.Context, sessionID string) (*models.PaymentTransaction, error)
	RecordPurchase(ctx context.Context, rec PurchaseRecord) (bool, *models.PaymentTransaction, error)
	BeginRefund(ctx context.Context, txID uint) (*models.PaymentTransaction, error)
	AbortRefund(ctx context.Context, txID uint) error
	RecordRefund(ctx context.Context, txID uint, reason, providerRefundID string) error
	CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(ctx context.Context, id uint, processingErr error) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a payments repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) CreateAttempt(ctx context.Context, attempt *models.PaymentAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *gormRepository) SetAttemptSession(ctx context.Context, attemptID uint, sessionID string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentAttempt{}).
		Where("id = ?", attemptID).
		Update("checkout_session_id", sessionID).Error
}

func (r *gormRepository) MarkAttemptFailed(ctx context.Context, sessionID, status, reason string) error {
	return r.db.WithContext(ctx).Model(&models.PaymentAttempt{}).
		Where("checkout_session_id = ?", sessionID).
		Updates(map[string]interface{}{
			"status":         status,
			"failure_reason": reason,
		}).Error
}

func (r *gormRepository) FindCreditPackage(ctx context.Context, id uint) (*models.CreditPackage, error) {
	return models.FindActiveCreditPackage(r.db.WithContext(ctx), id)
}

func (r *gormRepository) FindTransaction(ctx context.Context, id uint) (*models.PaymentTransaction, error) {
	var ptx models.PaymentTransaction
	if err := r.db.WithContext(ctx).First(&ptx, id).Error; err != nil {
		return nil, err
	}
	return &ptx, nil
}

func (r *gormRepository) FindTransactionBySession(ctx context.Context, sessionID string) (*models.PaymentTransaction, error) {
	var ptx models.PaymentTransaction
	if err := r.db.WithContext(ctx).Where("checkout_session_id = ?", sessionID).First(&ptx).Error; err != nil {
		return nil, err
	}
	return &ptx, nil
}

// RecordPurchase inserts the PaymentTransaction, grants the credits and marks
// the attempt succeeded in one transaction. The conditional insert on the
// unique checkout session id makes redelivered webhooks a no-op: created is
// false and nothing else is written.
func (r *gormRepository) RecordPurchase(ctx context.Context, rec PurchaseRecord) (bool, *models.PaymentTransaction, error) {
	created := false
	var stored models.PaymentTransaction

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var attemptID uint
		var attempt models.PaymentAttempt
		err := tx.Where("public_id = ?", rec.PaymentAttemptPublicID).First(&attempt).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		attemptID = attempt.ID

		ptx := models.PaymentTransaction{
			OrganizationID:    rec.OrganizationID,
			PaymentAttemptID:  attemptID,
			CreditPackageID:   rec.CreditPackage.ID,
			CheckoutSessionID: rec.CheckoutSessionID,
			AmountCents:       rec.AmountCents,
			Currency:          rec.Currency,
			Pool:              rec.CreditPackage.Pool,
			CreditsAdded:      rec.CreditPackage.CreditAmount,
			Status:            models.PaymentTxStatusSucceeded,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "checkout_session_id"}},
			DoNothing: true,
		}).Create(&ptx)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Duplicate delivery: load the existing row, change nothing.
			return tx.Where("checkout_session_id = ?", rec.CheckoutSessionID).First(&stored).Error
		}
		created = true
		stored = ptx

		if _, err := ledger.ApplyGrant(tx,
			rec.OrganizationID,
			rec.CreditPackage.Pool,
			rec.CreditPackage.CreditAmount,
			models.CreditTxTypePurchase,
			"credit package purchase: "+rec.CreditPackage.Name,
			rec.CheckoutSessionID,
		); err != nil {
			return err
		}

		if attemptID != 0 {
			now := time.Now()
			return tx.Model(&models.PaymentAttempt{}).
				Where("id = ?", attemptID).
				Updates(map[string]interface{}{
					"status":              models.PaymentAttemptStatusSucceeded,
					"checkout_session_id": rec.CheckoutSessionID,
					"completed_at":        &now,
				}).Error
		}
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// BeginRefund claims the transaction for refunding with a conditional update
// before any provider call is made. Exactly one of two concurrent refund
// requests wins the claim; the loser is rejected here without ever reaching
// the provider.
func (r *gormRepository) BeginRefund(ctx context.Context, txID uint) (*models.PaymentTransaction, error) {
	res := r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ? AND refunded_amount = 0", txID, models.PaymentTxStatusSucceeded).
		Update("status", models.PaymentTxStatusRefunding)
	if res.Error != nil {
		return nil, res.Error
	}

	var ptx models.PaymentTransaction
	if err := r.db.WithContext(ctx).First(&ptx, txID).Error; err != nil {
		return nil, err
	}
	if res.RowsAffected == 0 {
		if ptx.Status == models.PaymentTxStatusRefunded || ptx.RefundedAmount != 0 {
			return nil, ErrAlreadyRefunded
		}
		return nil, ErrNotRefundable
	}
	return &ptx, nil
}

// AbortRefund releases a refund claim so the transaction is refundable again.
func (r *gormRepository) AbortRefund(ctx context.Context, txID uint) error {
	return r.db.WithContext(ctx).Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", txID, models.PaymentTxStatusRefunding).
		Update("status", models.PaymentTxStatusSucceeded).Error
}

// RecordRefund flips a claimed transaction to refunded and removes the
// originally granted credits. A failed deduction rolls the whole refund
// record back.
func (r *gormRepository) RecordRefund(ctx context.Context, txID uint, reason, providerRefundID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ptx models.PaymentTransaction
		if err := tx.First(&ptx, txID).Error; err != nil {
			return err
		}

		now := time.Now()
		res := tx.Model(&models.PaymentTransaction{}).
			Where("id = ? AND status = ? AND refunded_amount = 0", txID, models.PaymentTxStatusRefunding).
			Updates(map[string]interface{}{
				"status":             models.PaymentTxStatusRefunded,
				"refunded_amount":    ptx.CreditsAdded,
				"refund_reason":      reason,
				"provider_refund_id": providerRefundID,
				"refunded_at":        &now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			if ptx.Status == models.PaymentTxStatusRefunded || ptx.RefundedAmount != 0 {
				return ErrAlreadyRefunded
			}
			return ErrNotRefundable
		}

		_, err := ledger.ApplyDeduction(tx,
			ptx.OrganizationID,
			ptx.Pool,
			ptx.CreditsAdded,
			models.CreditTxTypeRefund,
			"refund of payment transaction",
			ptx.CheckoutSessionID,
		)
		return err
	})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(ctx context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", event.Provider, event.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(ctx context.Context, id uint, processingErr error) error {
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": errMsg,
		}).Error
}
