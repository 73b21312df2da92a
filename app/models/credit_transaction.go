package models

import "time"

const (
	CreditTxTypeProcessing       = "processing"
	CreditTxTypeManualAdjustment = "manual_adjustment"
	CreditTxTypeSubscription     = "subscription_allocation"
	CreditTxTypePurchase         = "purchase"
	CreditTxTypeRefund           = "refund"
)

// CreditTransaction is an immutable, append-only ledger entry. Negative
// amounts are deductions, positive amounts are grants. The sum of all entries
// for (organization, pool) equals the pool's current balance.
type CreditTransaction struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;index:idx_credit_transactions_org_pool,priority:1" json:"organization_id"`
	Pool           string    `gorm:"type:varchar(32);not null;index:idx_credit_transactions_org_pool,priority:2" json:"pool"`
	Amount         int64     `gorm:"not null" json:"amount"`
	BalanceAfter   int64     `gorm:"not null" json:"balance_after"`
	Type           string    `gorm:"type:varchar(32);not null;index" json:"type"`
	RelatedID      string    `gorm:"type:varchar(64);index" json:"related_id,omitempty"`
	Description    string    `gorm:"type:text" json:"description"`
	CreatedAt      time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
