package payments

import "errors"

var (
	// ErrAlreadyRefunded rejects a second refund of the same transaction.
	ErrAlreadyRefunded = errors.New("payment transaction is already refunded")

	// ErrNotRefundable rejects refunds of transactions that never succeeded.
	ErrNotRefundable = errors.New("payment transaction is not refundable")

	// ErrRefundCreditsSpent is returned when the organization has already
	// spent the granted credits: the balance deduction would go negative, so
	// the refund is recorded as requiring manual reconciliation instead.
	ErrRefundCreditsSpent = errors.New("granted credits already spent; manual reconciliation required")
)
