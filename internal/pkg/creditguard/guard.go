package creditguard

import (
	"context"

	"github.com/gofiber/fiber/v2/log"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
	"github.com/hirewireapp/hirewire/internal/pkg/pricing"
)

// ChargeFailurePolicy decides what Commit does when the deduction fails after
// the guarded operation has already run. The default, LogAndContinue, encodes
// the business decision to never fail a completed user-visible operation over
// an accounting error, accepting a possible under-charge that is logged for
// manual reconciliation.
type ChargeFailurePolicy int

const (
	LogAndContinue ChargeFailurePolicy = iota
	FailOperation
)

// CostResolver supplies the credit cost of an action type.
type CostResolver interface {
	CostOf(ctx context.Context, actionType string) (pricing.Price, error)
}

// CreditSource is the slice of the ledger the guard needs.
type CreditSource interface {
	CheckSufficient(ctx context.Context, orgID uint, pool string, amount int64) (bool, int64, error)
	Deduct(ctx context.Context, p ledger.MutationParams) (*models.CreditTransaction, error)
}

// Authorization is the result of a successful Authorize, passed back to
// Commit once the guarded operation has completed.
type Authorization struct {
	ActionType string `json:"action_type"`
	Pool       string `json:"pool"`
	Cost       int64  `json:"cost"`
}

// Guard gates expensive operations behind a credit check. Authorize and
// Commit form a two-phase sequence with no automatic rollback of the work
// done between them; Authorize is a check, not a reservation.
type Guard struct {
	pricing CostResolver
	credits CreditSource
	policy  ChargeFailurePolicy
}

// New creates a guard. The zero policy is LogAndContinue.
func New(pricing CostResolver, credits CreditSource, policy ChargeFailurePolicy) *Guard {
	return &Guard{pricing: pricing, credits: credits, policy: policy}
}

// Authorize resolves the cost of actionType and checks the balance. On an
// insufficient balance it returns *ledger.InsufficientCreditsError carrying
// the required and currently available amounts.
func (g *Guard) Authorize(ctx context.Context, orgID uint, actionType string) (Authorization, error) {
	price, err := g.pricing.CostOf(ctx, actionType)
	if err != nil {
		return Authorization{}, err
	}

	sufficient, available, err := g.credits.CheckSufficient(ctx, orgID, price.Pool, price.Cost)
	if err != nil {
		return Authorization{}, err
	}
	if !sufficient {
		return Authorization{}, &ledger.InsufficientCreditsError{
			Pool:      price.Pool,
			Required:  price.Cost,
			Available: available,
		}
	}
	return Authorization{ActionType: actionType, Pool: price.Pool, Cost: price.Cost}, nil
}

// Commit charges the credits for a completed operation. An insufficient
// balance here means a concurrent request spent the credits between Authorize
// and Commit; together with infrastructure failures it is handled per the
// configured ChargeFailurePolicy.
func (g *Guard) Commit(ctx context.Context, orgID uint, auth Authorization, relatedID string) error {
	_, err := g.credits.Deduct(ctx, ledger.MutationParams{
		OrganizationID: orgID,
		Pool:           auth.Pool,
		Amount:         auth.Cost,
		Type:           models.CreditTxTypeProcessing,
		Description:    auth.ActionType,
		RelatedID:      relatedID,
	})
	if err == nil {
		return nil
	}

	if g.policy == FailOperation {
		return err
	}
	log.Errorf("[CreditGuard] charge failed after operation completed org=%d action=%s pool=%s cost=%d related=%s: %v",
		orgID, auth.ActionType, auth.Pool, auth.Cost, relatedID, err)
	return nil
}
