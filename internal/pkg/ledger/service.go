package ledger

import (
	"context"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
)

const defaultHistoryLimit = 50

// Ledger is the sole authority for credit balance truth. All balance
// mutations in the system go through it (directly, or through the apply
// primitives it shares with the payment and subscription repositories).
type Ledger struct {
	repo Repository
}

// New creates a ledger from an injected repository.
func New(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// NewFromDB creates a ledger from a GORM DB handle.
func NewFromDB(db *gorm.DB) *Ledger {
	return New(NewRepository(db))
}

// GetBalance returns a point-in-time read of all pools for the organization.
func (l *Ledger) GetBalance(ctx context.Context, orgID uint) (map[string]int64, error) {
	return l.repo.GetBalances(ctx, orgID)
}

// CheckSufficient is a read-only sufficiency check. It is not a reservation:
// a concurrent deduction may still win the race, which Deduct handles safely.
func (l *Ledger) CheckSufficient(ctx context.Context, orgID uint, pool string, amount int64) (bool, int64, error) {
	if !models.KnownPool(pool) {
		return false, 0, ErrUnknownPool
	}
	if amount <= 0 {
		return false, 0, ErrInvalidAmount
	}
	balances, err := l.repo.GetBalances(ctx, orgID)
	if err != nil {
		return false, 0, err
	}
	available := balances[pool]
	return available >= amount, available, nil
}

// Deduct removes amount credits from the pool and appends a negative ledger
// entry, all in one storage transaction. An InsufficientCreditsError is an
// expected outcome and leaves balance and ledger unchanged.
func (l *Ledger) Deduct(ctx context.Context, p MutationParams) (*models.CreditTransaction, error) {
	if !models.KnownPool(p.Pool) {
		return nil, ErrUnknownPool
	}
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, err := l.repo.Deduct(ctx, p)
	if err != nil {
		if _, ok := IsInsufficientCredits(err); !ok {
			log.Errorf("[Ledger] deduct failed org=%d pool=%s amount=%d type=%s: %v",
				p.OrganizationID, p.Pool, p.Amount, p.Type, err)
		}
		return nil, err
	}
	return entry, nil
}

// Add grants amount credits to the pool and appends a positive ledger entry.
// Grants always succeed; there is no upper bound on a balance.
func (l *Ledger) Add(ctx context.Context, p MutationParams) (*models.CreditTransaction, error) {
	if !models.KnownPool(p.Pool) {
		return nil, ErrUnknownPool
	}
	if p.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	entry, err := l.repo.Add(ctx, p)
	if err != nil {
		log.Errorf("[Ledger] add failed org=%d pool=%s amount=%d type=%s: %v",
			p.OrganizationID, p.Pool, p.Amount, p.Type, err)
		return nil, err
	}
	return entry, nil
}

// History returns ledger entries in reverse-chronological order.
func (l *Ledger) History(ctx context.Context, orgID uint, limit int) ([]models.CreditTransaction, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultHistoryLimit
	}
	return l.repo.ListTransactions(ctx, orgID, limit)
}

// UsageStats returns grant/deduction aggregates recomputed from the ledger.
func (l *Ledger) UsageStats(ctx context.Context, orgID uint) (*UsageStats, error) {
	return l.repo.UsageStats(ctx, orgID)
}
