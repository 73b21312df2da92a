package ledger

import (
	"context"
	"sync"
	"time"

	"github.com/hirewireapp/hirewire/app/models"
)

type poolKey struct {
	orgID uint
	pool  string
}

// MemoryRepository is a mutex-guarded in-memory implementation of Repository.
// It mirrors the conditional-decrement semantics of the GORM repository and
// backs tests and local development without a MySQL instance.
type MemoryRepository struct {
	mu       sync.Mutex
	balances map[poolKey]int64
	entries  []models.CreditTransaction
	nextID   uint
}

// NewMemoryRepository creates an empty in-memory ledger repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		balances: make(map[poolKey]int64),
		nextID:   1,
	}
}

func (r *MemoryRepository) GetBalances(ctx context.Context, orgID uint) (map[string]int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	balances := map[string]int64{
		models.PoolCVProcessing: 0,
		models.PoolInterview:    0,
	}
	for key, amount := range r.balances {
		if key.orgID == orgID {
			balances[key.pool] = amount
		}
	}
	return balances, nil
}

func (r *MemoryRepository) Deduct(ctx context.Context, p MutationParams) (*models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := poolKey{orgID: p.OrganizationID, pool: p.Pool}
	available := r.balances[key]
	if available < p.Amount {
		return nil, &InsufficientCreditsError{Pool: p.Pool, Required: p.Amount, Available: available}
	}
	r.balances[key] = available - p.Amount
	return r.append(p, -p.Amount, r.balances[key]), nil
}

func (r *MemoryRepository) Add(ctx context.Context, p MutationParams) (*models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := poolKey{orgID: p.OrganizationID, pool: p.Pool}
	r.balances[key] += p.Amount
	return r.append(p, p.Amount, r.balances[key]), nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, orgID uint, limit int) ([]models.CreditTransaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]models.CreditTransaction, 0, limit)
	for i := len(r.entries) - 1; i >= 0 && len(entries) < limit; i-- {
		if r.entries[i].OrganizationID == orgID {
			entries = append(entries, r.entries[i])
		}
	}
	return entries, nil
}

func (r *MemoryRepository) UsageStats(ctx context.Context, orgID uint) (*UsageStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &UsageStats{DeductionCounts: make(map[string]int64)}
	for _, entry := range r.entries {
		if entry.OrganizationID != orgID {
			continue
		}
		if entry.Amount > 0 {
			stats.TotalGranted += entry.Amount
		} else {
			stats.TotalDeducted += -entry.Amount
			stats.DeductionCounts[entry.Type]++
		}
	}
	return stats, nil
}

// append records a ledger entry; callers hold the mutex.
func (r *MemoryRepository) append(p MutationParams, signedAmount, balanceAfter int64) *models.CreditTransaction {
	entry := models.CreditTransaction{
		ID:             r.nextID,
		OrganizationID: p.OrganizationID,
		Pool:           p.Pool,
		Amount:         signedAmount,
		BalanceAfter:   balanceAfter,
		Type:           p.Type,
		RelatedID:      p.RelatedID,
		Description:    p.Description,
		CreatedAt:      time.Now(),
	}
	r.nextID++
	r.entries = append(r.entries, entry)
	return &entry
}
