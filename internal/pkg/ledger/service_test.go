package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/hirewireapp/hirewire/app/models"
)

func newTestLedger() *Ledger {
	return New(NewMemoryRepository())
}

func grant(t *testing.T, l *Ledger, orgID uint, pool string, amount int64) {
	t.Helper()
	_, err := l.Add(context.Background(), MutationParams{
		OrganizationID: orgID,
		Pool:           pool,
		Amount:         amount,
		Type:           models.CreditTxTypePurchase,
		Description:    "test grant",
	})
	if err != nil {
		t.Fatalf("unexpected grant error: %v", err)
	}
}

func TestDeductInsufficientLeavesStateUnchanged(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	grant(t, l, 1, models.PoolCVProcessing, 10)

	_, err := l.Deduct(ctx, MutationParams{
		OrganizationID: 1,
		Pool:           models.PoolCVProcessing,
		Amount:         11,
		Type:           models.CreditTxTypeProcessing,
	})
	ice, ok := IsInsufficientCredits(err)
	if !ok {
		t.Fatalf("expected InsufficientCreditsError, got %v", err)
	}
	if ice.Required != 11 || ice.Available != 10 {
		t.Fatalf("unexpected required/available: %d/%d", ice.Required, ice.Available)
	}

	balances, err := l.GetBalance(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected balance error: %v", err)
	}
	if balances[models.PoolCVProcessing] != 10 {
		t.Fatalf("balance changed after failed deduct: %d", balances[models.PoolCVProcessing])
	}
	history, _ := l.History(ctx, 1, 10)
	if len(history) != 1 {
		t.Fatalf("expected only the grant entry, got %d entries", len(history))
	}
}

func TestConcurrentDeductsNeverOverdraw(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	grant(t, l, 1, models.PoolCVProcessing, 100)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Deduct(ctx, MutationParams{
				OrganizationID: 1,
				Pool:           models.PoolCVProcessing,
				Amount:         60,
				Type:           models.CreditTxTypeProcessing,
			})
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			if _, ok := IsInsufficientCredits(err); !ok {
				t.Fatalf("unexpected error kind: %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one InsufficientCredits, got %d failures", failures)
	}

	balances, _ := l.GetBalance(ctx, 1)
	if got := balances[models.PoolCVProcessing]; got != 40 {
		t.Fatalf("expected final balance 40, got %d", got)
	}
}

func TestLedgerEntriesSumToBalance(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	grant(t, l, 7, models.PoolInterview, 30)
	grant(t, l, 7, models.PoolInterview, 5)
	if _, err := l.Deduct(ctx, MutationParams{
		OrganizationID: 7,
		Pool:           models.PoolInterview,
		Amount:         12,
		Type:           models.CreditTxTypeProcessing,
	}); err != nil {
		t.Fatalf("unexpected deduct error: %v", err)
	}

	history, err := l.History(ctx, 7, 100)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	var sum int64
	for _, entry := range history {
		sum += entry.Amount
	}
	balances, _ := l.GetBalance(ctx, 7)
	if sum != balances[models.PoolInterview] {
		t.Fatalf("entry sum %d != balance %d", sum, balances[models.PoolInterview])
	}
	if balances[models.PoolInterview] != 23 {
		t.Fatalf("expected balance 23, got %d", balances[models.PoolInterview])
	}
}

func TestHistoryIsReverseChronological(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	grant(t, l, 2, models.PoolCVProcessing, 1)
	grant(t, l, 2, models.PoolCVProcessing, 2)
	grant(t, l, 2, models.PoolCVProcessing, 3)

	history, err := l.History(ctx, 2, 2)
	if err != nil {
		t.Fatalf("unexpected history error: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(history))
	}
	if history[0].Amount != 3 || history[1].Amount != 2 {
		t.Fatalf("expected newest-first ordering, got %d then %d", history[0].Amount, history[1].Amount)
	}
}

func TestUsageStatsAggregates(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()
	grant(t, l, 3, models.PoolCVProcessing, 50)
	for i := 0; i < 3; i++ {
		if _, err := l.Deduct(ctx, MutationParams{
			OrganizationID: 3,
			Pool:           models.PoolCVProcessing,
			Amount:         5,
			Type:           models.CreditTxTypeProcessing,
		}); err != nil {
			t.Fatalf("unexpected deduct error: %v", err)
		}
	}
	if _, err := l.Deduct(ctx, MutationParams{
		OrganizationID: 3,
		Pool:           models.PoolCVProcessing,
		Amount:         10,
		Type:           models.CreditTxTypeRefund,
	}); err != nil {
		t.Fatalf("unexpected deduct error: %v", err)
	}

	stats, err := l.UsageStats(ctx, 3)
	if err != nil {
		t.Fatalf("unexpected stats error: %v", err)
	}
	if stats.TotalGranted != 50 {
		t.Fatalf("expected 50 granted, got %d", stats.TotalGranted)
	}
	if stats.TotalDeducted != 25 {
		t.Fatalf("expected 25 deducted, got %d", stats.TotalDeducted)
	}
	if stats.DeductionCounts[models.CreditTxTypeProcessing] != 3 {
		t.Fatalf("expected 3 processing deductions, got %d", stats.DeductionCounts[models.CreditTxTypeProcessing])
	}
	if stats.DeductionCounts[models.CreditTxTypeRefund] != 1 {
		t.Fatalf("expected 1 refund deduction, got %d", stats.DeductionCounts[models.CreditTxTypeRefund])
	}
}

func TestValidationErrors(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	if _, err := l.Add(ctx, MutationParams{OrganizationID: 1, Pool: "nope", Amount: 5}); err != ErrUnknownPool {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
	if _, err := l.Deduct(ctx, MutationParams{OrganizationID: 1, Pool: models.PoolInterview, Amount: 0}); err != ErrInvalidAmount {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, _, err := l.CheckSufficient(ctx, 1, "nope", 1); err != ErrUnknownPool {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
}
