package subscription

import (
	"context"
	"strconv"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/payments"
)

type allocationRecord struct {
	OrganizationID uint
	Pool           string
	Amount         int64
	InvoiceID      string
}

// memorySubscriptionRepo mirrors the allocate-once and create-once semantics
// of the GORM repository.
type memorySubscriptionRepo struct {
	subs        map[string]*models.OrganizationSubscription
	plans       map[uint]*models.SubscriptionPlan
	invoices    map[string]bool
	allocations []allocationRecord
	nextID      uint
}

func newMemorySubscriptionRepo() *memorySubscriptionRepo {
	return &memorySubscriptionRepo{
		subs:     make(map[string]*models.OrganizationSubscription),
		plans:    make(map[uint]*models.SubscriptionPlan),
		invoices: make(map[string]bool),
	}
}

func (r *memorySubscriptionRepo) FindByProviderID(_ context.Context, providerID string) (*models.OrganizationSubscription, error) {
	sub, ok := r.subs[providerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return sub, nil
}

func (r *memorySubscriptionRepo) CreateIfNotExists(_ context.Context, sub *models.OrganizationSubscription) (bool, *models.OrganizationSubscription, error) {
	if existing, ok := r.subs[sub.ProviderSubscriptionID]; ok {
		return false, existing, nil
	}
	r.nextID++
	sub.ID = r.nextID
	r.subs[sub.ProviderSubscriptionID] = sub
	return true, sub, nil
}

func (r *memorySubscriptionRepo) Save(_ context.Context, sub *models.OrganizationSubscription) error {
	r.subs[sub.ProviderSubscriptionID] = sub
	return nil
}

func (r *memorySubscriptionRepo) FindPlan(_ context.Context, id uint) (*models.SubscriptionPlan, error) {
	plan, ok := r.plans[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return plan, nil
}

func (r *memorySubscriptionRepo) AllocateInvoice(_ context.Context, sub *models.OrganizationSubscription, plan *models.SubscriptionPlan, invoice *models.SubscriptionInvoice) (bool, error) {
	key := strconv.FormatUint(uint64(invoice.OrganizationSubscriptionID), 10) + "/" + invoice.ExternalInvoiceID
	if r.invoices[key] {
		return false, nil
	}
	r.invoices[key] = true
	for pool, amount := range plan.PoolAllotments() {
		r.allocations = append(r.allocations, allocationRecord{
			OrganizationID: sub.OrganizationID,
			Pool:           pool,
			Amount:         amount,
			InvoiceID:      invoice.ExternalInvoiceID,
		})
	}
	return true, nil
}

func growthPlan(repo *memorySubscriptionRepo) *models.SubscriptionPlan {
	plan := &models.SubscriptionPlan{
		ID:                      2,
		Code:                    "growth",
		Name:                    "Growth",
		MonthlyCVCredits:        200,
		MonthlyInterviewCredits: 50,
		Active:                  true,
	}
	repo.plans[plan.ID] = plan
	return plan
}

func subscriptionEnvelope(t *testing.T, eventType, subID, status string, extra string) *payments.Envelope {
	t.Helper()
	body := `{
		"id": "evt_` + subID + `_` + status + `",
		"type": "` + eventType + `",
		"data": {"object": {
			"id": "` + subID + `",
			"status": "` + status + `"` + extra + `
		}}
	}`
	env, err := payments.ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	return env
}

func invoiceEnvelope(t *testing.T, invoiceID, subID string, extra string) *payments.Envelope {
	t.Helper()
	body := `{
		"id": "evt_` + invoiceID + `",
		"type": "invoice.paid",
		"data": {"object": {
			"id": "` + invoiceID + `",
			"subscription": "` + subID + `",
			"amount_paid": 2900` + extra + `
		}}
	}`
	env, err := payments.ParseEnvelope([]byte(body))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	return env
}

const createMetadata = `,
			"metadata": {"organization_id": "7", "plan_id": "2"}`

func TestOnSubscriptionCreatedIsIdempotent(t *testing.T) {
	repo := newMemorySubscriptionRepo()
	growthPlan(repo)
	svc := NewService(repo)
	env := subscriptionEnvelope(t, payments.EventSubscriptionCreated, "sub_1", "active", createMetadata)

	for i := 0; i < 2; i++ {
		if err := svc.OnSubscriptionCreated(context.Background(), env); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if len(repo.subs) != 1 {
		t.Fatalf("expected one subscription record, got %d", len(repo.subs))
	}
	sub := repo.subs["sub_1"]
	if sub.Status != models.SubscriptionStatusActive || sub.OrganizationID != 7 {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
}

func TestOnSubscriptionCreatedTrialing(t *testing.T) {
	repo := newMemorySubscriptionRepo()
	svc := NewService(repo)

	trialEnd := time.Now().Add(14 * 24 * time.Hour).Unix()
	extra := `,
			"trial_end": ` + strconv.FormatInt(trialEnd, 10) + createMetadata
	env := subscriptionEnvelope(t, payments.EventSubscriptionCreated, "sub_trial", "trialing", extra)

	if err := svc.OnSubscriptionCreated(context.Background(), env); err != nil {
		t.Fatalf("OnSubscriptionCreated: %v", err)
	}
	if repo.subs["sub_trial"].Status != models.SubscriptionStatusTrialing {
		t.Fatalf("expected trialing, got %q", repo.subs["sub_trial"].Status)
	}
}

func TestInvoicesAllocateOncePerInvoice(t *testing.T) {
	repo := newMemorySubscriptionRepo()
	growthPlan(repo)
	svc := NewService(repo)
	ctx := context.Background()

	created := subscriptionEnvelope(t, payments.EventSubscriptionCreated, "sub_1", "active", createMetadata)
	if err := svc.OnSubscriptionCreated(ctx, created); err != nil {
		t.Fatalf("OnSubscriptionCreated: %v", err)
	}

	// Three distinct invoices, each delivered twice.
	for _, invoiceID := range []string{"in_1", "in_2", "in_3"} {
		env := invoiceEnvelope(t, invoiceID, "sub_1", "")
		for i := 0; i < 2; i++ {
			if err := svc.OnInvoicePaid(ctx, env); err != nil {
				t.Fatalf("invoice %s delivery %d: %v", invoiceID, i+1, err)
			}
		}
	}

	var cv, interview int64
	for _, a := range repo.allocations {
		switch a.Pool {
		case models.PoolCVProcessing:
			cv += a.Amount
		case models.PoolInterview:
			interview += a.Amount
		}
	}
	if cv != 600 || interview != 150 {
		t.Fatalf("expected 3x plan allotments (600 cv, 150 interview), got %d and %d", cv, interview)
	}
}

func TestInvoiceBeforeCreationLazilyCreates(t *testing.T) {
	repo := newMemorySubscriptionRepo()
	growthPlan(repo)
	svc := NewService(repo)
	ctx := context.Background()

	env := invoiceEnvelope(t, "in_early", "sub_race", createMetadata)
	if err := svc.OnInvoicePaid(ctx, env); err != nil {
		t.Fatalf("OnInvoicePaid: %v", err)
	}

	sub, ok := repo.subs["sub_race"]
	if !ok {
		t.Fatal("expected lazily created subscription")
	}
	if sub.Status != models.SubscriptionStatusActive || sub.OrganizationID != 7 {
		t.Fatalf("unexpected subscription: %+v", sub)
	}
	if len(repo.allocations) != 2 {
		t.Fatalf("expected both pools allocated, got %+v", repo.allocations)
	}

	// The late creation event must not create a second record.
	created := subscriptionEnvelope(t, payments.EventSubscriptionCreated, "sub_race", "active", createMetadata)
	if err := svc.OnSubscriptionCreated(ctx, created); err != nil {
		t.Fatalf("OnSubscriptionCreated: %v", err)
	}
	if len(repo.subs) != 1 {
		t.Fatalf("expected one subscription record, got %d", len(repo.subs))
	}
}

func TestInvoiceWithoutSubscriptionOrMetadata(t *testing.T) {
	repo := newMemorySubscriptionRepo()
	growthPlan(repo)
	svc := NewService(repo)

	env := invoiceEnvelope(t, "in_orphan", "sub_unknown", "")
	if err := svc.OnInvoicePaid(context.Background(), env); !payments.IsMissingMetadata(err) {
		t.Fatalf("expected missing-metadata error, got %v", err)
	}
	if len(repo.allocations) != 0 {
		t.Fatal("orphan invoice must not allocate credits")
	}
}

func TestPaymentFailureMovesToPastDueWithoutTouchingCredits(t *testing.T) {
	repo := newMemorySubscriptionRepo()
	growthPlan(repo)
	svc := NewService(repo)
	ctx := context.Background()

	created := subscriptionEnvelope(t, payments.EventSubscriptionCreated, "sub_1", "active", createMetadata)
	if err := svc.OnSubscriptionCreated(ctx, created); err != nil {
		t.Fatalf("OnSubscriptionCreated: %v", err)
	}
	if err := svc.OnInvoicePaid(ctx, invoiceEnvelope(t, "in_1", "sub_1", "")); err != nil {
		t.Fatalf("OnInvoicePaid: %v", err)
	}
	before := len(repo.allocations)

	failed := invoiceEnvelope(t, "in_2", "sub_1", "")
	failed.Type = payments.EventInvoicePaymentFailed
	if err := svc.OnInvoicePaymentFailed(ctx, failed); err != nil {
		t.Fatalf("OnInvoicePaymentFailed: %v", err)
	}

	if repo.subs["sub_1"].Status != models.SubscriptionStatusPastDue {
		t.Fatalf("expected past_due, got %q", repo.subs["sub_1"].Status)
	}
	if len(repo.allocations) != before {
		t.Fatal("payment failure must not change credit allocations")
	}

	// The next paid invoice recovers the subscription.
	if err := svc.OnInvoicePaid(ctx, invoiceEnvelope(t, "in_3", "sub_1", "")); err != nil {
		t.Fatalf("OnInvoicePaid: %v", err)
	}
	if repo.subs["sub_1"].Status != models.SubscriptionStatusActive {
		t.Fatalf("expected recovery to active, got %q", repo.subs["sub_1"].Status)
	}
}

func TestOnSubscriptionDeletedIsTerminal(t *testing.T) {
	repo := newMemorySubscriptionRepo()
	growthPlan(repo)
	svc := NewService(repo)
	ctx := context.Background()

	created := subscriptionEnvelope(t, payments.EventSubscriptionCreated, "sub_1", "active", createMetadata)
	if err := svc.OnSubscriptionCreated(ctx, created); err != nil {
		t.Fatalf("OnSubscriptionCreated: %v", err)
	}

	deleted := subscriptionEnvelope(t, payments.EventSubscriptionDeleted, "sub_1", "canceled", "")
	if err := svc.OnSubscriptionDeleted(ctx, deleted); err != nil {
		t.Fatalf("OnSubscriptionDeleted: %v", err)
	}
	sub := repo.subs["sub_1"]
	if sub.Status != models.SubscriptionStatusCanceled || sub.CanceledAt == nil {
		t.Fatalf("unexpected subscription after deletion: %+v", sub)
	}

	// A late update cannot resurrect a canceled subscription.
	update := subscriptionEnvelope(t, payments.EventSubscriptionUpdated, "sub_1", "active", "")
	if err := svc.OnSubscriptionUpdated(ctx, update); err != nil {
		t.Fatalf("OnSubscriptionUpdated: %v", err)
	}
	if repo.subs["sub_1"].Status != models.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled to be terminal, got %q", repo.subs["sub_1"].Status)
	}
}

func TestUpdateBeforeCreationLazilyCreates(t *testing.T) {
	repo := newMemorySubscriptionRepo()
	svc := NewService(repo)

	update := subscriptionEnvelope(t, payments.EventSubscriptionUpdated, "sub_new", "active", createMetadata)
	if err := svc.OnSubscriptionUpdated(context.Background(), update); err != nil {
		t.Fatalf("OnSubscriptionUpdated: %v", err)
	}
	sub, ok := repo.subs["sub_new"]
	if !ok {
		t.Fatal("expected lazily created subscription")
	}
	if sub.Status != models.SubscriptionStatusActive {
		t.Fatalf("expected active, got %q", sub.Status)
	}
}
