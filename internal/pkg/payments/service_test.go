package payments

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
)

type grantRecord struct {
	OrganizationID uint
	Pool           string
	Amount         int64
	RelatedID      string
}

// memoryPaymentsRepo mirrors the idempotency semantics of the GORM
// repository: one transaction per checkout session, one grant per created
// transaction, one refund per transaction.
type memoryPaymentsRepo struct {
	packages     map[uint]*models.CreditPackage
	attempts     map[string]*models.PaymentAttempt
	txsBySession map[string]*models.PaymentTransaction
	txsByID      map[uint]*models.PaymentTransaction
	events       map[string]*models.WebhookEvent
	grants       []grantRecord
	deductions   []grantRecord
	creditsSpent bool
	nextID       uint
}

func newMemoryPaymentsRepo() *memoryPaymentsRepo {
	return &memoryPaymentsRepo{
		packages:     make(map[uint]*models.CreditPackage),
		attempts:     make(map[string]*models.PaymentAttempt),
		txsBySession: make(map[string]*models.PaymentTransaction),
		txsByID:      make(map[uint]*models.PaymentTransaction),
		events:       make(map[string]*models.WebhookEvent),
	}
}

func (r *memoryPaymentsRepo) id() uint {
	r.nextID++
	return r.nextID
}

func (r *memoryPaymentsRepo) CreateAttempt(_ context.Context, attempt *models.PaymentAttempt) error {
	attempt.ID = r.id()
	r.attempts[attempt.PublicID] = attempt
	return nil
}

func (r *memoryPaymentsRepo) SetAttemptSession(_ context.Context, attemptID uint, sessionID string) error {
	for _, a := range r.attempts {
		if a.ID == attemptID {
			a.CheckoutSessionID = sessionID
			return nil
		}
	}
	return errors.New("attempt not found")
}

func (r *memoryPaymentsRepo) MarkAttemptFailed(_ context.Context, sessionID, status, reason string) error {
	for _, a := range r.attempts {
		if a.CheckoutSessionID == sessionID {
			a.Status = status
			a.FailureReason = reason
			return nil
		}
	}
	return nil
}

func (r *memoryPaymentsRepo) FindCreditPackage(_ context.Context, id uint) (*models.CreditPackage, error) {
	pkg, ok := r.packages[id]
	if !ok {
		return nil, errors.New("credit package not found")
	}
	return pkg, nil
}

func (r *memoryPaymentsRepo) FindTransaction(_ context.Context, id uint) (*models.PaymentTransaction, error) {
	ptx, ok := r.txsByID[id]
	if !ok {
		return nil, errors.New("payment transaction not found")
	}
	cp := *ptx
	return &cp, nil
}

func (r *memoryPaymentsRepo) FindTransactionBySession(_ context.Context, sessionID string) (*models.PaymentTransaction, error) {
	ptx, ok := r.txsBySession[sessionID]
	if !ok {
		return nil, errors.New("payment transaction not found")
	}
	cp := *ptx
	return &cp, nil
}

func (r *memoryPaymentsRepo) RecordPurchase(_ context.Context, rec PurchaseRecord) (bool, *models.PaymentTransaction, error) {
	if existing, ok := r.txsBySession[rec.CheckoutSessionID]; ok {
		return false, existing, nil
	}
	ptx := &models.PaymentTransaction{
		ID:                r.id(),
		OrganizationID:    rec.OrganizationID,
		CreditPackageID:   rec.CreditPackage.ID,
		CheckoutSessionID: rec.CheckoutSessionID,
		AmountCents:       rec.AmountCents,
		Currency:          rec.Currency,
		Pool:              rec.CreditPackage.Pool,
		CreditsAdded:      rec.CreditPackage.CreditAmount,
		Status:            models.PaymentTxStatusSucceeded,
	}
	r.txsBySession[rec.CheckoutSessionID] = ptx
	r.txsByID[ptx.ID] = ptx
	r.grants = append(r.grants, grantRecord{
		OrganizationID: rec.OrganizationID,
		Pool:           rec.CreditPackage.Pool,
		Amount:         rec.CreditPackage.CreditAmount,
		RelatedID:      rec.CheckoutSessionID,
	})
	if a, ok := r.attempts[rec.PaymentAttemptPublicID]; ok {
		a.Status = models.PaymentAttemptStatusSucceeded
	}
	return true, ptx, nil
}

func (r *memoryPaymentsRepo) BeginRefund(_ context.Context, txID uint) (*models.PaymentTransaction, error) {
	ptx, ok := r.txsByID[txID]
	if !ok {
		return nil, errors.New("payment transaction not found")
	}
	if ptx.Status == models.PaymentTxStatusRefunded || ptx.RefundedAmount != 0 {
		return nil, ErrAlreadyRefunded
	}
	if ptx.Status != models.PaymentTxStatusSucceeded {
		return nil, ErrNotRefundable
	}
	ptx.Status = models.PaymentTxStatusRefunding
	cp := *ptx
	return &cp, nil
}

func (r *memoryPaymentsRepo) AbortRefund(_ context.Context, txID uint) error {
	if ptx, ok := r.txsByID[txID]; ok && ptx.Status == models.PaymentTxStatusRefunding {
		ptx.Status = models.PaymentTxStatusSucceeded
	}
	return nil
}

func (r *memoryPaymentsRepo) RecordRefund(_ context.Context, txID uint, reason, providerRefundID string) error {
	ptx, ok := r.txsByID[txID]
	if !ok {
		return errors.New("payment transaction not found")
	}
	if ptx.Status == models.PaymentTxStatusRefunded || ptx.RefundedAmount != 0 {
		return ErrAlreadyRefunded
	}
	if ptx.Status != models.PaymentTxStatusRefunding {
		return ErrNotRefundable
	}
	if r.creditsSpent {
		return &ledger.InsufficientCreditsError{
			Pool:      ptx.Pool,
			Required:  ptx.CreditsAdded,
			Available: 0,
		}
	}
	now := time.Now()
	ptx.Status = models.PaymentTxStatusRefunded
	ptx.RefundedAmount = ptx.CreditsAdded
	ptx.RefundReason = reason
	ptx.ProviderRefundID = providerRefundID
	ptx.RefundedAt = &now
	r.deductions = append(r.deductions, grantRecord{
		OrganizationID: ptx.OrganizationID,
		Pool:           ptx.Pool,
		Amount:         ptx.CreditsAdded,
		RelatedID:      ptx.CheckoutSessionID,
	})
	return nil
}

func (r *memoryPaymentsRepo) CreateWebhookEventIfNotExists(_ context.Context, event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	key := event.Provider + "/" + event.ProviderEventID
	if existing, ok := r.events[key]; ok {
		return false, existing, nil
	}
	event.ID = r.id()
	r.events[key] = event
	return true, event, nil
}

func (r *memoryPaymentsRepo) MarkWebhookProcessed(_ context.Context, id uint, processingErr error) error {
	for _, ev := range r.events {
		if ev.ID == id {
			now := time.Now()
			ev.ProcessedAt = &now
			if processingErr != nil {
				ev.ProcessingError = processingErr.Error()
			}
			return nil
		}
	}
	return errors.New("webhook event not found")
}

type stubProviderClient struct {
	lastCheckout CheckoutSessionParams
	refundErr    error
	refunds      int
}

func (c *stubProviderClient) CreateCheckoutSession(_ context.Context, p CheckoutSessionParams) (*CheckoutSession, error) {
	c.lastCheckout = p
	return &CheckoutSession{ID: "cs_stub_1", URL: "https://pay.example.com/cs_stub_1"}, nil
}

func (c *stubProviderClient) CreateRefund(_ context.Context, sessionID string, amountCents int64, reason string) (*Refund, error) {
	if c.refundErr != nil {
		return nil, c.refundErr
	}
	c.refunds++
	return &Refund{ID: "re_stub_1", Status: "succeeded"}, nil
}

func newTestService(repo *memoryPaymentsRepo, client *stubProviderClient) *Service {
	return NewService(repo, client, "whsec_test")
}

func starterPackage(repo *memoryPaymentsRepo) *models.CreditPackage {
	pkg := &models.CreditPackage{
		ID:               3,
		Name:             "Starter 100",
		Pool:             models.PoolCVProcessing,
		CreditAmount:     100,
		PriceCents:       4900,
		ProviderPriceRef: "price_starter",
		Active:           true,
	}
	repo.packages[pkg.ID] = pkg
	return pkg
}

func completedCheckoutEnvelope(t *testing.T, sessionID string) *Envelope {
	t.Helper()
	env, err := ParseEnvelope([]byte(`{
		"id": "evt_` + sessionID + `",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "` + sessionID + `",
			"amount_total": 4900,
			"currency": "usd",
			"metadata": {
				"organization_id": "7",
				"credit_package_id": "3",
				"payment_attempt_id": "pa-1"
			}
		}}
	}`))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	return env
}

func TestHandleCheckoutCompletedGrantsOncePerSession(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	starterPackage(repo)
	svc := newTestService(repo, &stubProviderClient{})
	env := completedCheckoutEnvelope(t, "cs_replay")

	for i := 0; i < 3; i++ {
		if err := svc.HandleCheckoutCompleted(context.Background(), env); err != nil {
			t.Fatalf("delivery %d: %v", i+1, err)
		}
	}

	if len(repo.grants) != 1 {
		t.Fatalf("expected exactly one grant after replays, got %d", len(repo.grants))
	}
	if len(repo.txsBySession) != 1 {
		t.Fatalf("expected exactly one payment transaction, got %d", len(repo.txsBySession))
	}
	g := repo.grants[0]
	if g.OrganizationID != 7 || g.Pool != models.PoolCVProcessing || g.Amount != 100 {
		t.Fatalf("unexpected grant: %+v", g)
	}
}

func TestHandleCheckoutCompletedMissingMetadata(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	starterPackage(repo)
	svc := newTestService(repo, &stubProviderClient{})

	env, err := ParseEnvelope([]byte(`{
		"id": "evt_bad",
		"type": "checkout.session.completed",
		"data": {"object": {"id": "cs_bad", "amount_total": 4900, "currency": "usd"}}
	}`))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}

	if err := svc.HandleCheckoutCompleted(context.Background(), env); !IsMissingMetadata(err) {
		t.Fatalf("expected missing-metadata error, got %v", err)
	}
	if len(repo.grants) != 0 {
		t.Fatalf("expected no grant, got %d", len(repo.grants))
	}
}

func TestHandleCheckoutExpiredMarksAttempt(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	svc := newTestService(repo, &stubProviderClient{})

	attempt := &models.PaymentAttempt{
		PublicID:          "pa-exp",
		OrganizationID:    7,
		Kind:              models.PaymentAttemptKindPurchase,
		CheckoutSessionID: "cs_exp",
		Status:            models.PaymentAttemptStatusInitiated,
	}
	if err := repo.CreateAttempt(context.Background(), attempt); err != nil {
		t.Fatalf("CreateAttempt: %v", err)
	}

	env, err := ParseEnvelope([]byte(`{
		"id": "evt_exp",
		"type": "checkout.session.expired",
		"data": {"object": {"id": "cs_exp"}}
	}`))
	if err != nil {
		t.Fatalf("ParseEnvelope: %v", err)
	}
	if err := svc.HandleCheckoutExpired(context.Background(), env); err != nil {
		t.Fatalf("HandleCheckoutExpired: %v", err)
	}
	if attempt.Status != models.PaymentAttemptStatusExpired {
		t.Fatalf("expected attempt status expired, got %q", attempt.Status)
	}
	if len(repo.grants) != 0 {
		t.Fatal("expired checkout must not grant credits")
	}
}

func TestInitiatePurchaseCarriesCorrelationMetadata(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	starterPackage(repo)
	client := &stubProviderClient{}
	svc := newTestService(repo, client)

	attempt, url, err := svc.InitiatePurchase(context.Background(), 7, 3)
	if err != nil {
		t.Fatalf("InitiatePurchase: %v", err)
	}
	if url == "" {
		t.Fatal("expected a checkout URL")
	}
	if attempt.CheckoutSessionID != "cs_stub_1" {
		t.Fatalf("expected session id stored on attempt, got %q", attempt.CheckoutSessionID)
	}

	md := client.lastCheckout.Metadata
	if md["organization_id"] != "7" || md["credit_package_id"] != "3" {
		t.Fatalf("unexpected checkout metadata: %v", md)
	}
	if md["payment_attempt_id"] != attempt.PublicID {
		t.Fatalf("metadata attempt id %q does not match attempt %q", md["payment_attempt_id"], attempt.PublicID)
	}
	if client.lastCheckout.Mode != "payment" {
		t.Fatalf("expected payment mode, got %q", client.lastCheckout.Mode)
	}
}

func TestRefundRemovesCreditsOnce(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	starterPackage(repo)
	client := &stubProviderClient{}
	svc := newTestService(repo, client)

	env := completedCheckoutEnvelope(t, "cs_ref")
	if err := svc.HandleCheckoutCompleted(context.Background(), env); err != nil {
		t.Fatalf("HandleCheckoutCompleted: %v", err)
	}
	ptx := repo.txsBySession["cs_ref"]

	refunded, err := svc.Refund(context.Background(), ptx.ID, "customer request")
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refunded.Status != models.PaymentTxStatusRefunded || refunded.RefundedAmount != 100 {
		t.Fatalf("unexpected refunded transaction: %+v", refunded)
	}
	if len(repo.deductions) != 1 || repo.deductions[0].Amount != 100 {
		t.Fatalf("expected one deduction of 100, got %+v", repo.deductions)
	}

	if _, err := svc.Refund(context.Background(), ptx.ID, "again"); !errors.Is(err, ErrAlreadyRefunded) && !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("expected second refund to be rejected, got %v", err)
	}
	if client.refunds != 1 {
		t.Fatalf("expected exactly one provider refund call, got %d", client.refunds)
	}
	if len(repo.deductions) != 1 {
		t.Fatalf("expected no second deduction, got %d", len(repo.deductions))
	}
}

func TestRefundWhenCreditsAlreadySpent(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	starterPackage(repo)
	svc := newTestService(repo, &stubProviderClient{})

	env := completedCheckoutEnvelope(t, "cs_spent")
	if err := svc.HandleCheckoutCompleted(context.Background(), env); err != nil {
		t.Fatalf("HandleCheckoutCompleted: %v", err)
	}
	ptx := repo.txsBySession["cs_spent"]
	repo.creditsSpent = true

	if _, err := svc.Refund(context.Background(), ptx.ID, "chargeback"); !errors.Is(err, ErrRefundCreditsSpent) {
		t.Fatalf("expected ErrRefundCreditsSpent, got %v", err)
	}
	if ptx.Status != models.PaymentTxStatusSucceeded {
		t.Fatalf("expected transaction to stay succeeded for reconciliation, got %q", ptx.Status)
	}
}

func TestRefundInFlightNeverReachesProvider(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	starterPackage(repo)
	client := &stubProviderClient{}
	svc := newTestService(repo, client)

	env := completedCheckoutEnvelope(t, "cs_inflight")
	if err := svc.HandleCheckoutCompleted(context.Background(), env); err != nil {
		t.Fatalf("HandleCheckoutCompleted: %v", err)
	}
	ptx := repo.txsBySession["cs_inflight"]

	// Another request already claimed the transaction for refunding.
	ptx.Status = models.PaymentTxStatusRefunding

	if _, err := svc.Refund(context.Background(), ptx.ID, "duplicate request"); !errors.Is(err, ErrNotRefundable) {
		t.Fatalf("expected ErrNotRefundable while refund is in flight, got %v", err)
	}
	if client.refunds != 0 {
		t.Fatalf("expected no provider refund call, got %d", client.refunds)
	}
	if len(repo.deductions) != 0 {
		t.Fatalf("expected no deduction, got %d", len(repo.deductions))
	}
}

func TestRefundProviderFailureReleasesClaim(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	starterPackage(repo)
	client := &stubProviderClient{refundErr: errors.New("provider unavailable")}
	svc := newTestService(repo, client)

	env := completedCheckoutEnvelope(t, "cs_retry")
	if err := svc.HandleCheckoutCompleted(context.Background(), env); err != nil {
		t.Fatalf("HandleCheckoutCompleted: %v", err)
	}
	ptx := repo.txsBySession["cs_retry"]

	if _, err := svc.Refund(context.Background(), ptx.ID, "chargeback"); err == nil {
		t.Fatal("expected provider error to surface")
	}
	if ptx.Status != models.PaymentTxStatusSucceeded {
		t.Fatalf("expected claim to be released after provider failure, got %q", ptx.Status)
	}

	client.refundErr = nil
	refunded, err := svc.Refund(context.Background(), ptx.ID, "chargeback")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if refunded.Status != models.PaymentTxStatusRefunded {
		t.Fatalf("expected refunded transaction, got %q", refunded.Status)
	}
	if client.refunds != 1 {
		t.Fatalf("expected exactly one successful provider refund call, got %d", client.refunds)
	}
}

func TestRecordWebhookEventDeduplicates(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	svc := newTestService(repo, &stubProviderClient{})
	ctx := context.Background()

	created, first, err := svc.RecordWebhookEvent(ctx, WebhookEventInput{
		ProviderEventID: "evt_1",
		EventType:       EventInvoicePaid,
		PayloadJSON:     "{}",
		SignatureValid:  true,
	})
	if err != nil || !created {
		t.Fatalf("expected first delivery to create, got created=%v err=%v", created, err)
	}

	created, second, err := svc.RecordWebhookEvent(ctx, WebhookEventInput{
		ProviderEventID: "evt_1",
		EventType:       EventInvoicePaid,
		PayloadJSON:     "{}",
		SignatureValid:  true,
	})
	if err != nil || created {
		t.Fatalf("expected duplicate delivery to return existing, got created=%v err=%v", created, err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same stored event, got %d and %d", first.ID, second.ID)
	}
}

func TestRecordWebhookEventFallsBackToPayloadHash(t *testing.T) {
	repo := newMemoryPaymentsRepo()
	svc := newTestService(repo, &stubProviderClient{})

	_, stored, err := svc.RecordWebhookEvent(context.Background(), WebhookEventInput{
		EventType:   EventCheckoutCompleted,
		PayloadJSON: `{"id":"cs_1"}`,
	})
	if err != nil {
		t.Fatalf("RecordWebhookEvent: %v", err)
	}
	if !strings.HasPrefix(stored.ProviderEventID, "hash:") {
		t.Fatalf("expected hash fallback id, got %q", stored.ProviderEventID)
	}
}
