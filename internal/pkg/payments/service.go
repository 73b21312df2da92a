package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/env"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
)

// Provider is the identifier stored on webhook events and used in dedup keys.
const Provider = "paygrid"

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	ProviderEventID string
	EventType       string
	PayloadJSON     string
	SignatureValid  bool
}

// Service turns verified payment events into durable credit grants, exactly
// once per event, and initiates outbound checkouts and refunds.
type Service struct {
	repo          Repository
	client        ProviderClient
	webhookSecret string
}

// NewService creates a payment service from injected collaborators.
func NewService(repo Repository, client ProviderClient, webhookSecret string) *Service {
	return &Service{repo: repo, client: client, webhookSecret: webhookSecret}
}

// NewServiceFromDB creates a payment service from a GORM DB handle using the
// environment-configured provider client and webhook secret.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db), NewClientFromEnv(), env.GetEnv("PAYMENT_WEBHOOK_SECRET", ""))
}

// VerifySignature checks the webhook signature header against the shared
// secret. Verification is synchronous and precedes any state mutation.
func (s *Service) VerifySignature(payload []byte, signatureHeader string) bool {
	return VerifyWebhookSignature(payload, signatureHeader, s.webhookSecret)
}

// RecordWebhookEvent persists webhook payloads idempotently, keyed by the
// provider event id (or a payload hash when the header is absent).
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	eventID := in.ProviderEventID
	if eventID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	event := &models.WebhookEvent{
		Provider:        Provider,
		ProviderEventID: eventID,
		EventType:       in.EventType,
		PayloadJSON:     in.PayloadJSON,
		SignatureValid:  in.SignatureValid,
	}
	return s.repo.CreateWebhookEventIfNotExists(ctx, event)
}

// MarkWebhookProcessed marks an event as processed and stores an optional error.
func (s *Service) MarkWebhookProcessed(ctx context.Context, webhookEventID uint, processingErr error) error {
	return s.repo.MarkWebhookProcessed(ctx, webhookEventID, processingErr)
}

// InitiatePurchase creates a PaymentAttempt and a hosted checkout session for
// a credit package. The attempt id rides along in checkout metadata so the
// completion webhook can close the loop.
func (s *Service) InitiatePurchase(ctx context.Context, orgID, packageID uint) (*models.PaymentAttempt, string, error) {
	pkg, err := s.repo.FindCreditPackage(ctx, packageID)
	if err != nil {
		return nil, "", fmt.Errorf("credit package %d: %w", packageID, err)
	}

	attempt := &models.PaymentAttempt{
		PublicID:        uuid.New().String(),
		OrganizationID:  orgID,
		Kind:            models.PaymentAttemptKindPurchase,
		CreditPackageID: &pkg.ID,
		Status:          models.PaymentAttemptStatusInitiated,
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, "", err
	}

	session, err := s.client.CreateCheckoutSession(ctx, CheckoutSessionParams{
		Mode:     "payment",
		PriceRef: pkg.ProviderPriceRef,
		Metadata: map[string]string{
			"organization_id":    strconv.FormatUint(uint64(orgID), 10),
			"credit_package_id":  strconv.FormatUint(uint64(pkg.ID), 10),
			"payment_attempt_id": attempt.PublicID,
		},
	})
	if err != nil {
		return nil, "", err
	}
	if err := s.repo.SetAttemptSession(ctx, attempt.ID, session.ID); err != nil {
		log.Errorf("[Payments] failed to store session id on attempt %s: %v", attempt.PublicID, err)
	}
	attempt.CheckoutSessionID = session.ID
	return attempt, session.URL, nil
}

// InitiateSubscription creates a PaymentAttempt and a subscription-mode
// checkout for a plan. The subscription record itself is only created by the
// corresponding webhook, never here.
func (s *Service) InitiateSubscription(ctx context.Context, orgID uint, plan *models.SubscriptionPlan, billingCycle string) (*models.PaymentAttempt, string, error) {
	priceRef := plan.ProviderMonthlyPriceRef
	if billingCycle == models.BillingCycleYearly {
		priceRef = plan.ProviderYearlyPriceRef
	}

	attempt := &models.PaymentAttempt{
		PublicID:           uuid.New().String(),
		OrganizationID:     orgID,
		Kind:               models.PaymentAttemptKindSubscription,
		SubscriptionPlanID: &plan.ID,
		BillingCycle:       billingCycle,
		Status:             models.PaymentAttemptStatusInitiated,
	}
	if err := s.repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, "", err
	}

	session, err := s.client.CreateCheckoutSession(ctx, CheckoutSessionParams{
		Mode:     "subscription",
		PriceRef: priceRef,
		Metadata: map[string]string{
			"organization_id":    strconv.FormatUint(uint64(orgID), 10),
			"plan_id":            strconv.FormatUint(uint64(plan.ID), 10),
			"payment_attempt_id": attempt.PublicID,
		},
	})
	if err != nil {
		return nil, "", err
	}
	if err := s.repo.SetAttemptSession(ctx, attempt.ID, session.ID); err != nil {
		log.Errorf("[Payments] failed to store session id on attempt %s: %v", attempt.PublicID, err)
	}
	attempt.CheckoutSessionID = session.ID
	return attempt, session.URL, nil
}

// HandleCheckoutCompleted grants the purchased credits exactly once per
// checkout session. Missing metadata is a permanent failure: it is logged
// with the full event context and acknowledged without granting anything.
func (s *Service) HandleCheckoutCompleted(ctx context.Context, envlp *Envelope) error {
	ev, err := ParseCheckoutEvent(envlp, true)
	if err != nil {
		return err
	}

	pkg, err := s.repo.FindCreditPackage(ctx, ev.CreditPackageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &MissingMetadataError{Field: "credit_package_id"}
		}
		return err
	}

	created, ptx, err := s.repo.RecordPurchase(ctx, PurchaseRecord{
		OrganizationID:         ev.OrganizationID,
		CreditPackage:          pkg,
		PaymentAttemptPublicID: ev.PaymentAttemptID,
		CheckoutSessionID:      ev.CheckoutSessionID,
		AmountCents:            ev.AmountCents,
		Currency:               ev.Currency,
	})
	if err != nil {
		return err
	}
	if !created {
		log.Infof("[Payments] duplicate checkout.session.completed for session %s, transaction %d already recorded",
			ev.CheckoutSessionID, ptx.ID)
		return nil
	}

	log.Infof("[Payments] granted %d %s credits to org %d for session %s",
		pkg.CreditAmount, pkg.Pool, ev.OrganizationID, ev.CheckoutSessionID)
	return nil
}

// HandleCheckoutExpired marks the attempt failed; nothing is granted.
func (s *Service) HandleCheckoutExpired(ctx context.Context, envlp *Envelope) error {
	ev, err := ParseCheckoutEvent(envlp, false)
	if err != nil {
		return err
	}
	return s.repo.MarkAttemptFailed(ctx, ev.CheckoutSessionID, models.PaymentAttemptStatusExpired, "checkout session expired")
}

// Refund reverses a succeeded payment: it calls the provider's refund API and
// removes exactly the originally granted credits. The transaction is claimed
// with a conditional flip to refunding before the provider call, so two
// concurrent refund requests can never both reach the provider. If the
// organization has already spent the credits the deduction fails, the claim
// is released and ErrRefundCreditsSpent is returned for manual reconciliation
// (the provider-side refund has already been issued).
func (s *Service) Refund(ctx context.Context, paymentTxID uint, reason string) (*models.PaymentTransaction, error) {
	ptx, err := s.repo.BeginRefund(ctx, paymentTxID)
	if err != nil {
		return nil, err
	}

	refund, err := s.client.CreateRefund(ctx, ptx.CheckoutSessionID, ptx.AmountCents, reason)
	if err != nil {
		if abortErr := s.repo.AbortRefund(ctx, ptx.ID); abortErr != nil {
			log.Errorf("[Payments] failed to release refund claim on tx %d: %v", ptx.ID, abortErr)
		}
		return nil, err
	}

	if err := s.repo.RecordRefund(ctx, ptx.ID, reason, refund.ID); err != nil {
		if abortErr := s.repo.AbortRefund(ctx, ptx.ID); abortErr != nil {
			log.Errorf("[Payments] failed to release refund claim on tx %d: %v", ptx.ID, abortErr)
		}
		if _, ok := ledger.IsInsufficientCredits(err); ok {
			log.Errorf("[Payments] refund %s issued but credits already spent: tx=%d org=%d pool=%s amount=%d",
				refund.ID, ptx.ID, ptx.OrganizationID, ptx.Pool, ptx.CreditsAdded)
			return nil, ErrRefundCreditsSpent
		}
		return nil, err
	}

	return s.repo.FindTransaction(ctx, ptx.ID)
}
