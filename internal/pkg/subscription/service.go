package subscription

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/payments"
)

// Service advances subscription lifecycle state from verified webhook events
// and allocates monthly credits exactly once per paid invoice. Events are
// authoritative snapshots: handlers overwrite local state rather than apply
// deltas, and the lifecycle table rejects transitions that would only occur
// under out-of-order delivery.
type Service struct {
	repo Repository
}

// NewService creates a lifecycle manager from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// NewServiceFromDB creates a lifecycle manager from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// OnSubscriptionCreated materializes the local subscription record. A
// redelivered creation event finds the existing row and changes nothing.
func (s *Service) OnSubscriptionCreated(ctx context.Context, env *payments.Envelope) error {
	ev, err := payments.ParseSubscriptionEvent(env, true)
	if err != nil {
		return err
	}

	status := models.SubscriptionStatusActive
	if ev.Trialing {
		status = models.SubscriptionStatusTrialing
	}

	created, stored, err := s.repo.CreateIfNotExists(ctx, &models.OrganizationSubscription{
		OrganizationID:         ev.OrganizationID,
		SubscriptionPlanID:     ev.SubscriptionPlanID,
		ProviderSubscriptionID: ev.ProviderSubscriptionID,
		Status:                 status,
		CurrentPeriodStart:     ev.CurrentPeriodStart,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:      ev.CancelAtPeriodEnd,
		RawPayloadJSON:         ev.RawPayloadJSON,
	})
	if err != nil {
		return err
	}
	if !created {
		log.Infof("[Subscription] duplicate creation event for %s, record %d already exists",
			ev.ProviderSubscriptionID, stored.ID)
		return nil
	}
	log.Infof("[Subscription] created subscription %s for org %d in status %s",
		ev.ProviderSubscriptionID, ev.OrganizationID, status)
	return nil
}

// OnSubscriptionUpdated overwrites local state with the event's snapshot. A
// missing local record is created lazily when the event carries enough
// metadata, covering the update-before-created delivery order.
func (s *Service) OnSubscriptionUpdated(ctx context.Context, env *payments.Envelope) error {
	ev, err := payments.ParseSubscriptionEvent(env, false)
	if err != nil {
		return err
	}

	sub, err := s.findOrLazyCreate(ctx, ev)
	if err != nil {
		return err
	}

	status := normalizeProviderStatus(ev.Status, ev.Trialing)
	next, err := Transition(sub.Status, status)
	if err != nil {
		log.Warnf("[Subscription] ignoring out-of-order update for %s: %v", ev.ProviderSubscriptionID, err)
		return nil
	}

	sub.Status = next
	sub.CurrentPeriodStart = ev.CurrentPeriodStart
	sub.CurrentPeriodEnd = ev.CurrentPeriodEnd
	sub.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	if ev.CanceledAt != nil {
		sub.CanceledAt = ev.CanceledAt
	}
	sub.RawPayloadJSON = ev.RawPayloadJSON
	return s.repo.Save(ctx, sub)
}

// OnSubscriptionDeleted marks the subscription canceled. Canceled is
// terminal; a second deletion is a no-op.
func (s *Service) OnSubscriptionDeleted(ctx context.Context, env *payments.Envelope) error {
	ev, err := payments.ParseSubscriptionEvent(env, false)
	if err != nil {
		return err
	}

	sub, err := s.repo.FindByProviderID(ctx, ev.ProviderSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Subscription] deletion event for unknown subscription %s", ev.ProviderSubscriptionID)
			return nil
		}
		return err
	}
	if sub.Status == models.SubscriptionStatusCanceled {
		return nil
	}

	next, err := Transition(sub.Status, models.SubscriptionStatusCanceled)
	if err != nil {
		return err
	}
	sub.Status = next
	canceledAt := time.Now()
	if ev.CanceledAt != nil {
		canceledAt = *ev.CanceledAt
	}
	sub.CanceledAt = &canceledAt
	sub.RawPayloadJSON = ev.RawPayloadJSON

	log.Infof("[Subscription] canceled subscription %s for org %d", sub.ProviderSubscriptionID, sub.OrganizationID)
	return s.repo.Save(ctx, sub)
}

// OnInvoicePaid allocates the plan's monthly credits for the invoice exactly
// once and recovers a past_due subscription back to active. A missing local
// record is created lazily from invoice metadata so billing continues even
// when the creation event was lost.
func (s *Service) OnInvoicePaid(ctx context.Context, env *payments.Envelope) error {
	ev, err := payments.ParseInvoiceEvent(env)
	if err != nil {
		return err
	}

	sub, err := s.repo.FindByProviderID(ctx, ev.ProviderSubscriptionID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if ev.OrganizationID == 0 || ev.SubscriptionPlanID == 0 {
			return &payments.MissingMetadataError{Field: "subscription"}
		}
		_, sub, err = s.repo.CreateIfNotExists(ctx, &models.OrganizationSubscription{
			OrganizationID:         ev.OrganizationID,
			SubscriptionPlanID:     ev.SubscriptionPlanID,
			ProviderSubscriptionID: ev.ProviderSubscriptionID,
			Status:                 models.SubscriptionStatusActive,
			CurrentPeriodStart:     ev.PeriodStart,
			CurrentPeriodEnd:       ev.PeriodEnd,
		})
		if err != nil {
			return err
		}
		log.Warnf("[Subscription] lazily created subscription %s from invoice %s",
			ev.ProviderSubscriptionID, ev.ExternalInvoiceID)
	}

	plan, err := s.repo.FindPlan(ctx, sub.SubscriptionPlanID)
	if err != nil {
		return err
	}

	allotments := plan.PoolAllotments()
	allocated, err := s.repo.AllocateInvoice(ctx, sub, plan, &models.SubscriptionInvoice{
		OrganizationSubscriptionID: sub.ID,
		ExternalInvoiceID:          ev.ExternalInvoiceID,
		AmountCents:                ev.AmountCents,
		CVCreditsAllocated:         allotments[models.PoolCVProcessing],
		InterviewCreditsAllocated:  allotments[models.PoolInterview],
		PeriodStart:                ev.PeriodStart,
		PeriodEnd:                  ev.PeriodEnd,
	})
	if err != nil {
		return err
	}
	if !allocated {
		log.Infof("[Subscription] invoice %s already allocated for subscription %s",
			ev.ExternalInvoiceID, sub.ProviderSubscriptionID)
		return nil
	}

	// A paid invoice also settles a delinquent or trialing subscription.
	if next, err := Transition(sub.Status, models.SubscriptionStatusActive); err == nil && next != sub.Status {
		sub.Status = next
	}
	if ev.PeriodStart != nil {
		sub.CurrentPeriodStart = ev.PeriodStart
	}
	if ev.PeriodEnd != nil {
		sub.CurrentPeriodEnd = ev.PeriodEnd
	}
	return s.repo.Save(ctx, sub)
}

// OnInvoicePaymentFailed moves the subscription to past_due. Credit balances
// are untouched: already granted credits stay spendable.
func (s *Service) OnInvoicePaymentFailed(ctx context.Context, env *payments.Envelope) error {
	ev, err := payments.ParseInvoiceEvent(env)
	if err != nil {
		return err
	}

	sub, err := s.repo.FindByProviderID(ctx, ev.ProviderSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Warnf("[Subscription] payment failure for unknown subscription %s", ev.ProviderSubscriptionID)
			return nil
		}
		return err
	}

	next, err := Transition(sub.Status, models.SubscriptionStatusPastDue)
	if err != nil {
		log.Warnf("[Subscription] ignoring payment failure for %s: %v", ev.ProviderSubscriptionID, err)
		return nil
	}
	if next == sub.Status {
		return nil
	}
	sub.Status = next
	log.Warnf("[Subscription] subscription %s for org %d is past due (invoice %s)",
		sub.ProviderSubscriptionID, sub.OrganizationID, ev.ExternalInvoiceID)
	return s.repo.Save(ctx, sub)
}

// findOrLazyCreate resolves the subscription for an update event, creating it
// when the creation event has not arrived yet and the update carries the
// creation metadata.
func (s *Service) findOrLazyCreate(ctx context.Context, ev *payments.SubscriptionEvent) (*models.OrganizationSubscription, error) {
	sub, err := s.repo.FindByProviderID(ctx, ev.ProviderSubscriptionID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if ev.OrganizationID == 0 || ev.SubscriptionPlanID == 0 {
		return nil, &payments.MissingMetadataError{Field: "organization_id"}
	}

	_, sub, err = s.repo.CreateIfNotExists(ctx, &models.OrganizationSubscription{
		OrganizationID:         ev.OrganizationID,
		SubscriptionPlanID:     ev.SubscriptionPlanID,
		ProviderSubscriptionID: ev.ProviderSubscriptionID,
		Status:                 normalizeProviderStatus(ev.Status, ev.Trialing),
		CurrentPeriodStart:     ev.CurrentPeriodStart,
		CurrentPeriodEnd:       ev.CurrentPeriodEnd,
		CancelAtPeriodEnd:      ev.CancelAtPeriodEnd,
		RawPayloadJSON:         ev.RawPayloadJSON,
	})
	if err != nil {
		return nil, err
	}
	log.Warnf("[Subscription] lazily created subscription %s from update event", ev.ProviderSubscriptionID)
	return sub, nil
}

// normalizeProviderStatus maps the provider's status string onto our
// lifecycle states. Unknown statuses degrade to active or trialing based on
// the trial flag rather than failing the whole event.
func normalizeProviderStatus(status string, trialing bool) string {
	switch status {
	case models.SubscriptionStatusTrialing,
		models.SubscriptionStatusActive,
		models.SubscriptionStatusPastDue,
		models.SubscriptionStatusCanceled:
		return status
	case "unpaid", "incomplete":
		return models.SubscriptionStatusPastDue
	}
	if trialing {
		return models.SubscriptionStatusTrialing
	}
	return models.SubscriptionStatusActive
}
