package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Event types delivered by the payment processor.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventCheckoutExpired      = "checkout.session.expired"
	EventSubscriptionCreated  = "customer.subscription.created"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

// MissingMetadataError marks a webhook whose payload lacks a field we cannot
// process without. It is a permanent failure: the delivery is acknowledged so
// the processor stops retrying, logged for manual reconciliation, and no
// credits are granted.
type MissingMetadataError struct {
	Field string
}

func (e *MissingMetadataError) Error() string {
	return fmt.Sprintf("webhook payload is missing required metadata field %q", e.Field)
}

// IsMissingMetadata reports whether err is a permanent missing-metadata
// failure.
func IsMissingMetadata(err error) bool {
	var mme *MissingMetadataError
	return errors.As(err, &mme)
}

// Envelope is the outer webhook shape: an event id, a type discriminator and
// the type-specific object. Each known type has its own payload struct and a
// pure extraction function; speculative traversal of alternative field paths
// is deliberately avoided.
type Envelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEnvelope decodes the webhook body into the outer envelope.
func ParseEnvelope(raw []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid webhook payload: %w", err)
	}
	if env.Type == "" {
		return nil, errors.New("webhook payload has no event type")
	}
	return &env, nil
}

type checkoutSessionShape struct {
	ID            string            `json:"id"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	PaymentStatus string            `json:"payment_status"`
	Metadata      map[string]string `json:"metadata"`
}

// CheckoutEvent is the normalized content of a checkout.session.* event.
type CheckoutEvent struct {
	CheckoutSessionID string
	OrganizationID    uint
	CreditPackageID   uint
	PaymentAttemptID  string
	AmountCents       int64
	Currency          string
}

// ParseCheckoutEvent extracts the checkout-session shape. Completed sessions
// require the full metadata set; expired sessions only need the attempt
// reference to mark the attempt failed.
func ParseCheckoutEvent(env *Envelope, requireGrantMetadata bool) (*CheckoutEvent, error) {
	var shape checkoutSessionShape
	if err := json.Unmarshal(env.Data.Object, &shape); err != nil {
		return nil, fmt.Errorf("invalid checkout session object: %w", err)
	}
	if shape.ID == "" {
		return nil, &MissingMetadataError{Field: "id"}
	}

	ev := &CheckoutEvent{
		CheckoutSessionID: shape.ID,
		PaymentAttemptID:  shape.Metadata["payment_attempt_id"],
		AmountCents:       shape.AmountTotal,
		Currency:          shape.Currency,
	}
	if !requireGrantMetadata {
		return ev, nil
	}

	orgID, err := metadataUint(shape.Metadata, "organization_id")
	if err != nil {
		return nil, err
	}
	pkgID, err := metadataUint(shape.Metadata, "credit_package_id")
	if err != nil {
		return nil, err
	}
	if ev.PaymentAttemptID == "" {
		return nil, &MissingMetadataError{Field: "payment_attempt_id"}
	}
	ev.OrganizationID = orgID
	ev.CreditPackageID = pkgID
	return ev, nil
}

type subscriptionShape struct {
	ID                 string            `json:"id"`
	Status             string            `json:"status"`
	TrialEnd           int64             `json:"trial_end"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	Metadata           map[string]string `json:"metadata"`
}

// SubscriptionEvent is the normalized content of a customer.subscription.*
// event. The event is authoritative current state, not a delta.
type SubscriptionEvent struct {
	ProviderSubscriptionID string
	OrganizationID         uint
	SubscriptionPlanID     uint
	Status                 string
	Trialing               bool
	CurrentPeriodStart     *time.Time
	CurrentPeriodEnd       *time.Time
	CancelAtPeriodEnd      bool
	CanceledAt             *time.Time
	RawPayloadJSON         string
}

// ParseSubscriptionEvent extracts the subscription shape. Creation requires
// organization and plan metadata; updates and deletions resolve the local
// record by the provider subscription id alone.
func ParseSubscriptionEvent(env *Envelope, requireCreateMetadata bool) (*SubscriptionEvent, error) {
	var shape subscriptionShape
	if err := json.Unmarshal(env.Data.Object, &shape); err != nil {
		return nil, fmt.Errorf("invalid subscription object: %w", err)
	}
	if shape.ID == "" {
		return nil, &MissingMetadataError{Field: "id"}
	}

	ev := &SubscriptionEvent{
		ProviderSubscriptionID: shape.ID,
		Status:                 shape.Status,
		Trialing:               shape.TrialEnd > time.Now().Unix(),
		CurrentPeriodStart:     unixTime(shape.CurrentPeriodStart),
		CurrentPeriodEnd:       unixTime(shape.CurrentPeriodEnd),
		CancelAtPeriodEnd:      shape.CancelAtPeriodEnd,
		CanceledAt:             unixTime(shape.CanceledAt),
		RawPayloadJSON:         string(env.Data.Object),
	}

	if requireCreateMetadata {
		orgID, err := metadataUint(shape.Metadata, "organization_id")
		if err != nil {
			return nil, err
		}
		planID, err := metadataUint(shape.Metadata, "plan_id")
		if err != nil {
			return nil, err
		}
		ev.OrganizationID = orgID
		ev.SubscriptionPlanID = planID
	} else if shape.Metadata != nil {
		// Metadata on update/delete events is optional but used for lazy
		// creation when the local record is missing.
		if orgID, err := metadataUint(shape.Metadata, "organization_id"); err == nil {
			ev.OrganizationID = orgID
		}
		if planID, err := metadataUint(shape.Metadata, "plan_id"); err == nil {
			ev.SubscriptionPlanID = planID
		}
	}
	return ev, nil
}

type invoiceShape struct {
	ID           string            `json:"id"`
	Subscription string            `json:"subscription"`
	AmountPaid   int64             `json:"amount_paid"`
	PeriodStart  int64             `json:"period_start"`
	PeriodEnd    int64             `json:"period_end"`
	Metadata     map[string]string `json:"metadata"`
}

// InvoiceEvent is the normalized content of an invoice.* event.
type InvoiceEvent struct {
	ExternalInvoiceID      string
	ProviderSubscriptionID string
	OrganizationID         uint
	SubscriptionPlanID     uint
	AmountCents            int64
	PeriodStart            *time.Time
	PeriodEnd              *time.Time
}

// ParseInvoiceEvent extracts the invoice shape. The subscription reference is
// required; organization/plan metadata is optional and only consulted when
// the invoice races ahead of the subscription-created event.
func ParseInvoiceEvent(env *Envelope) (*InvoiceEvent, error) {
	var shape invoiceShape
	if err := json.Unmarshal(env.Data.Object, &shape); err != nil {
		return nil, fmt.Errorf("invalid invoice object: %w", err)
	}
	if shape.ID == "" {
		return nil, &MissingMetadataError{Field: "id"}
	}
	if shape.Subscription == "" {
		return nil, &MissingMetadataError{Field: "subscription"}
	}

	ev := &InvoiceEvent{
		ExternalInvoiceID:      shape.ID,
		ProviderSubscriptionID: shape.Subscription,
		AmountCents:            shape.AmountPaid,
		PeriodStart:            unixTime(shape.PeriodStart),
		PeriodEnd:              unixTime(shape.PeriodEnd),
	}
	if shape.Metadata != nil {
		if orgID, err := metadataUint(shape.Metadata, "organization_id"); err == nil {
			ev.OrganizationID = orgID
		}
		if planID, err := metadataUint(shape.Metadata, "plan_id"); err == nil {
			ev.SubscriptionPlanID = planID
		}
	}
	return ev, nil
}

func metadataUint(metadata map[string]string, field string) (uint, error) {
	raw, ok := metadata[field]
	if !ok || raw == "" {
		return 0, &MissingMetadataError{Field: field}
	}
	val, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || val == 0 {
		return 0, &MissingMetadataError{Field: field}
	}
	return uint(val), nil
}

func unixTime(ts int64) *time.Time {
	if ts <= 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}
