package controllers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/hirewireapp/hirewire/internal/pkg/payments"
)

// SignatureHeader is the payment processor's webhook signature header.
const SignatureHeader = "Paygrid-Signature"

// HandlePaymentWebhook processes payment-processor webhook deliveries. Every
// delivery is recorded before verification so tampered payloads stay visible
// for audit. Deliveries are at-least-once and unordered: duplicates are
// acknowledged without reprocessing, permanent failures are acknowledged so
// the processor stops retrying, and transient failures return 500 to trigger
// a retry.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	body := c.Body()
	signatureValid := paymentService.VerifySignature(body, c.Get(SignatureHeader))

	envelope, parseErr := payments.ParseEnvelope(body)

	input := payments.WebhookEventInput{
		PayloadJSON:    string(body),
		SignatureValid: signatureValid,
	}
	if envelope != nil {
		input.ProviderEventID = envelope.ID
		input.EventType = envelope.Type
	}
	created, event, err := paymentService.RecordWebhookEvent(c.Context(), input)
	if err != nil {
		log.Errorf("[Webhook] failed to record event: %v", err)
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to record event")
	}

	if !signatureValid {
		log.Warnf("[Webhook] rejected delivery with invalid signature (event %d)", event.ID)
		return jsonError(c, fiber.StatusBadRequest, "invalid_signature", "Webhook signature verification failed")
	}
	if parseErr != nil {
		// Signed but unparseable: permanent, acknowledge.
		_ = paymentService.MarkWebhookProcessed(c.Context(), event.ID, parseErr)
		return c.JSON(fiber.Map{"status": "ignored"})
	}
	if !created && event.ProcessedAt != nil {
		log.Infof("[Webhook] duplicate delivery of event %s, already processed", event.ProviderEventID)
		return c.JSON(fiber.Map{"status": "duplicate"})
	}

	processErr := dispatchWebhookEvent(c, envelope)
	if processErr != nil {
		if payments.IsMissingMetadata(processErr) {
			// Permanent failure: acknowledge so the processor stops
			// retrying, keep the error on the event for reconciliation.
			log.Errorf("[Webhook] event %s unprocessable: %v", event.ProviderEventID, processErr)
			_ = paymentService.MarkWebhookProcessed(c.Context(), event.ID, processErr)
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		log.Errorf("[Webhook] event %s processing failed: %v", event.ProviderEventID, processErr)
		_ = paymentService.MarkWebhookProcessed(c.Context(), event.ID, processErr)
		return jsonError(c, fiber.StatusInternalServerError, "processing_failed", "Event processing failed")
	}

	if err := paymentService.MarkWebhookProcessed(c.Context(), event.ID, nil); err != nil {
		log.Errorf("[Webhook] failed to mark event %d processed: %v", event.ID, err)
	}
	return c.JSON(fiber.Map{"status": "processed"})
}

func dispatchWebhookEvent(c *fiber.Ctx, envelope *payments.Envelope) error {
	ctx := c.Context()
	switch envelope.Type {
	case payments.EventCheckoutCompleted:
		return paymentService.HandleCheckoutCompleted(ctx, envelope)
	case payments.EventCheckoutExpired:
		return paymentService.HandleCheckoutExpired(ctx, envelope)
	case payments.EventSubscriptionCreated:
		return subscriptionService.OnSubscriptionCreated(ctx, envelope)
	case payments.EventSubscriptionUpdated:
		return subscriptionService.OnSubscriptionUpdated(ctx, envelope)
	case payments.EventSubscriptionDeleted:
		return subscriptionService.OnSubscriptionDeleted(ctx, envelope)
	case payments.EventInvoicePaid:
		return subscriptionService.OnInvoicePaid(ctx, envelope)
	case payments.EventInvoicePaymentFailed:
		return subscriptionService.OnInvoicePaymentFailed(ctx, envelope)
	}
	// Unknown event types are acknowledged: the processor sends the full
	// catalog and we only subscribe to a subset.
	log.Infof("[Webhook] ignoring unhandled event type %s", envelope.Type)
	return nil
}
