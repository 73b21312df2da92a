package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/hirewireapp/hirewire/app/models"
	"github.com/hirewireapp/hirewire/internal/pkg/database"
	"github.com/hirewireapp/hirewire/internal/pkg/middleware"
	"github.com/hirewireapp/hirewire/internal/pkg/payments"
)

type purchaseRequest struct {
	CreditPackageID uint `json:"credit_package_id" validate:"required,gt=0"`
}

type subscribeRequest struct {
	PlanID       uint   `json:"plan_id" validate:"required,gt=0"`
	BillingCycle string `json:"billing_cycle" validate:"required,oneof=monthly yearly"`
}

type refundRequest struct {
	PaymentTransactionID uint   `json:"payment_transaction_id" validate:"required,gt=0"`
	Reason               string `json:"reason" validate:"max=500"`
}

// HandlePurchaseCredits creates a hosted checkout for a credit package. The
// credits are only granted when the completion webhook arrives.
func HandlePurchaseCredits(c *fiber.Ctx) error {
	org := middleware.OrganizationFromContext(c)
	if org == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing organization context")
	}

	var req purchaseRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return validationError(c, err)
	}

	attempt, checkoutURL, err := paymentService.InitiatePurchase(c.Context(), org.ID, req.CreditPackageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Credit package not found")
		}
		return jsonError(c, fiber.StatusBadGateway, "checkout_failed", "Failed to create checkout session")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment_attempt_id": attempt.PublicID,
		"checkout_url":       checkoutURL,
	})
}

// HandleSubscribe creates a subscription-mode checkout for a plan. The
// subscription record itself is created by the webhook, never here.
func HandleSubscribe(c *fiber.Ctx) error {
	org := middleware.OrganizationFromContext(c)
	if org == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing organization context")
	}

	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return validationError(c, err)
	}

	plan, err := models.FindActiveSubscriptionPlan(database.GetDB(), req.PlanID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return jsonError(c, fiber.StatusNotFound, "not_found", "Subscription plan not found")
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load plan")
	}

	attempt, checkoutURL, err := paymentService.InitiateSubscription(c.Context(), org.ID, plan, req.BillingCycle)
	if err != nil {
		return jsonError(c, fiber.StatusBadGateway, "checkout_failed", "Failed to create checkout session")
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"payment_attempt_id": attempt.PublicID,
		"checkout_url":       checkoutURL,
	})
}

// HandleRefundTransaction reverses a succeeded payment and removes the
// granted credits. Admin-only.
func HandleRefundTransaction(c *fiber.Ctx) error {
	var req refundRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return validationError(c, err)
	}

	ptx, err := paymentService.Refund(c.Context(), req.PaymentTransactionID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return jsonError(c, fiber.StatusNotFound, "not_found", "Payment transaction not found")
		case errors.Is(err, payments.ErrAlreadyRefunded):
			return jsonError(c, fiber.StatusConflict, "already_refunded", "Transaction is already refunded")
		case errors.Is(err, payments.ErrNotRefundable):
			return jsonError(c, fiber.StatusConflict, "not_refundable", "Transaction is not refundable")
		case errors.Is(err, payments.ErrRefundCreditsSpent):
			return jsonError(c, fiber.StatusConflict, "credits_spent",
				"Provider refund issued but credits were already spent; manual reconciliation required")
		}
		return jsonError(c, fiber.StatusBadGateway, "refund_failed", "Failed to process refund")
	}

	return c.JSON(fiber.Map{
		"payment_transaction_id": ptx.ID,
		"status":                 ptx.Status,
		"refunded_amount":        ptx.RefundedAmount,
		"provider_refund_id":     ptx.ProviderRefundID,
	})
}
