package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
)

type upsertPricingRequest struct {
	ActionType  string `json:"action_type" validate:"required,max=100"`
	Pool        string `json:"pool" validate:"required"`
	Cost        int64  `json:"cost" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=500"`
	Active      bool   `json:"active"`
}

// HandleUpsertPricing updates or creates the active pricing row for an
// action type. Admin-only; the change invalidates the registry cache so new
// authorizations see it immediately.
func HandleUpsertPricing(c *fiber.Ctx) error {
	var req upsertPricingRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	if err := validate.Struct(&req); err != nil {
		return validationError(c, err)
	}

	price, err := pricingRegistry.Upsert(c.Context(), req.ActionType, req.Pool, req.Cost, req.Description, req.Active)
	if err != nil {
		if errors.Is(err, ledger.ErrUnknownPool) || errors.Is(err, ledger.ErrInvalidAmount) {
			return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
		}
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to update pricing")
	}

	return c.JSON(price)
}

// HandleRunReconcileSweep enqueues a full ledger reconciliation sweep.
// Admin-only.
func HandleRunReconcileSweep(c *fiber.Ctx) error {
	if err := queueManager.RunReconcileSweepOnce(); err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to enqueue reconciliation sweep")
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "enqueued"})
}
