package controllers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/hirewireapp/hirewire/internal/pkg/middleware"
)

// HandleGetCreditBalances returns the organization's balance per pool.
func HandleGetCreditBalances(c *fiber.Ctx) error {
	org := middleware.OrganizationFromContext(c)
	if org == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing organization context")
	}

	balances, err := ledgerService.GetBalance(c.Context(), org.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load balances")
	}

	return c.JSON(fiber.Map{
		"organization_id": org.PublicID,
		"balances":        balances,
	})
}

// HandleGetCreditHistory returns ledger entries in reverse-chronological order.
func HandleGetCreditHistory(c *fiber.Ctx) error {
	org := middleware.OrganizationFromContext(c)
	if org == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing organization context")
	}

	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	entries, err := ledgerService.History(c.Context(), org.ID, limit)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load credit history")
	}

	return c.JSON(fiber.Map{
		"organization_id": org.PublicID,
		"entries":         entries,
	})
}

// HandleGetCreditUsage returns grant/deduction aggregates recomputed from the
// ledger.
func HandleGetCreditUsage(c *fiber.Ctx) error {
	org := middleware.OrganizationFromContext(c)
	if org == nil {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing organization context")
	}

	stats, err := ledgerService.UsageStats(c.Context(), org.ID)
	if err != nil {
		return jsonError(c, fiber.StatusInternalServerError, "internal_server_error", "Failed to load usage statistics")
	}

	return c.JSON(fiber.Map{
		"organization_id":  org.PublicID,
		"total_granted":    stats.TotalGranted,
		"total_deducted":   stats.TotalDeducted,
		"deduction_counts": stats.DeductionCounts,
	})
}
