package controllers

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/hirewireapp/hirewire/internal/pkg/creditguard"
	"github.com/hirewireapp/hirewire/internal/pkg/jobqueue"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
	"github.com/hirewireapp/hirewire/internal/pkg/payments"
	"github.com/hirewireapp/hirewire/internal/pkg/pricing"
	"github.com/hirewireapp/hirewire/internal/pkg/subscription"
)

var validate = validator.New()

var (
	ledgerService       *ledger.Ledger
	pricingRegistry     *pricing.Registry
	guard               *creditguard.Guard
	paymentService      *payments.Service
	subscriptionService *subscription.Service
	queueManager        *jobqueue.Manager
)

// Dependencies carries the services the controllers dispatch to.
type Dependencies struct {
	Ledger        *ledger.Ledger
	Pricing       *pricing.Registry
	Guard         *creditguard.Guard
	Payments      *payments.Service
	Subscriptions *subscription.Service
	Queue         *jobqueue.Manager
}

// InitializeControllers wires the controller package. Must be called before
// any route is registered.
func InitializeControllers(deps Dependencies) {
	ledgerService = deps.Ledger
	pricingRegistry = deps.Pricing
	guard = deps.Guard
	paymentService = deps.Payments
	subscriptionService = deps.Subscriptions
	queueManager = deps.Queue
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"error": code, "message": message})
}

// paymentRequired renders the 402 response for an insufficient balance. The
// required and available amounts let API clients build a meaningful prompt.
func paymentRequired(c *fiber.Ctx, ice *ledger.InsufficientCreditsError) error {
	return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
		"error":             "insufficient_credits",
		"message":           ice.Error(),
		"pool":              ice.Pool,
		"required_credits":  ice.Required,
		"available_credits": ice.Available,
	})
}

func validationError(c *fiber.Ctx, err error) error {
	return jsonError(c, fiber.StatusUnprocessableEntity, "validation_failed", err.Error())
}
