package router

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/storage/redis"

	"github.com/hirewireapp/hirewire/app/controllers"
	"github.com/hirewireapp/hirewire/internal/pkg/cache"
	"github.com/hirewireapp/hirewire/internal/pkg/env"
	"github.com/hirewireapp/hirewire/internal/pkg/middleware"
)

type ApiRouter struct {
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	// Webhook endpoint stays outside the API key group: the payment provider
	// authenticates with a signature header, not an API key. No rate limit
	// either, the provider retries aggressively and throttling it would only
	// delay credit grants.
	app.Post("/webhooks/payments", controllers.HandlePaymentWebhook)

	app.Get("/health", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        120,
		Expiration: 1 * time.Minute,
		Storage:    newLimiterStorage(),
		KeyGenerator: func(c *fiber.Ctx) string {
			// Limit per API key when present so one tenant cannot starve
			// others behind a shared proxy IP.
			if key := c.Get("X-API-Key"); key != "" {
				return key
			}
			return c.IP()
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes, all organization-scoped
	v1 := api.Group("/v1", middleware.APIKeyAuthMiddleware())

	v1.Get("/credits", controllers.HandleGetCreditBalances)
	v1.Get("/credits/history", controllers.HandleGetCreditHistory)
	v1.Get("/credits/usage", controllers.HandleGetCreditUsage)

	v1.Post("/billing/purchases", controllers.HandlePurchaseCredits)
	v1.Post("/billing/subscriptions", controllers.HandleSubscribe)

	v1.Post("/resumes", controllers.HandleCreateResume)
	v1.Get("/resumes/:id", controllers.HandleGetResume)
	v1.Post("/interviews", controllers.HandleScheduleInterview)

	// Admin routes use a separate shared key, not the tenant API key
	admin := api.Group("/v1/admin", middleware.AdminAuthMiddleware())
	admin.Post("/pricing", controllers.HandleUpsertPricing)
	admin.Post("/refunds", controllers.HandleRefundTransaction)
	admin.Post("/reconcile", controllers.HandleRunReconcileSweep)
}

// newLimiterStorage backs the rate limiter with Redis so limits hold across
// replicas. Falls back to the limiter's in-memory default when no cache
// client is configured (tests, local runs without Redis).
func newLimiterStorage() fiber.Storage {
	cacheClient := cache.GetClient()
	if cacheClient == nil {
		return nil
	}

	host := "localhost"
	port := 6379
	if h, p, err := net.SplitHostPort(cacheClient.Options().Addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	password := env.GetEnv("CACHE_PASSWORD", "")
	if p := cacheClient.Options().Password; p != "" {
		password = p
	}

	// Database 1 keeps limiter counters out of the cache keyspace (DB 0)
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: password,
		Database: 1,
		Reset:    false,
	})
}
