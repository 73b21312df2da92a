package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/crypto/bcrypt"

	"github.com/hirewireapp/hirewire/app/controllers"
	"github.com/hirewireapp/hirewire/internal/pkg/archive"
	"github.com/hirewireapp/hirewire/internal/pkg/cache"
	"github.com/hirewireapp/hirewire/internal/pkg/creditguard"
	"github.com/hirewireapp/hirewire/internal/pkg/database"
	"github.com/hirewireapp/hirewire/internal/pkg/env"
	"github.com/hirewireapp/hirewire/internal/pkg/jobqueue"
	"github.com/hirewireapp/hirewire/internal/pkg/ledger"
	"github.com/hirewireapp/hirewire/internal/pkg/payments"
	"github.com/hirewireapp/hirewire/internal/pkg/pricing"
	"github.com/hirewireapp/hirewire/internal/pkg/router"
	"github.com/hirewireapp/hirewire/internal/pkg/subscription"
)

func main() {
	app, manager := NewApplication()

	// graceful shutdown: drain the job workers before closing the listener
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("[App] Shutdown signal received")
		manager.Stop()
		_ = app.Shutdown()
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

func NewApplication() (*fiber.App, *jobqueue.Manager) {
	env.SetupEnvFile()

	// Fail fast on the secrets the billing flows cannot run without.
	env.MustGetEnv("PAYMENT_API_KEY")
	env.MustGetEnv("PAYMENT_WEBHOOK_SECRET")

	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()

	ledgerService := ledger.NewFromDB(db)
	pricingRegistry := pricing.NewRegistryFromDB(db)
	guard := creditguard.New(pricingRegistry, ledgerService, chargeFailurePolicyFromEnv())
	paymentService := payments.NewServiceFromDB(db)
	subscriptionService := subscription.NewServiceFromDB(db)

	var uploader archive.Uploader
	if archiveClient, err := archive.NewClientFromEnv(); err != nil {
		log.Errorf("[App] Report archive disabled: %v", err)
	} else if archiveClient != nil {
		uploader = archiveClient
	}

	manager := jobqueue.NewManager(cache.GetClient(), db, guard, uploader)
	manager.Start()

	controllers.InitializeControllers(controllers.Dependencies{
		Ledger:        ledgerService,
		Pricing:       pricingRegistry,
		Guard:         guard,
		Payments:      paymentService,
		Subscriptions: subscriptionService,
		Queue:         manager,
	})

	app := fiber.New(fiber.Config{
		AppName:   "HireWire API",
		BodyLimit: 16 * 1024 * 1024,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// fiber metrics; credentials come from env, password stored as bcrypt hash
	app.Get("/metrics", basicauth.New(basicauth.Config{
		Authorizer: metricsAuthorizer(),
	}), monitor.New())

	// SWAGGER / OPENAPI
	openAPICfg := swagger.Config{
		BasePath: "/docs/api/",
		FilePath: findDocsPath() + "public/docs/v1/openapi.yml",
		Path:     "v1",
	}
	app.Use(swagger.New(openAPICfg))

	// ROUTER
	router.InstallRouter(app)

	return app, manager
}

func chargeFailurePolicyFromEnv() creditguard.ChargeFailurePolicy {
	if env.GetEnv("CHARGE_FAILURE_POLICY", "log") == "fail" {
		return creditguard.FailOperation
	}
	return creditguard.LogAndContinue
}

func metricsAuthorizer() func(string, string) bool {
	user := env.GetEnv("METRICS_USER", "admin")
	hash := env.GetEnv("METRICS_PASSWORD_BCRYPT", "")

	return func(u, p string) bool {
		if hash == "" {
			return false
		}
		if u != user {
			return false
		}
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(p)) == nil
	}
}

// findDocsPath locates the project root relative to the working directory so
// the binary works both from the repo root and from cmd/hirewire.
func findDocsPath() string {
	for _, path := range []string{"./", "../../", "../../../"} {
		if _, err := os.Stat(path + "public"); !os.IsNotExist(err) {
			return path
		}
	}
	return "./"
}
