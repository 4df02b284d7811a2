package routes

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	controller "mailscout/controllers"
	"mailscout/middleware"
	"mailscout/research"
	"mailscout/store"
	"mailscout/verifier"
	"mailscout/worker"
)

// Services carries everything the HTTP layer hands to controllers.
type Services struct {
	JWTSecret        string
	RateLimitVerify  int
	RateLimitStorage fiber.Storage // nil keeps counters in memory
	Gatherer         prometheus.Gatherer

	Backends *verifier.Registry
	Runner   *verifier.Runner
	Resolver verifier.MXLookup
	Batches  store.BatchStore
	Worker   *worker.BatchWorker
	Profiles store.ProfileSource // nil when the database is disabled
	Research *research.Client    // nil without an API key
}

func SetupAPIRoutes(app *fiber.App, s Services) {
	verificationController := controller.NewVerificationController(s.Backends, s.Runner, s.Resolver)
	batchController := controller.NewBatchController(s.Batches, s.Worker, s.Backends, s.Profiles)
	researchController := controller.NewResearchController(s.Research)
	limit := middleware.VerificationRateLimiter(s.RateLimitVerify, s.RateLimitStorage)

	// API group with versioning and protection
	api := app.Group("/api/v1", middleware.Protected(s.JWTSecret), logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	api.Post("/candidates", verificationController.GenerateCandidates)
	api.Post("/verify", limit, verificationController.Verify)
	api.Get("/domains/:domain", verificationController.DomainInfo)

	batch := api.Group("/batches")
	batch.Post("/", batchController.CreateBatch)
	batch.Get("/:id", batchController.GetBatch)
	batch.Delete("/:id", batchController.DeleteBatch)
	batch.Post("/:id/entries", batchController.AddEntries)
	if s.Profiles != nil {
		batch.Post("/:id/profiles", batchController.AddProfiles)
	}
	batch.Post("/:id/run", limit, batchController.RunBatch)
	batch.Get("/:id/progress", batchController.GetProgress)
	batch.Get("/:id/reports", batchController.GetReports)
	batch.Get("/:id/ws", controller.UpgradeOnly, websocket.New(batchController.HandleBatchProgressWS(0)))

	api.Post("/research", limit, researchController.Research)

	logrus.WithField("backends", s.Backends.Available()).Info("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, s Services) {
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "running",
			"service":  "mailscout",
			"backends": s.Backends.Available(),
		})
	})

	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	SetupAPIRoutes(app, s)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
