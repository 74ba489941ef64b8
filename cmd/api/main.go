package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentrygin "github.com/getsentry/sentry-go/gin"
	"github.com/gin-contrib/gzip"
	_ "github.com/joho/godotenv/autoload"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/nimbuspm/billing-api/docs" // Swagger docs
	"github.com/nimbuspm/billing-api/internal/config"
	"github.com/nimbuspm/billing-api/internal/database"
	"github.com/nimbuspm/billing-api/internal/gateway"
	"github.com/nimbuspm/billing-api/internal/handlers"
	"github.com/nimbuspm/billing-api/internal/jobs"
	"github.com/nimbuspm/billing-api/internal/middleware"
	"github.com/nimbuspm/billing-api/internal/repository"
	"github.com/nimbuspm/billing-api/internal/services"
	"github.com/nimbuspm/billing-api/pkg/logger"

	"github.com/gin-gonic/gin"
)

// @title NimbusPM Billing API
// @version 1.0
// @description Recurring lease billing and payment reconciliation engine

// @host localhost:8080
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger.Setup(cfg.Environment)

	// Initialize Sentry when DSN is configured
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			TracesSampleRate: 0.2,
			Environment:      cfg.Environment,
		}); err != nil {
			logger.Error("Sentry initialization failed", "error", err)
		} else {
			logger.Info("Sentry initialized")
		}
	}

	if cfg.ResendAPIKey == "" || cfg.FromEmail == "" {
		logger.Warn("Resend email disabled: RESEND_API_KEY or FROM_EMAIL not set")
	}

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	logger.Info("Connected to database")

	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("Migrations applied")

	repos := repository.NewRepositories(db)

	worker := jobs.NewWorker(cfg.WorkerCount)
	logger.Info("Started background worker", "goroutines", cfg.WorkerCount)

	gw := gateway.NewHTTPClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayTimeout)

	svcs := services.NewServices(repos, worker, gw, cfg)

	scheduleJobs(worker, svcs, cfg)

	h := handlers.NewHandlers(svcs, cfg)

	router := setupRouter(h, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	worker.Shutdown()
	logger.Info("Background worker stopped")

	if cfg.SentryDSN != "" {
		sentry.Flush(5 * time.Second)
	}

	logger.Info("Server exited gracefully")
}

// scheduleJobs wires the recurring billing passes onto the worker
func scheduleJobs(worker *jobs.Worker, svcs *services.Services, cfg *config.Config) {
	// Billing clock: run immediately so a restarted process catches up on
	// schedules that came due while it was down.
	worker.ScheduleEveryImmediate(cfg.BillingInterval, func(ctx context.Context) error {
		_, err := svcs.Billing.RunOnce(ctx)
		return err
	})

	worker.ScheduleEvery(cfg.ReminderInterval, func(ctx context.Context) error {
		_, err := svcs.Billing.SendDueReminders(ctx)
		return err
	})

	worker.ScheduleEvery(cfg.ReminderInterval, func(ctx context.Context) error {
		_, err := svcs.Billing.SendOverdueNotices(ctx)
		return err
	})

	worker.ScheduleEvery(cfg.BillingInterval, func(ctx context.Context) error {
		_, err := svcs.Billing.ApplyLateFees(ctx)
		return err
	})

	worker.ScheduleEvery(cfg.BillingInterval, func(ctx context.Context) error {
		_, err := svcs.Schedule.DeactivateExpired(ctx, time.Now())
		return err
	})
}

func setupRouter(h *handlers.Handlers, cfg *config.Config) *gin.Engine {
	router := gin.New()

	// Global middleware
	if cfg.SentryDSN != "" {
		router.Use(sentrygin.New(sentrygin.Options{Repanic: true}))
	}
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		router.GET("/", func(c *gin.Context) {
			c.Redirect(http.StatusMovedPermanently, "/swagger/index.html")
		})

		// Swagger documentation
		router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

		// Health check (public)
		v1.GET("/health", h.Health.Index)

		// Authentication (public)
		auth := v1.Group("/auth")
		{
			auth.POST("/login", h.Auth.Login)
		}

		// Gateway webhook ingress (authenticated by signature, not JWT)
		v1.POST("/webhooks/gateway", h.Webhook.Receive)

		// Protected routes (requires authentication)
		protected := v1.Group("")
		protected.Use(middleware.Auth(cfg.JWTSecret))
		{
			// Admin-only routes
			admin := protected.Group("")
			admin.Use(middleware.RequireAdmin())
			{
				admin.POST("/payments", h.Payment.Create)
				admin.POST("/payments/:payment_id/cancel", h.Payment.Cancel)
				admin.POST("/payments/:payment_id/refund", h.Payment.Refund)
				admin.GET("/payments/stats", h.Payment.Stats)
				admin.GET("/payments/export", h.Payment.Export)

				admin.POST("/leases", h.Lease.Create)
				admin.POST("/leases/:lease_id/schedules", h.Schedule.CreateForLease)
				admin.DELETE("/schedules/:schedule_id", h.Schedule.Deactivate)

				admin.POST("/billing/run", h.Billing.Run)
				admin.POST("/billing/late_fees", h.Billing.ApplyLateFees)

				admin.GET("/jobs/status", h.Job.Status)
			}

			// All authenticated users (tenants see only their own data)
			protected.GET("/payments", h.Payment.Index)
			protected.GET("/payments/:payment_id", h.Payment.Show)
			protected.POST("/payments/:payment_id/retry", h.Payment.Retry)

			protected.GET("/leases", h.Lease.Index)
			protected.GET("/leases/:lease_id/schedules", h.Schedule.IndexByLease)
			protected.PUT("/schedules/:schedule_id/auto_pay", h.Schedule.SetAutoPay)
			protected.POST("/schedules/:schedule_id/payments", h.Schedule.CreatePayment)

			protected.GET("/notifications", h.Notification.Index)
			protected.PUT("/notifications/:notification_id/read", h.Notification.MarkAsRead)
			protected.PUT("/notifications/read_all", h.Notification.MarkAllAsRead)
		}
	}

	return router
}
