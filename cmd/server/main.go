package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	appbilling "github.com/propms/backend/internal/application/billing"
	"github.com/propms/backend/internal/infrastructure/cache"
	"github.com/propms/backend/internal/infrastructure/config"
	"github.com/propms/backend/internal/infrastructure/logger"
	"github.com/propms/backend/internal/infrastructure/persistence"
	"github.com/propms/backend/internal/infrastructure/scheduler"
	"github.com/propms/backend/internal/interfaces/http/handler"
	"github.com/propms/backend/internal/interfaces/http/middleware"
	"github.com/propms/backend/internal/interfaces/http/router"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting property billing backend",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	// Create GORM logger backed by zap
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))

	// Initialize database connection with custom logger
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected successfully")

	// Initialize repositories and application services
	billRepo := persistence.NewGormBillRepository(db.DB)
	recurringService := appbilling.NewRecurringBillService(billRepo, log)

	// Run lock: Redis-backed when configured, in-memory otherwise.
	// A single-instance deployment does not need Redis.
	var runLock cache.RunLock
	if cfg.Redis.Enabled {
		redisLock, err := cache.NewRedisRunLock(cache.RedisLockConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer func() {
			if err := redisLock.Close(); err != nil {
				log.Error("Error closing Redis client", zap.Error(err))
			}
		}()
		runLock = redisLock
		log.Info("Using Redis-backed run lock")
	} else {
		runLock = cache.NewMemoryRunLock()
		log.Info("Using in-memory run lock")
	}

	// Billing scheduler
	billingScheduler := scheduler.NewBillingScheduler(scheduler.BillingSchedulerConfig{
		Enabled:       cfg.Billing.SchedulerEnabled,
		SweepSchedule: cfg.Billing.SweepSchedule,
		CloneSchedule: cfg.Billing.CloneSchedule,
		RunTimeout:    cfg.Billing.RunTimeout,
		LockTTL:       cfg.Billing.LockTTL,
	}, recurringService, runLock, log)

	if err := billingScheduler.Start(); err != nil {
		log.Fatal("Failed to start billing scheduler", zap.Error(err))
	}

	// Set Gin mode based on environment
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup validation
	middleware.SetupValidator()

	engine := gin.New()
	engine.Use(middleware.RequestID())
	engine.Use(logger.Recovery(log))
	engine.Use(logger.GinMiddleware(log))

	// Health check endpoint (outside API versioning)
	healthHandler := handler.NewHealthHandler(db)
	engine.GET("/health", healthHandler.Health)

	// Register billing administration routes
	billingHandler := handler.NewBillingHandler(billingScheduler, billRepo)
	r := router.NewRouter(engine, router.WithAPIVersion("v1"))
	r.Register(billingHandler)
	r.Setup()

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := billingScheduler.Stop(ctx); err != nil {
		log.Error("Billing scheduler shutdown failed", zap.Error(err))
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}
