package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"bitbucket.org/mmdatafocus/logistics_backend/config"
	"bitbucket.org/mmdatafocus/logistics_backend/handlers"
	"bitbucket.org/mmdatafocus/logistics_backend/middlewares"
	"bitbucket.org/mmdatafocus/logistics_backend/models"
	"bitbucket.org/mmdatafocus/logistics_backend/repository"
	"bitbucket.org/mmdatafocus/logistics_backend/services"
	"bitbucket.org/mmdatafocus/logistics_backend/workflow"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func customNotFoundHandler(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
}

// ready flips once the services are wired.
var ready atomic.Bool

// readinessGate answers 503 until the services are wired.
func readinessGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/healthz" {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		if !ready.Load() {
			c.AbortWithStatus(http.StatusServiceUnavailable)
			return
		}
		c.Next()
	}
}

func corsConfig(s *config.Settings) cors.Config {
	cfg := cors.DefaultConfig()
	// Production requires an explicit allowlist; otherwise every origin is allowed.
	if s.IsProduction() {
		cfg.AllowOrigins = s.CorsAllowedOrigins
		if len(cfg.AllowOrigins) == 0 {
			cfg.AllowOriginFunc = func(string) bool { return false }
		}
	} else {
		cfg.AllowAllOrigins = true
	}
	cfg.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	cfg.AddAllowHeaders("Origin", "Content-Type", "Authorization", middlewares.CorrelationIdHeader)
	cfg.AddExposeHeaders("Content-Length", middlewares.CorrelationIdHeader)
	cfg.AllowCredentials = !cfg.AllowAllOrigins
	return cfg
}

func buildHandler(s *config.Settings, deps services.Deps) {
	region := s.DefaultPhoneRegion
	*apiHandler = handlers.Handler{
		Parcels:    services.NewParcelService(deps, config.InvoicedParcelDeletePolicy()),
		Trips:      services.NewTripService(deps),
		Ledger:     services.NewLedgerService(deps),
		Collection: services.NewCollectionGate(deps, config.ScanCollectPolicy()),
		Directory:  services.NewDirectoryService(deps, region),
		Logger:     deps.Logger,
	}
}

// apiHandler is mounted before dependencies connect and filled in afterwards.
var apiHandler = &handlers.Handler{}

func main() {
	settings := config.GetSettings()
	config.ConfigureLogger(settings)
	logger := config.GetLogger()
	if settings.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	// The port opens before DB/Redis are ready; app endpoints answer 503 until then.
	r := gin.New()
	r.Use(middlewares.CorrelationMiddleware())
	r.Use(readinessGate())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	r.Use(cors.New(corsConfig(settings)))
	r.Use(middlewares.ErrorLogger(logger))
	r.Use(gin.Recovery())

	api := r.Group("/api/v1")
	if settings.RateLimitEnabled {
		// A nil client falls back to the shared Redis connection once it is up.
		api.Use(middlewares.NewRateLimiter(nil, settings.RateLimitMaxRequests, settings.RateLimitWindow).RateLimitMiddleware)
	}
	api.Use(middlewares.AuthMiddleware())
	apiHandler.Register(api)
	r.NoRoute(customNotFoundHandler)

	srv := &http.Server{
		Addr:    ":" + settings.Port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry(sigCtx)

	db := config.GetDB()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()
	// AutoMigrate can hold table locks; large deployments run it as a separate job.
	if !settings.SkipMigrations {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err.Error())
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	deps := repository.NewDeps(db, config.GetRedisDB(), config.GetRedisLock(), settings.PaymentLockTTL, logger)
	buildHandler(settings, deps)
	ready.Store(true)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	dispatcher := workflow.NewOutboxDispatcher(db, logger, workflow.AuditHandler{}, workflow.UnsettledCollectionNotifier{})
	if settings.OutboxPollInterval > 0 {
		dispatcher.PollInterval = settings.OutboxPollInterval
	}
	go dispatcher.Run(workerCtx)
	go workflow.NewOverdueReconciler(apiHandler.Ledger, logger, settings.OverdueSweepInterval).Run(workerCtx)

	logger.WithFields(logrus.Fields{"info": "Connection Established"}).Info("listening on :", settings.Port)
	log.Println("Server started successfully")

	select {
	case <-sigCtx.Done():
	case err := <-serverErrCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithFields(logrus.Fields{"field": "http"}).Error("server stopped unexpectedly: " + err.Error())
		}
	}

	// Workers stop first so nothing new starts while requests drain.
	cancelWorkers()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(logrus.Fields{"field": "http"}).Error("graceful shutdown failed: " + err.Error())
	}

	config.ClosePubSub()
	if rdb := config.GetRedisDB(); rdb != nil {
		_ = rdb.Close()
	}
}
