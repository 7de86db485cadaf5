package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/makkenzo/commentgate-api/internal/config"
	"github.com/makkenzo/commentgate-api/internal/domain/apikey"
	"github.com/makkenzo/commentgate-api/internal/handler"
	"github.com/makkenzo/commentgate-api/internal/handler/middleware"
	"github.com/makkenzo/commentgate-api/internal/provider"
	"github.com/makkenzo/commentgate-api/internal/service"
	"github.com/makkenzo/commentgate-api/internal/storage"
	"github.com/makkenzo/commentgate-api/internal/storage/memstorage"
	"github.com/makkenzo/commentgate-api/internal/storage/redis"
	"github.com/makkenzo/commentgate-api/internal/tasks"
	"github.com/makkenzo/commentgate-api/internal/worker"
	"github.com/makkenzo/commentgate-api/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "./configs/config.dev.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLogger, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer appLogger.Sync()

	sugarLogger := appLogger.Sugar()
	sugarLogger.Infof("Starting application, storage driver %s, device mode %s", cfg.Storage.Driver, cfg.Gate.DeviceMode)

	appCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(appCtx, cfg, appLogger)
	if err != nil {
		sugarLogger.Fatalf("Failed to open storage: %v", err)
	}
	defer st.Close()

	pingers := map[string]handler.Pinger{"storage": st.Ping}

	var blockStore service.BlocklistStore = memstorage.NewBlocklist()
	redisEnabled := cfg.Redis.Addr != ""
	if redisEnabled {
		redisClient, err := redis.NewRedisClient(appCtx, &cfg.Redis, cfg.Gate.StoreTimeout, appLogger)
		if err != nil {
			sugarLogger.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
		blockStore = redis.NewBlocklist(redisClient, appLogger)
		pingers["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	} else {
		sugarLogger.Warn("Redis disabled: blocklist is in-memory and scheduled jobs only run via /internal/jobs")
	}

	clock := service.NewCycleClock(cfg.Gate.ResetHour, cfg.Gate.Location())
	blocklist := service.NewBlocklistChecker(blockStore, cfg.Gate.OnCheckError, cfg.Gate.StoreTimeout, appLogger)
	gate := service.NewAccessGate(st.Licenses, st.Quotas, clock, cfg.Gate, appLogger)
	recorder := service.NewUsageRecorder(st.Quotas, clock, cfg.Gate.DefaultDailyLimit, cfg.Gate.StoreTimeout, appLogger)
	generation := service.NewGenerationService(gate, recorder, provider.NewOpenAIClient(&cfg.Provider, appLogger), &cfg.Provider, appLogger)
	activation := service.NewActivationService(st.Licenses, blocklist, cfg.Gate.ActivationValidity, cfg.Gate.StoreTimeout, appLogger)
	resetScheduler := service.NewResetScheduler(st.Quotas, clock, appLogger)
	licenseService := service.NewLicenseService(st.Licenses, st.Quotas, clock, cfg.Gate, appLogger)
	authService := service.NewAuthService(memstorage.NewUserRepository(cfg.Admin.Username, cfg.Admin.PasswordHash), &cfg.JWT, appLogger)
	apiKeyService := service.NewAPIKeyService(st.APIKeys, appLogger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	if err := router.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		sugarLogger.Fatalf("Invalid trusted proxies: %v", err)
	}
	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))
	router.Use(middleware.RecoveryMiddleware(appLogger))
	router.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORS.AllowOrigins,
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
			"X-API-Key",
		},
		ExposeHeaders: []string{"Content-Length", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}))
	router.Use(middleware.ErrorHandlerMiddleware(appLogger))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	handler.RegisterRoutes(router, handler.Handlers{
		Gate:      handler.NewGateHandler(generation, activation, gate, appLogger),
		License:   handler.NewLicenseHandler(licenseService, appLogger),
		Quota:     handler.NewQuotaHandler(licenseService, blocklist, appLogger),
		Auth:      handler.NewAuthHandler(authService, appLogger),
		Dashboard: handler.NewDashboardHandler(licenseService, appLogger),
		APIKey:    handler.NewAPIKeyHandler(apiKeyService, appLogger),
		Jobs:      handler.NewJobsHandler(resetScheduler, clock, appLogger),
		Health:    handler.NewHealthHandler(pingers, appLogger),
	}, handler.Guards{
		RateLimit: middleware.NewIPRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, appLogger).Handler(),
		Admin:     middleware.AuthMiddleware(authService, appLogger),
		Provision: middleware.APIKeyAuthMiddleware(apiKeyService, apikey.ScopeProvision, appLogger),
		Cron:      middleware.CronSecretMiddleware(cfg.Scheduler.SharedSecret, appLogger),
	})

	g, groupCtx := errgroup.WithContext(appCtx)

	httpServer := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g.Go(func() error {
		sugarLogger.Infof("HTTP server listening on port %s", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		sugarLogger.Info("HTTP server stopped listening.")
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		sugarLogger.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownPeriod)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown error: %w", err)
		}
		sugarLogger.Info("HTTP server shutdown complete.")
		return nil
	})

	if redisEnabled {
		g.Go(func() error {
			err := worker.RunWorkers(groupCtx, cfg, worker.Handlers{
				QuotaReset:    tasks.NewQuotaResetHandler(resetScheduler, appLogger),
				LicenseExpire: tasks.NewLicenseExpireHandler(st.Licenses, appLogger),
			}, appLogger)
			if err != nil {
				return fmt.Errorf("asynq worker error: %w", err)
			}
			return nil
		})
	}

	sugarLogger.Info("Application started. Waiting for interrupt signal or component error...")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		sugarLogger.Errorf("Application shutdown finished with error: %v", err)
		return
	}
	sugarLogger.Info("Application shutdown successfully.")
}
