package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"adearn-backend/internal/config"
	"adearn-backend/internal/db"
	"adearn-backend/internal/handlers"
	"adearn-backend/internal/logger"
	"adearn-backend/internal/metrics"
	"adearn-backend/internal/services"
)

func main() {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.New("adearn-api", "info").WithError(err).Fatal("Failed to load config")
	}

	log := logger.New("adearn-api", cfg.LogLevel)
	if envErr != nil {
		log.Info("No .env file found, using environment variables")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	redisFor := func(purpose string) *redis.Client {
		if redisClient == nil {
			client, err := services.NewRedisClient(cfg)
			if err != nil {
				log.WithError(err).WithField("purpose", purpose).Fatal("Failed to connect to Redis")
			}
			redisClient = client
		}
		return redisClient
	}

	var store services.Store
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		conn, err := db.Open(cfg.MySQL, db.Options{})
		if err != nil {
			log.WithError(err).Fatal("Failed to connect to MySQL")
		}
		store = services.NewMySQLStore(conn)
	case config.StoreMemory:
		log.Warn("Using in-memory store; data is lost on restart")
		store = services.NewMemoryStore()
	default:
		store = services.NewRedisStore(redisFor("store"))
	}
	log.WithField("driver", cfg.StoreDriver).Info("Store ready")

	var guard services.ProcessingGuard
	if cfg.ClickGuard == config.GuardRedis {
		guard = services.NewRedisGuard(redisFor("click guard"), services.TTLClickProcessing)
	} else {
		memGuard := services.NewMemoryGuard(services.TTLClickProcessing)
		go memGuard.Run(ctx, time.Minute)
		guard = memGuard
	}

	var limiter services.RateLimiter = services.NewMemoryRateLimiter()
	if redisClient != nil {
		limiter = services.NewRedisRateLimiter(redisClient)
	}

	hub := handlers.NewHub(log)
	go hub.Run(ctx)

	jwtService := services.NewJWTService(cfg.JWTSecret, 0)
	ledger := services.NewLedger(store, hub, log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router, err := handlers.NewRouter(handlers.Dependencies{
		Store:       store,
		Ledger:      ledger,
		Rewards:     services.NewAdRewardService(store, hub, m, log, cfg.DailyAdCap),
		Links:       services.NewLinkService(store, log),
		Clicks:      services.NewClickService(store, guard, services.NewClickSigner(cfg.HashSecret), hub, m, log),
		Withdrawals: services.NewWithdrawalService(store, hub, m, log, cfg.Withdrawals, cfg.RefundOnReject),
		Reports:     services.NewReportService(store),
		JWT:         jwtService,
		Hub:         hub,

		TokenIssuerKey: cfg.TokenIssuerKey,
		TrustedProxies: cfg.TrustedProxies,

		Limiter:            limiter,
		RateLimitPerMinute: cfg.RateLimitPerMinute,

		Metrics:  m,
		Registry: reg,
		Log:      log,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed to build router")
	}
	if cfg.TokenIssuerKey == "" {
		log.Info("TOKEN_ISSUER_KEY not set; token endpoint disabled")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	cancel()

	closeAll(log, store, redisClient, cfg.StoreDriver == config.StoreRedis)
	log.Info("Server exited")
}

func closeAll(log *logrus.Entry, store services.Store, client *redis.Client, storeOwnsClient bool) {
	if err := store.Close(); err != nil {
		log.WithError(err).Warn("Failed to close store")
	}
	if client != nil && !storeOwnsClient {
		if err := client.Close(); err != nil {
			log.WithError(err).Warn("Failed to close Redis client")
		}
	}
}
