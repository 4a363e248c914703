package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/ptcearn/ptcearn-api/internal/config"
	"github.com/ptcearn/ptcearn-api/internal/domain/admin"
	"github.com/ptcearn/ptcearn-api/internal/domain/auth"
	"github.com/ptcearn/ptcearn-api/internal/domain/campaign"
	"github.com/ptcearn/ptcearn-api/internal/domain/dashboard"
	"github.com/ptcearn/ptcearn-api/internal/domain/ledger"
	"github.com/ptcearn/ptcearn-api/internal/domain/reward"
	"github.com/ptcearn/ptcearn-api/internal/domain/voucher"
	"github.com/ptcearn/ptcearn-api/internal/domain/wallet"
	"github.com/ptcearn/ptcearn-api/internal/domain/withdrawal"
	"github.com/ptcearn/ptcearn-api/internal/middleware"
	"github.com/ptcearn/ptcearn-api/internal/pkg/database"
	"github.com/ptcearn/ptcearn-api/internal/pkg/jwt"
	"github.com/ptcearn/ptcearn-api/internal/pkg/logger"
	pkgresponse "github.com/ptcearn/ptcearn-api/internal/pkg/response"
	"github.com/ptcearn/ptcearn-api/internal/pkg/revocation"
	"github.com/ptcearn/ptcearn-api/internal/pkg/storage"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env, LogFile: cfg.LogFile}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Str("store", cfg.StoreDriver).
		Msg("Starting PTCEarn API")

	var (
		db    *sqlx.DB
		store ledger.Store
	)
	switch cfg.StoreDriver {
	case "memory":
		log.Warn().Msg("Using in-memory ledger store, balances are lost on restart")
		store = ledger.NewMemoryStore()
	default:
		var err error
		db, err = database.NewPostgres(database.PoolConfig{
			URL:          cfg.DatabaseURL,
			MaxOpenConns: cfg.DBMaxOpenConns,
			MaxIdleConns: cfg.DBMaxIdleConns,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer database.ClosePostgres(db)

		if err := database.EnsureSchema(db); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply schema")
		}
		store = ledger.NewPostgresStore(db)
	}

	rdb, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(rdb)

	archive, err := storage.New(storage.Config{
		Backend:           cfg.VoucherExportBackend,
		LocalPath:         cfg.VoucherExportPath,
		LocalURL:          cfg.VoucherExportURL,
		S3Endpoint:        cfg.S3Endpoint,
		S3Region:          cfg.S3Region,
		S3Bucket:          cfg.S3Bucket,
		S3AccessKey:       cfg.S3AccessKey,
		S3SecretKey:       cfg.S3SecretKey,
		R2AccountID:       cfg.R2AccountID,
		R2AccessKeyID:     cfg.R2AccessKeyID,
		R2AccessKeySecret: cfg.R2AccessKeySecret,
		R2BucketName:      cfg.R2BucketName,
		R2PublicURL:       cfg.R2PublicURL,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize voucher export storage")
	}

	r := newRouter(cfg, deps{store: store, db: db, redis: rdb, archive: archive})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exited properly")
}

type deps struct {
	store   ledger.Store
	db      *sqlx.DB      // nil with the memory store
	redis   *redis.Client // nil when Redis is not configured
	archive storage.Storage
	clock   ledger.Clock
}

func newRouter(cfg *config.Config, d deps) http.Handler {
	if d.clock == nil {
		d.clock = ledger.SystemClock{}
	}

	settings := ledger.NewSettings(ledger.Defaults{
		ConversionRate: cfg.DefaultConversionRate,
		CostPer1000:    cfg.DefaultCostPer1000,
		ReferralShare:  cfg.DefaultReferralShare,
	})

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)
	revoked := revocation.NewStore(d.redis)

	// ---------- Services ----------
	ledgerService := ledger.NewService(d.store)
	authService := auth.NewService(d.store, jwtService, revoked, d.clock)
	rewardService := reward.NewService(d.store, settings, d.clock)
	voucherService := voucher.NewService(d.store, d.clock, d.archive)
	withdrawalService := withdrawal.NewService(d.store, settings, d.clock)
	campaignService := campaign.NewService(d.store, settings, d.clock, cfg.CampaignViewSeconds)
	settingsService := admin.NewSettingsService(d.store, settings, d.clock)

	// ---------- Handlers ----------
	authHandler := auth.NewHandler(authService)
	rewardHandler := reward.NewHandler(rewardService)
	voucherHandler := voucher.NewHandler(voucherService)
	withdrawalHandler := withdrawal.NewHandler(withdrawalService)
	campaignHandler := campaign.NewHandler(campaignService)
	walletHandler := wallet.NewHandler(ledgerService)
	dashboardHandler := dashboard.NewHandler(ledgerService)
	adminHandler := admin.NewHandler(voucherService, withdrawalService, campaignService, settingsService)

	authMiddleware := middleware.Auth(jwtService, revoked)
	viewLimiter := middleware.NewRateLimiter(d.redis, "views", cfg.AdViewRateLimit, cfg.AdViewRateWindow)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		status, healthy := database.Health(r.Context(), d.db, d.redis)
		if !healthy {
			pkgresponse.JSON(w, http.StatusServiceUnavailable, status)
			return
		}
		pkgresponse.OK(w, status)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
			pkgresponse.OK(w, map[string]string{"message": "pong"})
		})

		r.Mount("/auth", authHandler.Routes(authMiddleware))
		r.Mount("/campaigns", campaignHandler.Routes(authMiddleware))
		r.Mount("/views", rewardHandler.Routes(authMiddleware, viewLimiter.Handler))
		r.Mount("/vouchers", voucherHandler.Routes(authMiddleware))
		r.Mount("/withdrawals", withdrawalHandler.Routes(authMiddleware))
		r.Mount("/wallet", walletHandler.Routes(authMiddleware))
		r.Mount("/stats", dashboard.Routes(dashboardHandler))
	})

	r.Mount("/api/admin", adminHandler.Routes(authMiddleware))

	return r
}
