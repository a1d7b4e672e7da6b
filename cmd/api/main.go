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
	"github.com/rs/zerolog/log"

	"github.com/craftvale/craftvale-api/internal/config"
	"github.com/craftvale/craftvale-api/internal/domain/account"
	"github.com/craftvale/craftvale-api/internal/domain/donation"
	"github.com/craftvale/craftvale-api/internal/domain/rank"
	"github.com/craftvale/craftvale-api/internal/middleware"
	"github.com/craftvale/craftvale-api/internal/pkg/archive"
	"github.com/craftvale/craftvale-api/internal/pkg/database"
	"github.com/craftvale/craftvale-api/internal/pkg/discord"
	"github.com/craftvale/craftvale-api/internal/pkg/jwt"
	"github.com/craftvale/craftvale-api/internal/pkg/logger"
	"github.com/craftvale/craftvale-api/internal/pkg/metrics"
	"github.com/craftvale/craftvale-api/internal/pkg/midtranspay"
	pkgresponse "github.com/craftvale/craftvale-api/internal/pkg/response"
	"github.com/craftvale/craftvale-api/internal/pkg/ws"
)

func main() {
	cfg := config.Load()
	if err := logger.Init(logger.Config{Level: cfg.LogLevel, Environment: cfg.Env}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting Craftvale API")

	db, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer database.ClosePostgres(db)

	redis, err := database.NewRedis(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer database.CloseRedis(redis)

	metrics.Init()
	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL)

	// ---------- Repositories ----------
	accountRepo := account.NewRepository(db)
	rankRepo := rank.NewRepository(db)
	donationRepo := donation.NewRepository(db)

	// ---------- Rank catalog ----------
	rankCache := rank.NewRedisCache(redis, cfg.RankCacheTTL)
	catalog := rank.NewCatalog(rankRepo, rankCache)

	// ---------- Fan-out sinks ----------
	discordClient := discord.NewClient(discord.Config{
		BotToken: cfg.DiscordBotToken,
		GuildID:  cfg.DiscordGuildID,
	})
	if !discordClient.Configured() {
		log.Warn().Msg("Discord bot not configured, role sync disabled")
	}

	hub := ws.NewHub()
	go hub.Run()

	var uploader archive.Uploader
	if cfg.R2AccountID != "" {
		uploader, err = archive.NewR2Uploader(archive.Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create archive storage")
		}
	} else {
		log.Warn().Msg("Archive storage not configured, ledger export disabled")
	}

	outbox := donation.NewOutbox(cfg.OutboxQueueSize)
	outboxCtx, stopOutbox := context.WithCancel(context.Background())
	go outbox.Run(outboxCtx)

	// ---------- Services ----------
	resolver := donation.NewResolver(accountRepo)
	notifier := donation.NewNotifier(discordClient, hub, cfg.DiscordAlertWebhookURL)
	donationService := donation.NewService(donationRepo, accountRepo, catalog, resolver, notifier, outbox, uploader)

	// ---------- Handlers ----------
	midtransChecker := midtranspay.NewChecker(cfg.MidtransServerKey, cfg.MidtransProduction)
	donationHandler := donation.NewHandler(donationService, catalog, hub,
		cfg.StripeWebhookSecret, midtransChecker, cfg.KofiVerificationToken)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		pkgresponse.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/donations", donationHandler.Routes())
		r.Mount("/admin", donationHandler.AdminRoutes(authMiddleware, middleware.RequireAdmin))
	})
	r.Mount("/webhooks", donationHandler.WebhookRoutes())

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
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Flush queued side effects before exiting.
	stopOutbox()
	outbox.Wait()

	log.Info().Msg("Server exited properly")
}
