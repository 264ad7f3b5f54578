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

	"github.com/tutorhub/tutorhub-api/internal/config"
	"github.com/tutorhub/tutorhub-api/internal/domain/auth"
	"github.com/tutorhub/tutorhub-api/internal/domain/balance"
	"github.com/tutorhub/tutorhub-api/internal/domain/course"
	"github.com/tutorhub/tutorhub-api/internal/domain/payment"
	uploadDomain "github.com/tutorhub/tutorhub-api/internal/domain/upload"
	"github.com/tutorhub/tutorhub-api/internal/domain/user"
	"github.com/tutorhub/tutorhub-api/internal/middleware"
	"github.com/tutorhub/tutorhub-api/internal/pkg/database"
	"github.com/tutorhub/tutorhub-api/internal/pkg/fawaterak"
	"github.com/tutorhub/tutorhub-api/internal/pkg/imaging"
	"github.com/tutorhub/tutorhub-api/internal/pkg/jwt"
	"github.com/tutorhub/tutorhub-api/internal/pkg/logger"
	"github.com/tutorhub/tutorhub-api/internal/pkg/response"
	"github.com/tutorhub/tutorhub-api/internal/pkg/storage"
	"github.com/tutorhub/tutorhub-api/internal/realtime"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.LogLevel,
		Environment: cfg.Env,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize logger")
	}

	log.Info().
		Str("env", cfg.Env).
		Str("port", cfg.Port).
		Msg("Starting TutorHub API")

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

	jwtService := jwt.NewService(cfg.JWTSecret, cfg.JWTAccessTTL, cfg.JWTRefreshTTL)

	// ---------- Storage ----------
	var store storage.Storage
	if cfg.R2Configured() {
		r2, err := storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			AccessKeySecret: cfg.R2AccessKeySecret,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create R2 storage")
		}
		store = r2
	} else {
		local, err := storage.NewLocalStorage(cfg.LocalStoragePath, cfg.BackendURL+"/files")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create local storage")
		}
		store = local
		log.Warn().Str("path", cfg.LocalStoragePath).Msg("R2 not configured, serving uploads from local disk")
	}

	// ---------- Payment gateway ----------
	gateway := fawaterak.NewClient(fawaterak.Config{
		BaseURL:     cfg.FawaterakAPIURL,
		APIKey:      cfg.FawaterakAPIKey,
		ProviderKey: cfg.FawaterakProviderKey,
		Timeout:     time.Duration(cfg.FawaterakTimeoutSeconds) * time.Second,
	})
	if !cfg.FawaterakConfigured() {
		log.Warn().Msg("Fawaterak credentials not set, payment endpoints will reject requests")
	}

	// ---------- Repositories ----------
	userRepo := user.NewRepository(db)
	balanceRepo := balance.NewRepository(db)
	paymentRepo := payment.NewRepository(db, balanceRepo)
	courseRepo := course.NewRepository(db)
	uploadRepo := uploadDomain.NewRepository(db)

	// ---------- Realtime hub ----------
	hub := realtime.NewHub(redis)
	go hub.Run()

	// ---------- Services ----------
	authService := auth.NewService(userRepo, jwtService, redis)
	balanceService := balance.NewService(balanceRepo)
	paymentService := payment.NewService(paymentRepo, gateway)
	paymentService.SetNotifier(hub)
	uploadService := uploadDomain.NewService(uploadRepo, store, imaging.NewProcessor(imaging.DefaultConfig()))

	// ---------- Handlers ----------
	authHandler := auth.NewHandler(authService)
	balanceHandler := balance.NewHandler(balanceService)
	paymentHandler := payment.NewHandler(paymentService)
	courseHandler := course.NewHandler(courseRepo)
	uploadHandler := uploadDomain.NewHandler(uploadService)
	wsHandler := realtime.NewHandler(hub, jwtService, cfg.AllowedOrigins)

	authMiddleware := middleware.Auth(jwtService)

	// ---------- Router ----------
	r := chi.NewRouter()

	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recover)
	r.Use(middleware.CORSHandler(cfg.AllowedOrigins))

	// WebSocket endpoint (before Compress)
	r.Get("/ws/payments", wsHandler.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Compress(5))
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.OK(w, map[string]string{
			"status":  "ok",
			"version": "1.0.0",
		})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/auth", authHandler.Routes(authMiddleware))
		r.Mount("/payments", paymentHandler.Routes(authMiddleware))
		r.Mount("/balance", balanceHandler.Routes(authMiddleware))
		r.Mount("/courses", courseHandler.Routes())
		r.Mount("/uploads", uploadHandler.Routes(authMiddleware))
	})

	// Gateway callbacks live outside /api/v1: the webhook is signed, not
	// authenticated, and the status pages are plain redirect targets.
	r.Mount("/webhooks", paymentHandler.WebhookRoutes())
	r.Mount("/payment", paymentHandler.StatusRoutes())

	if !cfg.R2Configured() {
		fileServer := http.StripPrefix("/files/", http.FileServer(http.Dir(cfg.LocalStoragePath)))
		r.Get("/files/*", fileServer.ServeHTTP)
	}

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
	hub.Shutdown()

	log.Info().Msg("Server exited properly")
}
