package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	"github.com/sitework/backend/internal/cache"
	"github.com/sitework/backend/internal/config"
	"github.com/sitework/backend/internal/database"
	"github.com/sitework/backend/internal/handlers"
	"github.com/sitework/backend/internal/mailer"
	"github.com/sitework/backend/internal/middleware"
	"github.com/sitework/backend/internal/services"
	"github.com/sitework/backend/pkg/logger"
	"github.com/sitework/backend/pkg/utils"
)

func main() {
	_ = godotenv.Load()
	logger.Init()

	cfg := config.Load()
	utils.ConfigurePasswordHashing(cfg.Auth.ArgonMemoryKiB, cfg.Auth.ArgonTime, cfg.Auth.ArgonParallelism)

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	var store cache.Store
	if cfg.Redis.Addr != "" {
		redisStore, err := cache.NewRedisStore(context.Background(), cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		store = redisStore
	} else {
		memStore := cache.NewMemoryStore()
		memStore.StartCleanup(time.Minute)
		defer memStore.Stop()
		store = memStore
		logger.Warn("ephemeral_store_in_memory", map[string]interface{}{
			"hint": "set REDIS_ADDR for multi-instance deployments",
		})
	}

	var mail mailer.Mailer = mailer.NoopMailer{}
	if cfg.SMTP.Host != "" {
		mail = mailer.NewSMTPMailer(cfg.SMTP)
	}

	authService := services.NewAuthService(db, store, cfg.Auth)

	authHandler := handlers.NewAuthHandler(authService, mail, cfg)
	mfaHandler := handlers.NewMFAHandler(authService, cfg)

	authMiddleware := middleware.NewAuthMiddleware(authService, cfg.Auth.RequestTimeout)
	credentialLimiter := middleware.NewRateLimiter(10)
	defer credentialLimiter.Stop()

	app := fiber.New(fiber.Config{BodyLimit: 1 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.FrontendURL))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/register", credentialLimiter.Handler(), authHandler.Register)
	authRoutes.Post("/login", credentialLimiter.Handler(), authHandler.Login)
	authRoutes.Post("/logout", authMiddleware.OptionalAuth, authHandler.Logout)
	authRoutes.Get("/me", authMiddleware.RequireAuth, authHandler.Me)

	authRoutes.Post("/mfa/setup", authMiddleware.RequireAuth, mfaHandler.Setup)
	authRoutes.Post("/mfa/enable", authMiddleware.RequireAuth, mfaHandler.Enable)
	authRoutes.Post("/mfa/disable", authMiddleware.RequireAuth, mfaHandler.Disable)
	authRoutes.Post("/mfa/verify", credentialLimiter.Handler(), mfaHandler.Verify)

	authRoutes.Post("/password-reset/request", credentialLimiter.Handler(), authHandler.RequestPasswordReset)
	authRoutes.Post("/password-reset/reset", credentialLimiter.Handler(), authHandler.ResetPassword)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":    cfg.Server.Port,
		"address": listenAddr,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		shutdownDone := make(chan struct{})
		go func() {
			_ = app.Shutdown()
			close(shutdownDone)
		}()
		select {
		case <-shutdownDone:
		case <-time.After(10 * time.Second):
			log.Print("forced shutdown timeout reached")
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
