package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pquerna/otp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FilipeAphrody/sentinel-mfa/internal/config"
	delivery "github.com/FilipeAphrody/sentinel-mfa/internal/delivery/http"
	"github.com/FilipeAphrody/sentinel-mfa/internal/logger"
	"github.com/FilipeAphrody/sentinel-mfa/internal/repository"
	"github.com/FilipeAphrody/sentinel-mfa/internal/usecase"
	"github.com/FilipeAphrody/sentinel-mfa/pkg/security"

	_ "github.com/lib/pq" // Postgres driver
)

func main() {
	configFile := flag.String("config", "", "path to a config file (overrides CONFIG_FILE)")
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configFile string) error {
	// 1. Load Configuration
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	// 2. Initialize Infrastructure (Persistence)
	db, err := sql.Open("postgres", cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisURL,
	})
	defer rdb.Close()

	// 3. Initialize Repositories
	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewRedisTokenRepo(rdb)

	// 4. Initialize Business Logic (Usecases)
	totp := security.NewTOTP(security.TOTPOptions{
		Issuer: cfg.TOTPIssuer,
		Period: cfg.TOTPPeriod,
		Skew:   cfg.TOTPSkew,
		Digits: otp.Digits(cfg.TOTPDigits),
	})
	authUsecase := usecase.NewAuthUsecase(usecase.Repositories{
		Users:      userRepo,
		Tokens:     tokenRepo,
		Challenges: tokenRepo,
		Codes:      tokenRepo,
	}, totp, usecase.Options{
		JWTSecret:       cfg.JWTSecret,
		JWTIssuer:       cfg.JWTIssuer,
		AccessTTL:       cfg.AccessTTL,
		RefreshTTL:      cfg.RefreshTTL,
		ChallengeTTL:    cfg.ChallengeTTL,
		MaxCodeAttempts: cfg.MaxAttempts,
	}, log.Named("usecase"))

	// 5. Setup Framework
	e := echo.New()
	e.HideBanner = true

	v, err := delivery.NewValidator()
	if err != nil {
		return err
	}
	e.Validator = v

	renderer, err := delivery.NewRenderer()
	if err != nil {
		return err
	}
	e.Renderer = renderer

	// 6. Global Middlewares
	e.Use(delivery.RequestLogger(log.Named("http")))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.Secure())

	// 7. Register Delivery Handlers (Routes)
	v1 := e.Group("/v1")
	delivery.NewAuthHandler(v1, authUsecase, log.Named("auth"))
	delivery.NewMFAHandler(v1, authUsecase, log.Named("mfa"))
	delivery.NewAccountHandler(v1, cfg.JWTSecret)

	// 8. Health Check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, echo.Map{
			"status":  "healthy",
			"version": "1.0.0",
			"time":    time.Now().Format(time.RFC3339),
		})
	})

	// 9. Start Server with Graceful Shutdown
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting sentinel mfa server", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("shutting down the server due to error: %w", err)
	}

	log.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exiting")
	return nil
}
