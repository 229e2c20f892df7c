// Command server runs the newsletter HTTP backend.
//
// Configuration comes from the environment (optionally seeded from a .env
// file); see internal/config for the variables.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	_ "github.com/tbourn/go-newsletter-backend/docs"
	"github.com/tbourn/go-newsletter-backend/internal/auth"
	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	httpapi "github.com/tbourn/go-newsletter-backend/internal/http"
	"github.com/tbourn/go-newsletter-backend/internal/observability"
	"github.com/tbourn/go-newsletter-backend/internal/repo"
	"github.com/tbourn/go-newsletter-backend/internal/session"
	"github.com/tbourn/go-newsletter-backend/internal/sysutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	adminUserID    = "ddf8994f-d522-4659-8d02-c1d479057be6"
	adminUsername  = "admin"
	janitorEvery   = 10 * time.Minute
	shutdownBudget = 15 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stdout, cfg.LogPretty)
	gin.SetMode(cfg.GinMode)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOTel, err := observability.Setup(ctx, cfg.OTEL, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	db, err := repo.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	verifier := auth.NewVerifier(db, auth.NewHashPool(cfg.HashWorkers))
	if err := seedAdmin(ctx, db, verifier, cfg.AdminPassword); err != nil {
		return err
	}

	mailer, err := newEmailClient(cfg.Email)
	if err != nil {
		return err
	}

	store, closeStore, err := newSessionStore(ctx, cfg.Session)
	if err != nil {
		return err
	}
	defer closeStore()

	svcLog := log.With().Str("component", "services").Logger()
	r := gin.New()
	idem := httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:       db,
		Email:    mailer,
		Sessions: store,
		Verifier: verifier,
		Log:      &svcLog,
	}, cfg)

	janitorLog := log.With().Str("component", "idempotency_janitor").Logger()
	go idem.RunJanitor(ctx, janitorEvery, &janitorLog)

	srv := &http.Server{
		Addr:              net.JoinHostPort("", cfg.Port),
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}

// seedAdmin creates the bootstrap admin on first start.
func seedAdmin(ctx context.Context, db *gorm.DB, v *auth.Verifier, password string) error {
	hash, err := v.HashPassword(ctx, password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	created, err := repo.SeedAdmin(ctx, db, adminUserID, adminUsername, hash)
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}
	if created {
		log.Info().Str("user_id", adminUserID).Msg("seeded admin user")
	}
	return nil
}

func newEmailClient(cfg config.EmailConfig) (email.Client, error) {
	sender, err := domain.ParseSubscriberEmail(cfg.Sender)
	if err != nil {
		return nil, fmt.Errorf("EMAIL_SENDER: %w", err)
	}
	switch cfg.Provider {
	case "sendgrid":
		return email.NewSendGridClient(cfg.BaseURL, sender, cfg.APIKey, cfg.Timeout), nil
	default:
		return email.NewPostmarkClient(cfg.BaseURL, sender, cfg.APIKey, cfg.Timeout), nil
	}
}

// newSessionStore uses Redis when REDIS_URL is set and an in-process store
// otherwise. The returned func releases the connection.
func newSessionStore(ctx context.Context, cfg config.SessionConfig) (session.Store, func(), error) {
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set; sessions are kept in memory")
		return session.NewMemoryStore(), func() {}, nil
	}
	rdb, err := session.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	return session.NewRedisStore(rdb), func() {
		if err := rdb.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}, nil
}
