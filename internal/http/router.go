// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, sessions, idempotency, and rate limiting.
//
// Route groups:
//   - public API:   /subscriptions, /subscriptions/confirm
//   - publish API:  /newsletters (session or Basic auth, idempotent)
//   - pages:        /login, /admin/* (cookie session, HTML, gzip)
//   - operational:  /health_check, /health, /metrics, /swagger/*any
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-newsletter-backend/internal/auth"
	"github.com/tbourn/go-newsletter-backend/internal/config"
	"github.com/tbourn/go-newsletter-backend/internal/domain"
	"github.com/tbourn/go-newsletter-backend/internal/email"
	"github.com/tbourn/go-newsletter-backend/internal/http/handlers"
	"github.com/tbourn/go-newsletter-backend/internal/http/middleware"
	"github.com/tbourn/go-newsletter-backend/internal/services"
	"github.com/tbourn/go-newsletter-backend/internal/session"
	"github.com/tbourn/go-newsletter-backend/internal/signing"
)

// Deps are the infrastructure handles the routes need.
type Deps struct {
	DB       *gorm.DB
	Email    email.Client
	Sessions session.Store
	Verifier *auth.Verifier  // optional; built from DB and cfg.HashWorkers when nil
	Log      *zerolog.Logger // service log sink; nil disables service logs
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine and returns the idempotency store so the caller can run its janitor.
//
// Global middleware order:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII and secret scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and security headers
//
// Per group: session loading, auth gates, idempotency key extraction and
// rate limiting (after auth so buckets are keyed by user where possible).
func RegisterRoutes(r *gin.Engine, d Deps, cfg config.Config) *services.IdempotencyStore {
	r.HandleMethodNotAllowed = true
	r.SetHTMLTemplate(handlers.Templates())

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskQueryParams: []string{"error", "info"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) CORS posture and security headers
	r.Use(corsMiddleware(cfg.CORS.AllowedOrigins)...)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Dependency injection: services ← repo/db/email
	verifier := d.Verifier
	if verifier == nil {
		verifier = auth.NewVerifier(d.DB, auth.NewHashPool(cfg.HashWorkers))
	}
	idem := &services.IdempotencyStore{
		DB:          d.DB,
		TTL:         cfg.IdempotencyTTL,
		WaitTimeout: cfg.IdempotencyWait,
		StaleAfter:  cfg.IdempotencyStale,
	}
	subSvc := &services.SubscriptionService{DB: d.DB, Email: d.Email, BaseURL: cfg.BaseURL, Log: d.Log}
	newsSvc := &services.NewsletterService{
		DB:          d.DB,
		Email:       d.Email,
		Idempotency: idem,
		SendTimeout: cfg.Email.Timeout,
		Log:         d.Log,
	}
	accSvc := &services.AccountService{DB: d.DB, Verifier: verifier}
	sessions := &session.Manager{
		Store:      d.Sessions,
		CookieName: cfg.Session.CookieName,
		TTL:        cfg.Session.TTL,
		Secure:     cfg.Session.Secure,
	}
	h := handlers.New(handlers.Deps{
		Subscriptions: subSvc,
		Newsletters:   newsSvc,
		Accounts:      accSvc,
		Credentials:   verifier,
		Sessions:      sessions,
		Codec:         signing.NewCodec([]byte(cfg.HMACSecret)),
	})

	idemLookup := func(ctx context.Context, userID string, key domain.IdempotencyKey) (bool, error) {
		rec, err := idem.Get(ctx, userID, key)
		return rec != nil, err
	}
	newRL := func(key middleware.KeyFunc) gin.HandlerFunc {
		return middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, key).Handler()
	}

	// Liveness/health
	r.GET("/health_check", h.HealthCheck)
	r.GET("/health", h.Health)

	// API docs
	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	// Public and publish API
	api := groupWithPrefix(r, cfg.APIBasePath)
	{
		api.POST("/subscriptions", newRL(middleware.KeyByIP()), h.Subscribe)
		api.GET("/subscriptions/confirm", h.ConfirmSubscription)

		api.POST("/newsletters",
			middleware.Sessions(sessions),
			middleware.SessionOrBasicAuth(verifier),
			middleware.IdempotencyKey(idemLookup),
			newRL(middleware.KeyByUserOrIP()),
			h.PublishNewsletter,
		)
	}

	// Server-rendered pages
	pageHeaders := middleware.SecurityHeaders(middleware.SecurityOptions{
		NoStore:               true,
		ContentSecurityPolicy: middleware.DefaultPagePolicy,
	})
	pages := r.Group("", pageHeaders, gzip.Gzip(gzip.DefaultCompression), middleware.Sessions(sessions))
	{
		pages.GET("/login", h.LoginForm)
		pages.POST("/login", newRL(middleware.KeyByIP()), h.Login)

		admin := pages.Group("/admin", middleware.RequireLogin())
		admin.GET("/dashboard", h.Dashboard)
		admin.GET("/password", h.PasswordForm)
		admin.POST("/password", h.ChangePassword)
		admin.POST("/logout", h.Logout)
		admin.GET("/newsletters", h.PublishForm)
		admin.POST("/newsletters",
			middleware.IdempotencyKey(idemLookup),
			newRL(middleware.KeyByUserOrIP()),
			h.PublishFromAdmin,
		)
	}

	return idem
}

// corsMiddleware returns the CORS posture: allow all origins when none are
// configured, otherwise echo allow-listed origins.
func corsMiddleware(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		// Force ACAO: * even for requests without an Origin header.
		force := func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		}
		return []gin.HandlerFunc{force, cors.New(base)}
	}

	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	echo := func(c *gin.Context) {
		if origin := c.GetHeader("Origin"); origin != "" {
			if _, ok := allowed[origin]; ok {
				h := c.Writer.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
		}
		c.Next()
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{echo, cors.New(base)}
}

// limitBody caps the request body size for all endpoints to maxBytes using
// http.MaxBytesReader. Requests exceeding the cap fail on read.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
