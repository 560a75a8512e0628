// Package httpapi builds the Gin engine for ticketd: the public chat
// endpoints, the operator API and the shared middleware stack in front of
// them.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/tbourn/go-ticket-intake/internal/config"
	"github.com/tbourn/go-ticket-intake/internal/faq"
	"github.com/tbourn/go-ticket-intake/internal/http/handlers"
	"github.com/tbourn/go-ticket-intake/internal/http/middleware"
	"github.com/tbourn/go-ticket-intake/internal/repo"
)

// maxBodyBytes caps every request body. Chat messages are limited to a few
// thousand characters well below this.
const maxBodyBytes = 1 << 20

// Deps are the application services the router exposes.
type Deps struct {
	// DB backs idempotency records, admin ETags and the health probe.
	DB       *gorm.DB
	Chat     handlers.ChatService
	Messages handlers.MessageService
	// FAQ may be nil.
	FAQ       *faq.KnowledgeBase
	StartedAt time.Time
}

// RegisterRoutes installs the middleware stack and every route on r. The
// chat API sits at the root and the operator API under cfg.APIBasePath.
//
// Order: tracing, request ID, access log, recovery, body cap, metrics,
// gzip, idempotency, rate limit, CORS, security headers. The idempotency
// check runs before the limiter so replays are never throttled.
func RegisterRoutes(r *gin.Engine, deps Deps, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))
	r.Use(middleware.RequestID())
	// The development logger prints requester addresses in clear.
	if cfg.LogPretty {
		r.Use(middleware.Logger())
	} else {
		r.Use(middleware.RedactingLogger(middleware.RedactOptions{
			MaskHeaders: []string{"X-API-Key"},
		}))
	}
	r.Use(middleware.Recovery())
	r.Use(limitBody(maxBodyBytes))

	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/swagger"})))

	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, replayLookup(deps.DB)))
	r.Use(middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByRouteAndIP()).
		Exempt("/health", "/metrics").
		Handler())

	r.Use(corsHandlers(cfg.CORS.AllowedOrigins)...)
	// Chat data is never cached; admin listings revalidate against the ETag.
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      []string{"/chat", "/reset"},
		Revalidate:   []string{cfg.APIBasePath},
		DocsPrefix:   "/swagger",
		EnablePolicy: true,
	}))

	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	h := handlers.New(deps.Chat, deps.Messages, deps.FAQ, handlers.Options{
		DB:             deps.DB,
		IdempotencyTTL: cfg.IdempotencyTTL,
		StartedAt:      deps.StartedAt,
	})

	if cfg.SwaggerEnabled {
		r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/faq", h.ListFAQ)
	r.POST("/chat", h.PostChat)
	r.POST("/reset/:requester", h.ResetConversation)

	admin := groupWithPrefix(r, cfg.APIBasePath)
	admin.GET("/messages", h.ListMessages)
	admin.POST("/messages/:id/reprocess", h.ReprocessMessage)
}

// replayLookup asks the store whether an Idempotency-Key has a live reply.
// Without a database nothing is ever a replay.
func replayLookup(db *gorm.DB) middleware.IdempotencyLookup {
	return func(ctx context.Context, key string, now time.Time) (bool, error) {
		if db == nil {
			return false, nil
		}
		return repo.IdempotencyKeyExists(ctx, db, key, now)
	}
}

// corsHandlers allows every origin when origins is empty and otherwise only
// the listed ones. Allowed origins are echoed even on plain (non-preflight)
// requests, and "*" is set even without an Origin header so probes and
// curl see the same policy as browsers.
func corsHandlers(origins []string) []gin.HandlerFunc {
	base := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.HeaderIdempotencyKey},
		ExposeHeaders: []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed"},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 {
		base.AllowAllOrigins = true
		return []gin.HandlerFunc{
			func(c *gin.Context) {
				c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
				c.Next()
			},
			cors.New(base),
		}
	}

	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	base.AllowOrigins = origins
	return []gin.HandlerFunc{
		func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); allowed[origin] {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
			c.Next()
		},
		cors.New(base),
	}
}

// limitBody caps request bodies at maxBytes; reads past it fail.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" and "" as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
