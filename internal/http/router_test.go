package httpapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-ticket-intake/internal/config"
	"github.com/tbourn/go-ticket-intake/internal/faq"
	"github.com/tbourn/go-ticket-intake/internal/http/middleware"
	"github.com/tbourn/go-ticket-intake/internal/repo"
	"github.com/tbourn/go-ticket-intake/internal/services"
)

// --- tiny chat stub ---
type stubChat struct{ calls atomic.Int32 }

func (s *stubChat) Reply(_ context.Context, requester, _ string) (services.ChatReply, error) {
	s.calls.Add(1)
	if !strings.Contains(requester, "@") {
		return services.ChatReply{}, services.ErrInvalidRequester
	}
	return services.ChatReply{Response: "hello " + requester}, nil
}
func (s *stubChat) Reset(string) bool        { return false }
func (s *stubChat) ActiveConversations() int { return 0 }

// --- test DB helper (pure-Go sqlite, no CGO) ---
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:router_%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newDeps(t *testing.T) (Deps, *stubChat) {
	t.Helper()
	db := newTestDB(t)
	chat := &stubChat{}
	return Deps{
		DB:        db,
		Chat:      chat,
		Messages:  &services.MessageService{Store: repo.NewStore(db)},
		StartedAt: time.Now(),
	}, chat
}

func baseConfig() config.Config {
	return config.Config{
		APIBasePath:    "/admin",
		RateRPS:        100,
		RateBurst:      10,
		CORS:           config.CORSConfig{AllowedOrigins: nil}, // triggers AllowAllOrigins branch
		Security:       config.SecurityConfig{EnableHSTS: false, HSTSMaxAge: 0},
		OTEL:           config.OTELConfig{ServiceName: "test-svc"},
		IdempotencyTTL: time.Hour,
	}
}

func TestRegisterRoutes_CORSAllowAll_Health_Metrics_Fallbacks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps, _ := newDeps(t)
	RegisterRoutes(r, deps, baseConfig())

	// /health works
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"healthy"`) {
		t.Fatalf("unexpected health body: %s", w.Body.String())
	}
	// CORS (AllowAllOrigins) → header "*"
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("AllowAllOrigins expected '*', got %q", got)
	}

	// /metrics is wired
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(w.Body.Bytes()) == 0 {
		t.Fatalf("GET /metrics bad: code=%d len=%d", w.Code, w.Body.Len())
	}

	// NoRoute → 404
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/nope", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("GET /nope expected 404, got %d", w.Code)
	}

	// NoMethod → 405 (POST /health)
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/health", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST /health expected 405, got %d", w.Code)
	}
}

func TestRegisterRoutes_CORSWithOrigins_HeaderEcho(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	cfg := baseConfig()
	cfg.CORS = config.CORSConfig{AllowedOrigins: []string{"http://example.com"}}
	deps, _ := newDeps(t)
	RegisterRoutes(r, deps, cfg)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://example.com")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("GET /health = %d", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://example.com" {
		t.Fatalf("expected ACAO echo, got %q", got)
	}
}

func TestRegisterRoutes_ChatIdempotencyThroughStack(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps, chat := newDeps(t)
	RegisterRoutes(r, deps, baseConfig())

	post := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{"message":"hi","requester":"a@b.com"}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.HeaderIdempotencyKey, "retry-1")
		r.ServeHTTP(w, req)
		return w
	}

	if w := post(); w.Code != http.StatusOK {
		t.Fatalf("first POST /chat = %d %s", w.Code, w.Body.String())
	}
	w := post()
	if w.Code != http.StatusOK || w.Header().Get("Idempotency-Replayed") != "true" {
		t.Fatalf("expected replay, got %d replayed=%q", w.Code, w.Header().Get("Idempotency-Replayed"))
	}
	if chat.calls.Load() != 1 {
		t.Fatalf("turn ran %d times", chat.calls.Load())
	}

	// Malformed keys are rejected before the handler.
	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chat", bytes.NewBufferString(`{}`))
	req.Header.Set(middleware.HeaderIdempotencyKey, "bad key with spaces")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad key, got %d", w.Code)
	}
}

func TestRegisterRoutes_AdminUnderBasePath(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps, _ := newDeps(t)
	cfg := baseConfig()
	cfg.APIBasePath = "/ops"
	RegisterRoutes(r, deps, cfg)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ops/messages", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("GET /ops/messages = %d", w.Code)
	}
	if w.Header().Get("ETag") == "" {
		t.Fatalf("expected ETag on admin list")
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin/messages", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("default base path must not be mounted, got %d", w.Code)
	}
}

func TestRegisterRoutes_GzipAndSwagger(t *testing.T) {
	gin.SetMode(gin.TestMode)

	t.Run("gzip when accepted", func(t *testing.T) {
		r := gin.New()
		deps, _ := newDeps(t)
		kb, err := faq.Load("", 0)
		if err != nil {
			t.Fatalf("faq: %v", err)
		}
		deps.FAQ = kb
		RegisterRoutes(r, deps, baseConfig())

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/faq", nil)
		req.Header.Set("Accept-Encoding", "gzip")
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("GET /faq = %d", w.Code)
		}
		if w.Header().Get("Content-Encoding") != "gzip" {
			t.Fatalf("expected gzip encoding, headers=%v", w.Header())
		}
	})

	t.Run("swagger disabled", func(t *testing.T) {
		r := gin.New()
		deps, _ := newDeps(t)
		RegisterRoutes(r, deps, baseConfig())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
		if w.Code != http.StatusNotFound {
			t.Fatalf("expected 404 with swagger disabled, got %d", w.Code)
		}
	})

	t.Run("swagger enabled", func(t *testing.T) {
		r := gin.New()
		deps, _ := newDeps(t)
		cfg := baseConfig()
		cfg.SwaggerEnabled = true
		RegisterRoutes(r, deps, cfg)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/swagger/index.html", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("expected swagger UI, got %d", w.Code)
		}
	})
}

func Test_limitBody_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	// tiny cap to trigger MaxBytesReader
	r.Use(limitBody(10))
	r.POST("/echo", func(c *gin.Context) {
		_, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.String(http.StatusRequestEntityTooLarge, "too big")
			return
		}
		c.String(http.StatusOK, "ok")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString("0123456789AB")) // 12 bytes
	r.ServeHTTP(w, req)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 from limitBody, got %d", w.Code)
	}
}

func Test_groupWithPrefix(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	// "/" and "" should mount at root
	root1 := groupWithPrefix(r, "/")
	root1.GET("/one", func(c *gin.Context) { c.String(http.StatusOK, "one") })
	root2 := groupWithPrefix(r, "")
	root2.GET("/two", func(c *gin.Context) { c.String(http.StatusOK, "two") })

	// non-root prefix
	admin := groupWithPrefix(r, "/admin")
	admin.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	for path, want := range map[string]string{"/one": "one", "/two": "two", "/admin/ping": "pong"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK || rec.Body.String() != want {
			t.Fatalf("GET %s got %d %q", path, rec.Code, rec.Body.String())
		}
	}
}

// Idempotency lookups must not fail requests when the database is gone.
func TestRegisterRoutes_IdempotencyLookupErrorIsIgnored(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	deps, _ := newDeps(t)
	RegisterRoutes(r, deps, baseConfig())

	sqlDB, err := deps.DB.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	_ = sqlDB.Close()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/health", bytes.NewBufferString("{}"))
	req.Header.Set(middleware.HeaderIdempotencyKey, "force-error")
	r.ServeHTTP(w, req)

	// 405 is expected for POST /health; the middleware chain must not 500.
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}

func TestCorsHandlers_UnlistedOriginNotEchoed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsHandlers([]string{"https://desk.example.com"})...)
	r.GET("/faq", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/faq", nil)
	req.Header.Set("Origin", "https://evil.example.net")
	r.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("unlisted origin echoed: %q", got)
	}
}
