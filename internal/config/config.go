// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// surface, the mailbox poller, the intent pipeline, the external ticket system
// and observability.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "ticket-intake")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// IMAPConfig describes the monitored mailbox.
type IMAPConfig struct {
	Addr     string // host:port, implicit TLS
	Username string
	Password string
	Mailbox  string
	Timeout  time.Duration
}

// Enabled reports whether enough settings are present to poll.
func (c IMAPConfig) Enabled() bool {
	return c.Addr != "" && c.Username != ""
}

// ClassifierConfig configures the LLM-backed classifier and chat decider.
type ClassifierConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	Timeout   time.Duration
	MaxTokens int
}

// TicketSystemConfig configures the ServiceNow table API client.
type TicketSystemConfig struct {
	InstanceURL       string
	Username          string
	Password          string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string
	Timeout           time.Duration
	FallbackIdentity  string
}

// SMTPConfig configures outbound notification mail.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether notifications can be sent.
func (c SMTPConfig) Enabled() bool {
	return c.Host != "" && c.From != ""
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for admin routes

	// Storage
	DBPath   string // SQLite path
	RedisURL string // optional dedup mirror

	// Workers
	PollInterval     time.Duration
	PipelineInterval time.Duration
	BatchSize        int
	DedupWindow      time.Duration
	NotifyOn         []string // processed|duplicate

	// Rules / knowledge base
	PrefilterRulesPath string
	FAQPath            string
	FAQThreshold       float64

	// Chat
	ChatIdleTimeout  time.Duration
	ChatHistoryTurns int

	// External systems
	IMAP         IMAPConfig
	Classifier   ClassifierConfig
	TicketSystem TicketSystemConfig
	SMTP         SMTPConfig

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Observability
	OTEL OTELConfig
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              envOr("PORT", "8080"),
		ReadTimeout:       envDur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    envInt("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(envOr("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(envOr("LOG_LEVEL", "info")),
		LogPretty:      envBool("LOG_PRETTY", false),
		SwaggerEnabled: envBool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(envOr("API_BASE_PATH", "/admin")),

		// Storage
		DBPath:   envOr("DB_PATH", "intake.db"),
		RedisURL: envOr("REDIS_URL", ""),

		// Workers
		PollInterval:     envDur("POLL_INTERVAL", 30*time.Second),
		PipelineInterval: envDur("PIPELINE_INTERVAL", 30*time.Second),
		BatchSize:        envInt("PIPELINE_BATCH_SIZE", 50),
		DedupWindow:      envDur("DEDUP_WINDOW", 7*24*time.Hour),
		NotifyOn:         lowerAll(splitCSV(envOr("NOTIFY_ON", "processed"))),

		// Rules / knowledge base
		PrefilterRulesPath: envOr("PREFILTER_RULES_PATH", ""),
		FAQPath:            envOr("FAQ_PATH", ""),
		FAQThreshold:       envFloat("FAQ_THRESHOLD", 0.6),

		// Chat
		ChatIdleTimeout:  envDur("CHAT_IDLE_TIMEOUT", 60*time.Minute),
		ChatHistoryTurns: envInt("CHAT_HISTORY_TURNS", 6),

		IMAP: IMAPConfig{
			Addr:     envOr("IMAP_ADDR", ""),
			Username: envOr("IMAP_USERNAME", ""),
			Password: envOr("IMAP_PASSWORD", ""),
			Mailbox:  envOr("IMAP_MAILBOX", "INBOX"),
			Timeout:  envDur("IMAP_TIMEOUT", 30*time.Second),
		},
		Classifier: ClassifierConfig{
			APIKey:    envOr("ANTHROPIC_API_KEY", ""),
			BaseURL:   envOr("ANTHROPIC_BASE_URL", ""),
			Model:     envOr("CLASSIFIER_MODEL", "claude-3-5-haiku-latest"),
			Timeout:   envDur("CLASSIFIER_TIMEOUT", 20*time.Second),
			MaxTokens: envInt("CLASSIFIER_MAX_TOKENS", 1024),
		},
		TicketSystem: TicketSystemConfig{
			InstanceURL:       strings.TrimRight(envOr("SNOW_INSTANCE_URL", ""), "/"),
			Username:          envOr("SNOW_USERNAME", ""),
			Password:          envOr("SNOW_PASSWORD", ""),
			OAuthClientID:     envOr("SNOW_OAUTH_CLIENT_ID", ""),
			OAuthClientSecret: envOr("SNOW_OAUTH_CLIENT_SECRET", ""),
			OAuthTokenURL:     envOr("SNOW_OAUTH_TOKEN_URL", ""),
			Timeout:           envDur("SNOW_TIMEOUT", 15*time.Second),
			FallbackIdentity:  envOr("SNOW_FALLBACK_IDENTITY", ""),
		},
		SMTP: SMTPConfig{
			Host:     envOr("SMTP_HOST", ""),
			Port:     envInt("SMTP_PORT", 587),
			Username: envOr("SMTP_USERNAME", ""),
			Password: envOr("SMTP_PASSWORD", ""),
			From:     envOr("SMTP_FROM", ""),
		},

		// Rate limiting
		RateRPS:   envFloat("RATE_RPS", 5.0),
		RateBurst: envInt("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(envOr("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: envBool("ENABLE_HSTS", false),
			HSTSMaxAge: envDur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: envDur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     envBool("OTEL_ENABLED", false),
			Endpoint:    envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    envBool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: envOr("OTEL_SERVICE_NAME", "ticket-intake"),
			SampleRatio: envFloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	if cfg.SMTP.From == "" {
		cfg.SMTP.From = cfg.SMTP.Username
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.PollInterval <= 0 || cfg.PipelineInterval <= 0 {
		return cfg, errors.New("POLL_INTERVAL and PIPELINE_INTERVAL must be positive durations")
	}
	if cfg.BatchSize < 1 {
		return cfg, errors.New("PIPELINE_BATCH_SIZE must be >= 1")
	}
	if cfg.DedupWindow <= 0 {
		return cfg, errors.New("DEDUP_WINDOW must be > 0")
	}
	for _, n := range cfg.NotifyOn {
		switch n {
		case "processed", "duplicate":
		default:
			return cfg, errors.New("NOTIFY_ON entries must be one of: processed, duplicate")
		}
	}
	if cfg.FAQThreshold < 0 || cfg.FAQThreshold > 1 {
		return cfg, errors.New("FAQ_THRESHOLD must be between 0 and 1")
	}
	if cfg.ChatIdleTimeout <= 0 {
		return cfg, errors.New("CHAT_IDLE_TIMEOUT must be > 0")
	}
	if cfg.ChatHistoryTurns < 1 {
		return cfg, errors.New("CHAT_HISTORY_TURNS must be >= 1")
	}
	if cfg.Classifier.Timeout <= 0 || cfg.TicketSystem.Timeout <= 0 || cfg.IMAP.Timeout <= 0 {
		return cfg, errors.New("external system timeouts must be positive durations")
	}
	if cfg.Classifier.MaxTokens < 1 {
		return cfg, errors.New("CLASSIFIER_MAX_TOKENS must be >= 1")
	}
	if cfg.TicketSystem.OAuthClientID != "" && cfg.TicketSystem.OAuthTokenURL == "" {
		return cfg, errors.New("SNOW_OAUTH_TOKEN_URL is required when SNOW_OAUTH_CLIENT_ID is set")
	}
	if cfg.SMTP.Port <= 0 || cfg.SMTP.Port > 65535 {
		return cfg, errors.New("SMTP_PORT must be in [1,65535]")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// NotifyOnProcessed reports whether a newly created ticket is confirmed to
// the sender.
func (c Config) NotifyOnProcessed() bool {
	for _, n := range c.NotifyOn {
		if n == "processed" {
			return true
		}
	}
	return false
}

// NotifyOnDuplicate reports whether duplicate outcomes reply to the sender.
func (c Config) NotifyOnDuplicate() bool {
	for _, n := range c.NotifyOn {
		if n == "duplicate" {
			return true
		}
	}
	return false
}

// env reads k and parses it, keeping def when k is unset, blank or does not
// parse. Validation below catches values that parse but make no sense.
func env[T any](k string, def T, parse func(string) (T, error)) T {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if out, err := parse(v); err == nil {
		return out
	}
	return def
}

func envOr(k, def string) string {
	return env(k, def, func(v string) (string, error) { return v, nil })
}

func envInt(k string, def int) int { return env(k, def, strconv.Atoi) }

func envDur(k string, def time.Duration) time.Duration { return env(k, def, time.ParseDuration) }

func envFloat(k string, def float64) float64 {
	return env(k, def, func(v string) (float64, error) { return strconv.ParseFloat(v, 64) })
}

func envBool(k string, def bool) bool {
	return env(k, def, func(v string) (bool, error) {
		switch strings.ToLower(v) {
		case "1", "true", "yes", "y", "on":
			return true, nil
		case "0", "false", "no", "n", "off":
			return false, nil
		}
		return false, fmt.Errorf("not a boolean: %q", v)
	})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func lowerAll(in []string) []string {
	for i := range in {
		in[i] = strings.ToLower(in[i])
	}
	return in
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
