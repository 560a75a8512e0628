package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-ticket-intake/internal/chat"
	"github.com/tbourn/go-ticket-intake/internal/classifier"
	"github.com/tbourn/go-ticket-intake/internal/config"
	"github.com/tbourn/go-ticket-intake/internal/dedup"
	"github.com/tbourn/go-ticket-intake/internal/faq"
	"github.com/tbourn/go-ticket-intake/internal/mailbox"
	"github.com/tbourn/go-ticket-intake/internal/notify"
	"github.com/tbourn/go-ticket-intake/internal/observability"
	"github.com/tbourn/go-ticket-intake/internal/prefilter"
	"github.com/tbourn/go-ticket-intake/internal/repo"
	"github.com/tbourn/go-ticket-intake/internal/services"
	"github.com/tbourn/go-ticket-intake/internal/ticketing"
)

// maxChatMessageRunes caps one chat message.
const maxChatMessageRunes = 4000

// app is the fully wired service graph shared by every subcommand.
type app struct {
	db       *gorm.DB
	store    *repo.Store
	sessions *chat.Store
	faq      *faq.KnowledgeBase

	pipeline *services.Pipeline
	chat     *services.ChatService
	messages *services.MessageService
	poller   *mailbox.Poller // nil when no mailbox is configured

	rdb *redis.Client
}

// buildApp opens storage and connects every collaborator. External systems
// are contacted lazily; only the database and Redis are touched here.
func buildApp(ctx context.Context, cfg config.Config) (*app, error) {
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return nil, fmt.Errorf("database tracing: %w", err)
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a := &app{db: db, store: repo.NewStore(db)}

	var ledger dedup.Ledger = dedup.NewSQLLedger(a.store, cfg.DedupWindow)
	if cfg.RedisURL != "" {
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		a.rdb = redis.NewClient(opt)
		pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := a.rdb.Ping(pctx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis unreachable; dedup falls back to the database")
		}
		cancel()
		ledger = dedup.NewRedisLedger(a.rdb, cfg.DedupWindow, ledger)
	}

	filter, err := prefilter.LoadRules(cfg.PrefilterRulesPath)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.faq, err = faq.Load(cfg.FAQPath, cfg.FAQThreshold)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	if cfg.Classifier.APIKey == "" {
		log.Warn().Msg("no classifier API key configured; classification will fail until one is set")
	}
	gateway := classifier.New(classifier.Config{
		APIKey:    cfg.Classifier.APIKey,
		BaseURL:   cfg.Classifier.BaseURL,
		Model:     cfg.Classifier.Model,
		Timeout:   cfg.Classifier.Timeout,
		MaxTokens: cfg.Classifier.MaxTokens,
	})

	if cfg.TicketSystem.InstanceURL == "" {
		log.Warn().Msg("no ticket system instance configured; ticket creation will fail until one is set")
	}
	tickets := ticketing.NewClient(ctx, ticketing.Config{
		InstanceURL:      cfg.TicketSystem.InstanceURL,
		Username:         cfg.TicketSystem.Username,
		Password:         cfg.TicketSystem.Password,
		ClientID:         cfg.TicketSystem.OAuthClientID,
		ClientSecret:     cfg.TicketSystem.OAuthClientSecret,
		TokenURL:         cfg.TicketSystem.OAuthTokenURL,
		Timeout:          cfg.TicketSystem.Timeout,
		FallbackIdentity: cfg.TicketSystem.FallbackIdentity,
	})

	// Keep the interface nil when mail is off; a typed nil would be called.
	var notifier services.Notifier
	if cfg.SMTP.Enabled() {
		notifier = notify.NewSMTPNotifier(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	}

	a.pipeline = &services.Pipeline{
		Store:            a.store,
		Filter:           filter,
		Classifier:       gateway,
		Ledger:           ledger,
		Tickets:          tickets,
		Notifier:         notifier,
		NotifyDuplicates: cfg.NotifyOnDuplicate(),
		QuietCreated:     !cfg.NotifyOnProcessed(),
		BatchSize:        cfg.BatchSize,
		Interval:         cfg.PipelineInterval,
	}

	a.sessions = chat.NewStore(cfg.ChatHistoryTurns, cfg.ChatIdleTimeout)
	a.chat = &services.ChatService{
		Sessions:        a.sessions,
		FAQ:             a.faq,
		Decider:         gateway,
		Tickets:         tickets,
		Notifier:        notifier,
		MaxMessageRunes: maxChatMessageRunes,
	}
	a.messages = &services.MessageService{Store: a.store}

	if cfg.IMAP.Enabled() {
		a.poller = &mailbox.Poller{
			Source: mailbox.NewIMAPSource(mailbox.IMAPConfig{
				Addr:     cfg.IMAP.Addr,
				Username: cfg.IMAP.Username,
				Password: cfg.IMAP.Password,
				Mailbox:  cfg.IMAP.Mailbox,
				Timeout:  cfg.IMAP.Timeout,
			}),
			Store:    a.store,
			Mailbox:  cfg.IMAP.Mailbox,
			Interval: cfg.PollInterval,
			OnError:  func(error) { observability.PollErrors.Inc() },
		}
	}
	return a, nil
}

// Close releases the database and Redis connections.
func (a *app) Close() error {
	var errs []error
	if a.rdb != nil {
		errs = append(errs, a.rdb.Close())
	}
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		}
	}
	return errors.Join(errs...)
}

// withApp builds the app for a one-shot command and closes it afterwards.
func withApp(ctx context.Context, fn func(context.Context, *app) error) error {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()
	return fn(ctx, a)
}
