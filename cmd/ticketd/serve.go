package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/tbourn/go-ticket-intake/internal/chat"
	"github.com/tbourn/go-ticket-intake/internal/config"
	httpapi "github.com/tbourn/go-ticket-intake/internal/http"
	"github.com/tbourn/go-ticket-intake/internal/observability"
	"github.com/tbourn/go-ticket-intake/internal/repo"
)

const (
	shutdownGrace = 15 * time.Second
	sweepInterval = time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the mailbox poller and the intent pipeline",
	Long: `Start every long-running part of ticketd in one process: the HTTP API,
the mailbox poller (when IMAP is configured), the intent pipeline and the
housekeeping sweeper. SIGINT or SIGTERM shuts everything down gracefully.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg config.Config) error {
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, appVersion())
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

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close")
		}
	}()

	r := gin.New()
	httpapi.RegisterRoutes(r, httpapi.Deps{
		DB:        a.db,
		Chat:      a.chat,
		Messages:  a.messages,
		FAQ:       a.faq,
		StartedAt: time.Now(),
	}, cfg)
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("version", appVersion()).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(sctx)
	})

	if a.poller != nil {
		g.Go(func() error { return a.poller.Run(gctx) })
	} else {
		log.Warn().Msg("IMAP not configured; mailbox polling disabled")
	}
	g.Go(func() error { return a.pipeline.Run(gctx) })
	g.Go(func() error {
		housekeep(gctx, a, sweepInterval)
		return nil
	})

	return g.Wait()
}

// housekeep evicts idle chat sessions and expired stored chat replies until
// ctx is cancelled.
func housekeep(ctx context.Context, a *app, every time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			sweepOnce(ctx, a.sessions, a.db, now.UTC())
		}
	}
}

func sweepOnce(ctx context.Context, sessions *chat.Store, db *gorm.DB, now time.Time) {
	if n := sessions.Sweep(); n > 0 {
		log.Debug().Int("evicted", n).Msg("idle chat sessions swept")
	}
	n, err := repo.PurgeExpiredIdempotency(ctx, db, now)
	switch {
	case err != nil:
		log.Warn().Err(err).Msg("purging stored chat replies failed")
	case n > 0:
		log.Debug().Int64("purged", n).Msg("expired chat replies purged")
	}
}
