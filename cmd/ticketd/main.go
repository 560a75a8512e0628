// Command ticketd turns a monitored IT support mailbox into ServiceNow
// tickets and serves the chat and operator HTTP API.
//
// Configuration comes from the environment, optionally seeded from a .env
// file. See internal/config for every variable.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	_ "github.com/tbourn/go-ticket-intake/docs"
	"github.com/tbourn/go-ticket-intake/internal/config"
	"github.com/tbourn/go-ticket-intake/internal/sysutil"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg     config.Config
	envFile string
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "ticketd",
	Short: "Mailbox-to-ticket intake service",
	Long: `ticketd polls an IT support mailbox, classifies every new message and
opens (or deduplicates) the matching ServiceNow ticket. It also serves a
chat assistant that can answer FAQs and open tickets on a user's behalf.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		cfg = loaded

		log.Logger = sysutil.NewLogger(os.Stderr, cfg.LogPretty, cfg.OTEL.ServiceName, appVersion())
		if err := sysutil.SetLogLevel(cfg.LogLevel); err != nil {
			log.Warn().Err(err).Msg("falling back to info logging")
		}
		gin.SetMode(cfg.GinMode)
		if noColor || sysutil.IsTruthy(os.Getenv("TICKETD_NO_COLOR")) {
			color.NoColor = true
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

func appVersion() string {
	return sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)
}

// @title       Ticket Intake API
// @version     1.0
// @description Chat assistant and operator endpoints for the mailbox-to-ticket intake service.
// @BasePath    /
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
