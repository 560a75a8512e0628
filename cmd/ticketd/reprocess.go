package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-ticket-intake/internal/services"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <message-id>",
	Short: "Reset a failed message so the pipeline retries it",
	Long: `Move a message in error_classification, error_no_requester or
error_ticket_system back to unprocessed. Other statuses are refused.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			m, err := a.messages.Reprocess(ctx, args[0])
			switch {
			case errors.Is(err, services.ErrMessageNotFound):
				return fmt.Errorf("message %s not found", args[0])
			case errors.Is(err, services.ErrNotResettable):
				return fmt.Errorf("message %s cannot be reset from its current status", args[0])
			case err != nil:
				return err
			}
			green := color.New(color.FgGreen).SprintFunc()
			fmt.Fprintf(os.Stdout, "%s %s is %s again\n", green("✓"), m.ID, statusColor(m.Status)(m.Status))
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(reprocessCmd)
}
