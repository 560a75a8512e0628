package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-ticket-intake/internal/domain"
	"github.com/tbourn/go-ticket-intake/internal/services"
)

var drainCmd = &cobra.Command{
	Use:   "drain-once",
	Short: "Process every pending message once and exit",
	Long: `Run the intent pipeline over the unprocessed backlog, oldest first, until
nothing is left or a transient ticket system failure defers the rest.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			res, err := a.pipeline.Drain(ctx)
			printDrainResult(os.Stdout, res)
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(drainCmd)
}

func printDrainResult(w io.Writer, res services.DrainResult) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	fmt.Fprintf(w, "%s %d message(s)\n", cyan("Drained"), res.Fetched)
	for _, s := range domain.AllStatuses {
		if n := res.Statuses[s]; n > 0 {
			fmt.Fprintf(w, "  %-22s %s\n", s, statusColor(s)(n))
		}
	}
	if res.Deferred > 0 {
		fmt.Fprintf(w, "  %-22s %s\n", "deferred", yellow(res.Deferred))
	}
	if res.Held > 0 {
		fmt.Fprintf(w, "  %-22s %s\n", "held", color.New(color.FgRed).Sprint(res.Held))
	}
}

// statusColor picks the display color for a message status.
func statusColor(s domain.MessageStatus) func(a ...interface{}) string {
	switch {
	case s == domain.StatusProcessed:
		return color.New(color.FgGreen).SprintFunc()
	case s == domain.StatusUnprocessed:
		return color.New(color.FgYellow).SprintFunc()
	case s.Resettable() || s == domain.StatusErrorReconciliation:
		return color.New(color.FgRed).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}
