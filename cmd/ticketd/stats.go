package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-ticket-intake/internal/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show message counts by status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(ctx context.Context, a *app) error {
			counts, err := a.messages.StatusCounts(ctx)
			if err != nil {
				return err
			}
			printStatusCounts(os.Stdout, counts)
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func printStatusCounts(w io.Writer, counts map[domain.MessageStatus]int64) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "\n%s\n\n", cyan("=== Intake Messages ==="))

	var total int64
	for _, s := range domain.AllStatuses {
		n := counts[s]
		total += n
		fmt.Fprintf(w, "  %-22s %s\n", s, statusColor(s)(n))
	}
	fmt.Fprintf(w, "  %-22s %d\n\n", "total", total)
}
