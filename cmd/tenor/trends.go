package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tenor/internal/app"
	"github.com/ternarybob/tenor/internal/services/trends"
)

var trendsCmd = &cobra.Command{
	Use:   "trends COMPANY_ID",
	Short: "Show a company's sentiment timeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runTrends,
}

var (
	trendsWindow int
	trendsCSV    string
)

func init() {
	trendsCmd.Flags().IntVar(&trendsWindow, "window", trends.DefaultWindow, "Rolling average window (periods)")
	trendsCmd.Flags().StringVar(&trendsCSV, "csv", "", "Write the timeline as CSV to this file instead of printing JSON")
}

func runTrends(cmd *cobra.Command, args []string) error {
	if trendsWindow < 1 {
		return fmt.Errorf("--window must be at least 1")
	}
	out := cmd.OutOrStdout()

	return withApp(func(ctx context.Context, a *app.App) error {
		if trendsCSV != "" {
			doc, err := a.ExportService.Trends(ctx, args[0], trendsWindow)
			if err != nil {
				return err
			}
			if err := os.WriteFile(trendsCSV, doc.Data, 0644); err != nil {
				return fmt.Errorf("failed to write %s: %w", trendsCSV, err)
			}
			fmt.Fprintf(out, "wrote %s (%d bytes)\n", trendsCSV, len(doc.Data))
			return nil
		}

		t, err := a.TrendService.Build(ctx, args[0], trendsWindow)
		if err != nil {
			return err
		}
		data, err := json.MarshalIndent(t, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode trends: %w", err)
		}
		fmt.Fprintln(out, string(data))
		return nil
	})
}
