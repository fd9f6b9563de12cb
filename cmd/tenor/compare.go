package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tenor/internal/app"
	"github.com/ternarybob/tenor/internal/services/delta"
)

var compareCmd = &cobra.Command{
	Use:   "compare BASE_REPORT_ID COMPARISON_REPORT_ID",
	Short: "Compare the narrative of two analyzed reports",
	Long:  `Builds (or returns the stored) narrative delta between two completed reports of the same company.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runCompare,
}

var compareSummary bool

func init() {
	compareCmd.Flags().BoolVar(&compareSummary, "summary", false, "Print the delta summary instead of the full record")
}

func runCompare(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	return withApp(func(ctx context.Context, a *app.App) error {
		d, err := a.DeltaService.Compare(ctx, args[0], args[1])
		if err != nil {
			return err
		}

		var v any = d
		if compareSummary {
			v = delta.Summarize(d)
		}
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode delta: %w", err)
		}
		fmt.Fprintln(out, string(data))

		for _, msg := range delta.AlertMessages(d) {
			fmt.Fprintf(out, "ALERT   %s\n", msg)
		}
		return nil
	})
}
