package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tenor/internal/app"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show report counts per processing status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	return withApp(func(ctx context.Context, a *app.App) error {
		status, err := a.ProcessorService.GetStatus(ctx)
		if err != nil {
			return err
		}

		names := make([]string, 0, len(status.Counts))
		for name := range status.Counts {
			names = append(names, name)
		}
		sort.Strings(names)

		fmt.Fprintf(out, "%-12s %d\n", "TOTAL", status.Total)
		for _, name := range names {
			fmt.Fprintf(out, "%-12s %d\n", name, status.Counts[name])
		}
		fmt.Fprintf(out, "%-12s %d\n", "EMBEDDINGS", status.Embeddings)
		return nil
	})
}
