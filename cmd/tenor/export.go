package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ternarybob/tenor/internal/app"
	"github.com/ternarybob/tenor/internal/services/export"
)

var exportCmd = &cobra.Command{
	Use:   "export analysis|delta ID",
	Short: "Render an analysis or delta as PDF, Markdown or CSV",
	Long: `Renders a stored record to a file. Analyses export as pdf, md or csv; deltas
as pdf or md.`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"analysis", "delta"},
	RunE:      runExport,
}

var (
	exportFormat string
	exportOut    string
)

func init() {
	exportCmd.Flags().StringVarP(&exportFormat, "format", "f", string(export.FormatPDF), "Output format: pdf, md or csv")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default: generated name in the current directory)")
}

func runExport(cmd *cobra.Command, args []string) error {
	format, err := export.ParseFormat(exportFormat)
	if err != nil {
		return err
	}
	kind, id := args[0], args[1]
	if kind != "analysis" && kind != "delta" {
		return fmt.Errorf("unknown export kind %q: must be analysis or delta", kind)
	}
	out := cmd.OutOrStdout()

	return withApp(func(ctx context.Context, a *app.App) error {
		var doc *export.Document
		var err error
		if kind == "analysis" {
			doc, err = a.ExportService.Analysis(ctx, id, format)
		} else {
			doc, err = a.ExportService.Delta(ctx, id, format)
		}
		if err != nil {
			return err
		}

		path := exportOut
		if path == "" {
			path = doc.Filename
		}
		if err := os.WriteFile(path, doc.Data, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		fmt.Fprintf(out, "wrote %s (%s, %d bytes)\n", path, doc.ContentType, len(doc.Data))
		return nil
	})
}
