package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kilianp07/eta/api/dashboard"
	"github.com/kilianp07/eta/app"
	"github.com/kilianp07/eta/core/dataset"
	"github.com/kilianp07/eta/core/pipeline"
	"github.com/kilianp07/eta/pkg/export"
)

var (
	describeFormat string
	describeXLSX   string
	describeHTML   string
)

var describeCmd = &cobra.Command{
	Use:   "describe [dataset]",
	Short: "Summarize the delivery dataset",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().StringVar(&describeFormat, "format", "yaml", "output format: json or yaml")
	describeCmd.Flags().StringVar(&describeXLSX, "xlsx", "", "also write the summary as an Excel workbook")
	describeCmd.Flags().StringVar(&describeHTML, "html", "", "also write the charts as an HTML page")
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	path := cfg.Data.Path
	if len(args) == 1 {
		path = args[0]
	}
	s, err := dataset.Overview(path, cfg.Data.LoadOptions())
	if err != nil {
		return err
	}
	if describeXLSX != "" {
		if err := writeFile(describeXLSX, func(f *os.File) error { return export.WriteSummaryXLSX(f, s) }); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
	}
	if describeHTML != "" {
		// coefficients are charted when a trained pipeline is available
		var coefs []pipeline.Coefficient
		if p, err := app.LoadPipeline(cfg); err == nil {
			coefs = p.Coefficients()
		}
		if err := writeFile(describeHTML, func(f *os.File) error { return dashboard.Render(f, s, coefs) }); err != nil {
			return fmt.Errorf("write html: %w", err)
		}
	}
	out := cmd.OutOrStdout()
	switch describeFormat {
	case "json":
		return writeJSON(out, s)
	case "yaml":
		return export.WriteYAML(out, s)
	}
	return fmt.Errorf("unknown format %s", describeFormat)
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
