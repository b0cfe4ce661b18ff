package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/eta/core/predlog"
	"github.com/kilianp07/eta/pkg/export"
)

var (
	lsStart   string
	lsEnd     string
	lsVehicle string
	lsSource  string
	lsLimit   int
	lsFormat  string
)

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Prediction log commands",
}

var predictionsLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List logged predictions",
	RunE:  runPredictionsLs,
}

func init() {
	f := predictionsLsCmd.Flags()
	f.StringVar(&lsStart, "start", "", "earliest timestamp (RFC3339)")
	f.StringVar(&lsEnd, "end", "", "latest timestamp (RFC3339)")
	f.StringVar(&lsVehicle, "vehicle", "", "vehicle type")
	f.StringVar(&lsSource, "source", "", "source: http, mqtt or cli")
	f.IntVar(&lsLimit, "limit", 0, "keep the most recent records")
	f.StringVar(&lsFormat, "format", "csv", "output format: csv or json")
	predictionsCmd.AddCommand(predictionsLsCmd)
	rootCmd.AddCommand(predictionsCmd)
}

func runPredictionsLs(cmd *cobra.Command, _ []string) error {
	q := predlog.Query{VehicleType: lsVehicle, Source: lsSource, Limit: lsLimit}
	var err error
	if lsStart != "" {
		if q.Start, err = time.Parse(time.RFC3339, lsStart); err != nil {
			return fmt.Errorf("start: %w", err)
		}
	}
	if lsEnd != "" {
		if q.End, err = time.Parse(time.RFC3339, lsEnd); err != nil {
			return fmt.Errorf("end: %w", err)
		}
	}
	store, err := predlog.New(cfg.PredictionLog)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	records, err := store.Query(cmd.Context(), q)
	if err != nil {
		return err
	}
	switch lsFormat {
	case "csv":
		return export.WriteCSV(cmd.OutOrStdout(), records)
	case "json":
		return export.WriteJSON(cmd.OutOrStdout(), records)
	}
	return fmt.Errorf("unknown format %s", lsFormat)
}
