package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/eta/app"
	"github.com/kilianp07/eta/pkg/export"
)

var (
	trainData   string
	trainOutput string
	trainFormat string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Fit the pipeline on the dataset and save the artifact",
	RunE:  runTrain,
}

func init() {
	trainCmd.Flags().StringVar(&trainData, "data", "", "dataset path (overrides data.path)")
	trainCmd.Flags().StringVarP(&trainOutput, "output", "o", "", "artifact path (overrides model.path)")
	trainCmd.Flags().StringVar(&trainFormat, "format", "text", "report format: text, json or yaml")
	rootCmd.AddCommand(trainCmd)
}

func runTrain(cmd *cobra.Command, _ []string) error {
	switch trainFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown format %s", trainFormat)
	}
	if trainData != "" {
		cfg.Data.Path = trainData
	}
	if trainOutput != "" {
		cfg.Model.Path = trainOutput
	}
	p, rep, err := app.Train(cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	switch trainFormat {
	case "json":
		return writeJSON(out, rep)
	case "yaml":
		return export.WriteYAML(out, rep)
	}
	fmt.Fprintf(out, "saved %s\n", cfg.Model.Path)
	fmt.Fprintf(out, "rows: %d train, %d test\n", rep.TrainRows, rep.TestRows)
	fmt.Fprintf(out, "iterations: %d (converged: %t)\n", rep.Iterations, rep.Converged)
	if rep.Holdout != nil {
		fmt.Fprintf(out, "holdout: RMSE %.3f  MAE %.3f  R2 %.3f\n", rep.Holdout.RMSE, rep.Holdout.MAE, rep.Holdout.R2)
	}
	fmt.Fprintf(out, "train:   RMSE %.3f  MAE %.3f  R2 %.3f\n", rep.TrainScore.RMSE, rep.TrainScore.MAE, rep.TrainScore.R2)
	for _, c := range p.Coefficients() {
		fmt.Fprintf(out, "  %-32s %10.4f\n", c.Feature, c.Weight)
	}
	return nil
}
