package app

import (
	"fmt"

	"github.com/kilianp07/eta/config"
	"github.com/kilianp07/eta/core/dataset"
	corelogger "github.com/kilianp07/eta/core/logger"
	coremetrics "github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/pipeline"
	"github.com/kilianp07/eta/infra/logger"
)

// TrainOptions returns the pipeline training options described by cfg.
func TrainOptions(cfg *config.Config) pipeline.TrainOptions {
	opts := pipeline.DefaultTrainOptions()
	opts.Regression = cfg.Model.Regression
	opts.TestRatio = cfg.Model.TestRatio
	opts.Seed = cfg.Model.Seed
	opts.Schema = cfg.Features.Schema()
	return opts
}

// Train fits a pipeline on the configured dataset, saves it to the
// configured path and records the run in the configured metrics sinks.
func Train(cfg *config.Config) (*pipeline.Pipeline, *pipeline.Report, error) {
	log := logger.New("train")
	ds, err := dataset.Load(cfg.Data.Path, cfg.Data.LoadOptions())
	if err != nil {
		return nil, nil, err
	}
	log.Infof("loaded %d usable rows from %s (%d dropped, %d missing values)",
		ds.Len(), cfg.Data.Path, ds.Dropped, ds.MissingTotal())

	p, rep, err := pipeline.Train(ds, TrainOptions(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("train: %w", err)
	}
	if !rep.Converged {
		log.Warnf("huber fit stopped after %d iterations without converging", rep.Iterations)
	}
	if err := pipeline.Save(p, cfg.Model.Path); err != nil {
		return nil, nil, fmt.Errorf("save pipeline: %w", err)
	}

	fields := map[string]any{
		corelogger.FieldModelPath: cfg.Model.Path,
		"train_rows":              rep.TrainRows,
		"test_rows":               rep.TestRows,
		"iterations":              rep.Iterations,
		"duration":                rep.Duration.String(),
	}
	if rep.Holdout != nil {
		fields["rmse"] = rep.Holdout.RMSE
		fields["mae"] = rep.Holdout.MAE
		fields["r2"] = rep.Holdout.R2
	}
	logger.Infow(log, "pipeline saved", fields)

	recordTraining(cfg, rep, log)
	return p, rep, nil
}

func recordTraining(cfg *config.Config, rep *pipeline.Report, log logger.Logger) {
	sink, err := coremetrics.NewMetricsSink(cfg.Metrics.Sinks)
	if err != nil {
		log.Warnf("metrics sink: %v", err)
		return
	}
	defer coremetrics.Close(sink)
	rec, ok := sink.(coremetrics.TrainingRecorder)
	if !ok {
		return
	}
	ev := coremetrics.TrainingEvent{
		TrainRows:  rep.TrainRows,
		TestRows:   rep.TestRows,
		Features:   len(rep.Features),
		Iterations: rep.Iterations,
		Converged:  rep.Converged,
		Duration:   rep.Duration,
		Time:       rep.TrainedAt,
	}
	if rep.Holdout != nil {
		ev.RMSE, ev.MAE, ev.R2 = rep.Holdout.RMSE, rep.Holdout.MAE, rep.Holdout.R2
	}
	if err := rec.RecordTraining(ev); err != nil {
		log.Warnf("record training: %v", err)
	}
}
