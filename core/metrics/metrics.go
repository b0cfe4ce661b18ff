package metrics

import (
	"time"

	"github.com/kilianp07/eta/core/model"
)

// Prediction sources.
const (
	SourceHTTP = "http"
	SourceMQTT = "mqtt"
	SourceCLI  = "cli"
)

// Label values used in place of categorical levels that must not become
// metric labels.
const (
	LabelInvalid = "invalid"
	LabelOther   = "other"
)

// PredictionEvent describes one served prediction.
type PredictionEvent struct {
	RequestID string
	Source    string
	Row       model.FeatureRow
	// Labels maps each categorical column to a value safe to use as a
	// metric label: a level known to the pipeline, LabelOther or
	// LabelInvalid. Sinks never label with Row values directly.
	Labels  map[string]string
	Minutes float64
	Latency time.Duration
	// Err is empty when the prediction succeeded.
	Err  string
	Time time.Time
}

// Label returns the bounded label value for a categorical column, or ""
// when the event carries none.
func (e PredictionEvent) Label(col string) string { return e.Labels[col] }

// Outcome returns "ok" or "error".
func (e PredictionEvent) Outcome() string {
	if e.Err != "" {
		return "error"
	}
	return "ok"
}

// MetricsSink records prediction events for observability purposes.
type MetricsSink interface {
	RecordPrediction(ev PredictionEvent) error
}

// TrainingEvent summarizes a finished training run.
type TrainingEvent struct {
	TrainRows  int
	TestRows   int
	Features   int
	RMSE       float64
	MAE        float64
	R2         float64
	Iterations int
	Converged  bool
	Duration   time.Duration
	Time       time.Time
}

// TrainingRecorder records training runs.
type TrainingRecorder interface {
	RecordTraining(ev TrainingEvent) error
}

// ModelInfo describes the pipeline loaded by a serving process.
type ModelInfo struct {
	Path      string
	TrainedAt time.Time
	Features  int
}

// ModelRecorder records which pipeline is being served.
type ModelRecorder interface {
	RecordModelLoaded(info ModelInfo) error
}

// NopSink implements every recorder with no-op methods.
type NopSink struct{}

func (NopSink) RecordPrediction(PredictionEvent) error { return nil }
func (NopSink) RecordTraining(TrainingEvent) error     { return nil }
func (NopSink) RecordModelLoaded(ModelInfo) error      { return nil }
