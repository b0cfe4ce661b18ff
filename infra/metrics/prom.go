package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/model"
)

// PromSink records prediction and training events in Prometheus metrics.
type PromSink struct {
	predictions *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	minutes     *prometheus.HistogramVec
	trainRMSE   prometheus.Gauge
	trainR2     prometheus.Gauge
	trainRows   prometheus.Gauge
	trainRuns   prometheus.Counter
	modelLoaded *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// They are exposed by the HTTP server on /metrics.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "eta_predictions_total",
			Help: "Total number of delivery time predictions",
		}, []string{"source", "vehicle_type", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eta_prediction_duration_seconds",
			Help:    "Time spent serving a prediction",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		}, []string{"source"}),
		minutes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "eta_predicted_minutes",
			Help:    "Distribution of predicted delivery times",
			Buckets: prometheus.LinearBuckets(10, 10, 12),
		}, []string{"vehicle_type"}),
		trainRMSE: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eta_training_holdout_rmse_minutes",
			Help: "Root mean squared error on the held out rows of the last training run",
		}),
		trainR2: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eta_training_holdout_r2",
			Help: "Coefficient of determination on the held out rows of the last training run",
		}),
		trainRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "eta_training_rows",
			Help: "Number of rows used to fit the last pipeline",
		}),
		trainRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "eta_training_runs_total",
			Help: "Total number of training runs",
		}),
		modelLoaded: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "eta_model_trained_timestamp_seconds",
			Help: "Training time of the served pipeline",
		}, []string{"path"}),
	}
	var err error
	if s.predictions, err = register(reg, s.predictions); err != nil {
		return nil, err
	}
	if s.latency, err = register(reg, s.latency); err != nil {
		return nil, err
	}
	if s.minutes, err = register(reg, s.minutes); err != nil {
		return nil, err
	}
	if s.trainRMSE, err = register(reg, s.trainRMSE); err != nil {
		return nil, err
	}
	if s.trainR2, err = register(reg, s.trainR2); err != nil {
		return nil, err
	}
	if s.trainRows, err = register(reg, s.trainRows); err != nil {
		return nil, err
	}
	if s.trainRuns, err = register(reg, s.trainRuns); err != nil {
		return nil, err
	}
	if s.modelLoaded, err = register(reg, s.modelLoaded); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the already registered collector when c was registered
// before, so several sinks can share one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// RecordPrediction counts the prediction and observes its latency and value.
func (s *PromSink) RecordPrediction(ev coremetrics.PredictionEvent) error {
	vehicle := ev.Label(model.ColVehicle)
	s.predictions.WithLabelValues(ev.Source, vehicle, ev.Outcome()).Inc()
	s.latency.WithLabelValues(ev.Source).Observe(ev.Latency.Seconds())
	if ev.Err == "" {
		s.minutes.WithLabelValues(vehicle).Observe(ev.Minutes)
	}
	return nil
}

// RecordTraining sets the gauges describing the last training run.
func (s *PromSink) RecordTraining(ev coremetrics.TrainingEvent) error {
	s.trainRuns.Inc()
	s.trainRows.Set(float64(ev.TrainRows))
	if ev.TestRows > 0 {
		s.trainRMSE.Set(ev.RMSE)
		s.trainR2.Set(ev.R2)
	}
	return nil
}

// RecordModelLoaded exposes the training time of the served pipeline.
func (s *PromSink) RecordModelLoaded(info coremetrics.ModelInfo) error {
	s.modelLoaded.Reset()
	s.modelLoaded.WithLabelValues(info.Path).Set(float64(info.TrainedAt.Unix()))
	return nil
}
