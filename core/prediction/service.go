package prediction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/eta/core/logger"
	"github.com/kilianp07/eta/core/metrics"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/monitoring"
	"github.com/kilianp07/eta/core/pipeline"
	"github.com/kilianp07/eta/core/predlog"
)

// Service validates requests, runs the pipeline and records the outcome in
// the metrics sink and the prediction log.
type Service struct {
	pipeline *pipeline.Pipeline
	enums    model.Enumerations
	ranges   *model.Ranges
	levels   map[string]map[string]bool
	metrics  metrics.MetricsSink
	store    predlog.Store
	logger   logger.Logger
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithEnumerations restricts categorical inputs to enums. Without it any
// level is accepted and levels unknown to the pipeline contribute nothing.
func WithEnumerations(enums model.Enumerations) Option {
	return func(s *Service) { s.enums = enums }
}

// WithRanges rejects rows whose numeric values fall outside r.
func WithRanges(r model.Ranges) Option {
	return func(s *Service) { s.ranges = &r }
}

// WithMetrics sets the sink receiving one event per request.
func WithMetrics(m metrics.MetricsSink) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithStore sets the prediction log.
func WithStore(st predlog.Store) Option {
	return func(s *Service) {
		if st != nil {
			s.store = st
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService returns a Service predicting with p.
func NewService(p *pipeline.Pipeline, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		pipeline: p,
		metrics:  metrics.NopSink{},
		store:    predlog.NopStore{},
		logger:   log,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.levels = make(map[string]map[string]bool)
	for col, vals := range p.Vocabulary() {
		set := make(map[string]bool, len(vals))
		for _, v := range vals {
			set[v] = true
		}
		s.levels[col] = set
	}
	return s
}

// Pipeline returns the pipeline served by s.
func (s *Service) Pipeline() *pipeline.Pipeline { return s.pipeline }

// Predict validates req.Row and returns the estimate. Validation failures
// wrap model.ErrInvalidFeature. Every request, failed or not, is recorded.
func (s *Service) Predict(ctx context.Context, req Request) (Response, error) {
	start := s.now()
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Source == "" {
		req.Source = metrics.SourceCLI
	}
	resp := Response{RequestID: req.RequestID}

	err := req.Row.Validate(s.enums)
	if err == nil && s.ranges != nil {
		err = s.ranges.Check(req.Row)
	}
	if err == nil {
		resp.Minutes, err = s.pipeline.Predict(req.Row)
		if err != nil {
			monitoring.CaptureException(err, map[string]string{logger.FieldSource: req.Source})
		}
	}
	if err == nil {
		resp.Display = pipeline.FormatMinutes(resp.Minutes)
	}
	s.record(ctx, req, resp, err, start)
	if err != nil {
		return Response{RequestID: req.RequestID}, err
	}
	return resp, nil
}

func (s *Service) record(ctx context.Context, req Request, resp Response, perr error, start time.Time) {
	end := s.now()
	var msg string
	if perr != nil {
		msg = perr.Error()
	}
	ev := metrics.PredictionEvent{
		RequestID: req.RequestID,
		Source:    req.Source,
		Row:       req.Row,
		Labels:    s.labels(req.Row, perr),
		Minutes:   resp.Minutes,
		Latency:   end.Sub(start),
		Err:       msg,
		Time:      end,
	}
	if err := s.metrics.RecordPrediction(ev); err != nil {
		s.logger.Warnf("record prediction metrics: %v", err)
	}
	rec := predlog.Record{
		RequestID:      req.RequestID,
		Timestamp:      end,
		Source:         req.Source,
		Row:            req.Row,
		Minutes:        resp.Minutes,
		Error:          msg,
		ModelTrainedAt: s.pipeline.Metadata().TrainedAt,
	}
	if err := s.store.Append(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Errorf("append prediction log: %v", err)
		monitoring.CaptureException(err, map[string]string{logger.FieldComponent: "predlog"})
	}
	s.logger.Debugw("prediction", map[string]any{
		logger.FieldRequestID: req.RequestID,
		logger.FieldSource:    req.Source,
		"minutes":             resp.Minutes,
		"error":               msg,
		"latency_ms":          ev.Latency.Milliseconds(),
	})
}

// labels maps every categorical column to a level the pipeline was trained
// on. Rejected requests are labelled metrics.LabelInvalid.
func (s *Service) labels(row model.FeatureRow, perr error) map[string]string {
	out := make(map[string]string, len(model.CategoricalColumns))
	for _, col := range model.CategoricalColumns {
		switch v := row.Categorical(col); {
		case perr != nil:
			out[col] = metrics.LabelInvalid
		case s.levels[col][v]:
			out[col] = v
		default:
			out[col] = metrics.LabelOther
		}
	}
	return out
}
