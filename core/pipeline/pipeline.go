package pipeline

import (
	"fmt"
	"math"
	"time"

	"github.com/kilianp07/eta/core/dataset"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/preprocess"
	"github.com/kilianp07/eta/core/regression"
)

// TrainOptions controls a training run.
type TrainOptions struct {
	Regression regression.Options
	// TestRatio is the share of rows held out for evaluation.
	TestRatio float64
	Seed      int64
	Schema    Schema
	// Now stamps the artifact. Defaults to time.Now.
	Now func() time.Time
}

// DefaultTrainOptions holds out 20% of the rows with seed 42.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		Regression: regression.DefaultOptions(),
		TestRatio:  0.2,
		Seed:       42,
		Schema:     DefaultSchema(model.DefaultEnumerations()),
	}
}

// Metadata is stored alongside the fitted state.
type Metadata struct {
	TrainedAt  time.Time          `json:"trained_at"`
	TrainRows  int                `json:"train_rows"`
	TestRows   int                `json:"test_rows"`
	Options    regression.Options `json:"options"`
	Holdout    *regression.Score  `json:"holdout,omitempty"`
	Iterations int                `json:"iterations"`
	Converged  bool               `json:"converged"`
}

// Report summarizes a training run.
type Report struct {
	Metadata
	Features   []string         `json:"features"`
	TrainScore regression.Score `json:"train_score"`
	Duration   time.Duration    `json:"duration"`
}

// Pipeline composes a fitted Transformer and a fitted Huber model. It is
// immutable and safe for concurrent use.
type Pipeline struct {
	schema      Schema
	transformer *preprocess.Transformer
	model       *regression.Huber
	meta        Metadata
}

// New assembles a pipeline from fitted parts, checking that they agree with
// each other and with schema.
func New(schema Schema, t *preprocess.Transformer, m *regression.Huber, meta Metadata) (*Pipeline, error) {
	fitted := Schema{
		NumericColumns:     t.NumericColumns(),
		CategoricalColumns: t.CategoricalColumns(),
		Target:             schema.Target,
	}
	if err := fitted.CheckColumns(schema); err != nil {
		return nil, err
	}
	if t.Width() != m.NumFeatures() {
		return nil, fmt.Errorf("%w: transformer width %d, model expects %d", ErrSchemaMismatch, t.Width(), m.NumFeatures())
	}
	if err := schema.CheckVocabulary(t.Vocabulary()); err != nil {
		return nil, err
	}
	return &Pipeline{schema: schema, transformer: t, model: m, meta: meta}, nil
}

// Train fits a pipeline on ds. Rows are split with opts.Seed, the
// transformer and model are fitted on the train part and scored on the held
// out part.
func Train(ds *dataset.Dataset, opts TrainOptions) (*Pipeline, *Report, error) {
	start := time.Now()
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	opts.Regression.SetDefaults()

	train, test, err := dataset.Split(ds, opts.TestRatio, opts.Seed)
	if err != nil {
		return nil, nil, err
	}
	t, err := preprocess.Fit(train.Rows)
	if err != nil {
		return nil, nil, fmt.Errorf("fit transformer: %w", err)
	}
	x, err := t.TransformBatch(train.Rows)
	if err != nil {
		return nil, nil, fmt.Errorf("transform: %w", err)
	}
	m, err := regression.Fit(x, train.Target, opts.Regression)
	if err != nil {
		return nil, nil, fmt.Errorf("fit model: %w", err)
	}

	meta := Metadata{
		TrainedAt:  now().UTC(),
		TrainRows:  train.Len(),
		TestRows:   test.Len(),
		Options:    opts.Regression,
		Iterations: m.Iterations(),
		Converged:  m.Converged(),
	}
	p, err := New(opts.Schema, t, m, meta)
	if err != nil {
		return nil, nil, err
	}

	rep := &Report{Features: t.FeatureNames()}
	fitted, err := m.Predict(x)
	if err != nil {
		return nil, nil, err
	}
	if rep.TrainScore, err = regression.Evaluate(train.Target, fitted); err != nil {
		return nil, nil, err
	}
	if test.Len() > 0 {
		yhat, err := p.PredictBatch(test.Rows)
		if err != nil {
			return nil, nil, err
		}
		score, err := regression.Evaluate(test.Target, yhat)
		if err != nil {
			return nil, nil, err
		}
		if finite(score) {
			p.meta.Holdout = &score
		}
	}
	rep.Metadata = p.meta
	rep.Duration = time.Since(start)
	return p, rep, nil
}

func finite(s regression.Score) bool {
	for _, v := range []float64{s.RMSE, s.MAE, s.R2} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Predict returns the delivery time estimate in minutes for row. Categorical
// levels unseen during training contribute nothing.
func (p *Pipeline) Predict(row model.FeatureRow) (float64, error) {
	return p.model.PredictVec(p.transformer.Transform(row))
}

// PredictBatch predicts every row.
func (p *Pipeline) PredictBatch(rows []model.FeatureRow) ([]float64, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	x, err := p.transformer.TransformBatch(rows)
	if err != nil {
		return nil, err
	}
	return p.model.Predict(x)
}

// Schema returns the schema the pipeline was built against.
func (p *Pipeline) Schema() Schema { return p.schema }

// Metadata returns the training metadata.
func (p *Pipeline) Metadata() Metadata { return p.meta }

// Vocabulary returns the categorical levels learned during training.
func (p *Pipeline) Vocabulary() map[string][]string { return p.transformer.Vocabulary() }

// Coefficient is the weight of one encoded feature.
type Coefficient struct {
	Feature string  `json:"feature" yaml:"feature"`
	Weight  float64 `json:"weight" yaml:"weight"`
}

// Coefficients lists the intercept followed by one weight per encoded
// feature, in encoding order.
func (p *Pipeline) Coefficients() []Coefficient {
	names := p.transformer.FeatureNames()
	coef := p.model.Coef()
	out := make([]Coefficient, 0, len(coef)+1)
	out = append(out, Coefficient{Feature: "intercept", Weight: p.model.Intercept()})
	for i, c := range coef {
		out = append(out, Coefficient{Feature: names[i], Weight: c})
	}
	return out
}

// FormatMinutes renders an estimate for display.
func FormatMinutes(v float64) string {
	return fmt.Sprintf("%.2f minutes", v)
}
