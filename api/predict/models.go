package predict

import (
	"time"

	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/pipeline"
	"github.com/kilianp07/eta/core/regression"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Message string `json:"message"`
}

// PredictResponse is returned by POST /predict.
type PredictResponse struct {
	RequestID string  `json:"request_id"`
	Minutes   float64 `json:"minutes"`
	Display   string  `json:"display"`
}

// SchemaInfo describes the inputs accepted by the served pipeline.
type SchemaInfo struct {
	NumericColumns     []string            `json:"numeric_columns"`
	CategoricalColumns []string            `json:"categorical_columns"`
	Enumerations       model.Enumerations  `json:"enumerations"`
	Ranges             model.Ranges        `json:"ranges"`
	Vocabulary         map[string][]string `json:"vocabulary"`
	AllowUnknownLevels bool                `json:"allow_unknown_levels"`
	TrainedAt          time.Time           `json:"trained_at"`
	Holdout            *regression.Score   `json:"holdout,omitempty"`
}

// NewSchemaInfo describes p with the configured ranges.
func NewSchemaInfo(p *pipeline.Pipeline, ranges model.Ranges, allowUnknown bool) SchemaInfo {
	s := p.Schema()
	meta := p.Metadata()
	return SchemaInfo{
		NumericColumns:     s.NumericColumns,
		CategoricalColumns: s.CategoricalColumns,
		Enumerations:       s.Enumerations,
		Ranges:             ranges,
		Vocabulary:         p.Vocabulary(),
		AllowUnknownLevels: allowUnknown,
		TrainedAt:          meta.TrainedAt,
		Holdout:            meta.Holdout,
	}
}
