package pipeline

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kilianp07/eta/core/model"
)

// ErrSchemaMismatch is returned when an artifact was fitted against columns
// or categorical levels the caller does not accept.
var ErrSchemaMismatch = errors.New("pipeline: schema mismatch")

// Schema fixes the columns a pipeline consumes and the categorical levels
// it may have learned.
type Schema struct {
	NumericColumns     []string           `json:"numeric_columns"`
	CategoricalColumns []string           `json:"categorical_columns"`
	Target             string             `json:"target"`
	Enumerations       model.Enumerations `json:"enumerations"`
}

// DefaultSchema returns the delivery dataset schema with enums as the
// accepted levels.
func DefaultSchema(enums model.Enumerations) Schema {
	return Schema{
		NumericColumns:     append([]string(nil), model.NumericColumns...),
		CategoricalColumns: append([]string(nil), model.CategoricalColumns...),
		Target:             model.ColDeliveryTime,
		Enumerations:       enums,
	}
}

// CheckColumns compares the column lists and target of s against want.
func (s Schema) CheckColumns(want Schema) error {
	if !slices.Equal(s.NumericColumns, want.NumericColumns) {
		return fmt.Errorf("%w: numeric columns %v, want %v", ErrSchemaMismatch, s.NumericColumns, want.NumericColumns)
	}
	if !slices.Equal(s.CategoricalColumns, want.CategoricalColumns) {
		return fmt.Errorf("%w: categorical columns %v, want %v", ErrSchemaMismatch, s.CategoricalColumns, want.CategoricalColumns)
	}
	if s.Target != want.Target {
		return fmt.Errorf("%w: target %q, want %q", ErrSchemaMismatch, s.Target, want.Target)
	}
	return nil
}

// CheckVocabulary reports levels of vocab that the enumerations of s reject.
func (s Schema) CheckVocabulary(vocab map[string][]string) error {
	for _, col := range s.CategoricalColumns {
		for _, level := range vocab[col] {
			if !s.Enumerations.Allows(col, level) {
				return fmt.Errorf("%w: level %q of %s is not an accepted value", ErrSchemaMismatch, level, col)
			}
		}
	}
	return nil
}
