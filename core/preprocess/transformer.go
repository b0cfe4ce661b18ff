package preprocess

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/eta/core/model"
)

// ErrNoRows is returned when fitting on an empty row set.
var ErrNoRows = errors.New("preprocess: no training rows")

// ErrInvalidState is returned when a persisted state cannot be restored.
var ErrInvalidState = errors.New("preprocess: invalid transformer state")

// NumericScaler holds the standardization parameters of one numeric column.
type NumericScaler struct {
	Column string  `json:"column"`
	Mean   float64 `json:"mean"`
	Scale  float64 `json:"scale"`
}

// CategoryEncoder holds the fitted vocabulary of one categorical column.
type CategoryEncoder struct {
	Column string   `json:"column"`
	Levels []string `json:"levels"`
}

// State is the serializable form of a fitted Transformer.
type State struct {
	Numeric     []NumericScaler   `json:"numeric"`
	Categorical []CategoryEncoder `json:"categorical"`
}

// Transformer maps a FeatureRow to a fixed-length numeric vector: standardized
// numeric columns followed by one-hot blocks for each categorical column.
// A fitted Transformer is never mutated and can be shared between goroutines.
type Transformer struct {
	numeric     []NumericScaler
	categorical []CategoryEncoder
	index       []map[string]int
	offsets     []int
	width       int
}

// Fit learns scaling parameters and vocabularies from rows.
func Fit(rows []model.FeatureRow) (*Transformer, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	st := State{}
	col := make([]float64, len(rows))
	for _, name := range model.NumericColumns {
		for i, r := range rows {
			col[i] = r.Numeric(name)
		}
		mean, std := stat.PopMeanStdDev(col, nil)
		st.Numeric = append(st.Numeric, NumericScaler{Column: name, Mean: mean, Scale: safeScale(mean, std)})
	}
	for _, name := range model.CategoricalColumns {
		seen := make(map[string]struct{})
		for _, r := range rows {
			seen[r.Categorical(name)] = struct{}{}
		}
		levels := make([]string, 0, len(seen))
		for l := range seen {
			levels = append(levels, l)
		}
		sort.Strings(levels)
		st.Categorical = append(st.Categorical, CategoryEncoder{Column: name, Levels: levels})
	}
	return FromState(st)
}

// safeScale returns 1 for (near) constant columns so that transform never
// divides by zero.
func safeScale(mean, std float64) float64 {
	if math.IsNaN(std) || std <= 1e-12*math.Max(1, math.Abs(mean)) {
		return 1
	}
	return std
}

// FromState rebuilds a Transformer from persisted parameters.
func FromState(st State) (*Transformer, error) {
	t := &Transformer{
		numeric:     append([]NumericScaler(nil), st.Numeric...),
		categorical: make([]CategoryEncoder, len(st.Categorical)),
		index:       make([]map[string]int, len(st.Categorical)),
		offsets:     make([]int, len(st.Categorical)),
	}
	for _, n := range t.numeric {
		if n.Scale == 0 || math.IsNaN(n.Scale) || math.IsInf(n.Scale, 0) || math.IsNaN(n.Mean) {
			return nil, fmt.Errorf("%w: column %s has scale %v", ErrInvalidState, n.Column, n.Scale)
		}
	}
	t.width = len(t.numeric)
	for i, c := range st.Categorical {
		levels := append([]string(nil), c.Levels...)
		idx := make(map[string]int, len(levels))
		for j, l := range levels {
			if _, dup := idx[l]; dup {
				return nil, fmt.Errorf("%w: duplicate level %q in %s", ErrInvalidState, l, c.Column)
			}
			idx[l] = j
		}
		t.categorical[i] = CategoryEncoder{Column: c.Column, Levels: levels}
		t.index[i] = idx
		t.offsets[i] = t.width
		t.width += len(levels)
	}
	return t, nil
}

// State returns a copy of the fitted parameters.
func (t *Transformer) State() State {
	st := State{Numeric: append([]NumericScaler(nil), t.numeric...)}
	for _, c := range t.categorical {
		st.Categorical = append(st.Categorical, CategoryEncoder{Column: c.Column, Levels: append([]string(nil), c.Levels...)})
	}
	return st
}

// Width is the length of every transformed vector.
func (t *Transformer) Width() int { return t.width }

// NumericColumns returns the numeric columns in encoding order.
func (t *Transformer) NumericColumns() []string {
	out := make([]string, len(t.numeric))
	for i, n := range t.numeric {
		out[i] = n.Column
	}
	return out
}

// CategoricalColumns returns the categorical columns in encoding order.
func (t *Transformer) CategoricalColumns() []string {
	out := make([]string, len(t.categorical))
	for i, c := range t.categorical {
		out[i] = c.Column
	}
	return out
}

// Vocabulary returns the fitted levels keyed by column.
func (t *Transformer) Vocabulary() map[string][]string {
	out := make(map[string][]string, len(t.categorical))
	for _, c := range t.categorical {
		out[c.Column] = append([]string(nil), c.Levels...)
	}
	return out
}

// FeatureNames lists the encoded columns, e.g. "Weather=Clear".
func (t *Transformer) FeatureNames() []string {
	names := make([]string, 0, t.width)
	names = append(names, t.NumericColumns()...)
	for _, c := range t.categorical {
		for _, l := range c.Levels {
			names = append(names, c.Column+"="+l)
		}
	}
	return names
}

// Transform encodes one row. Levels absent from the fitted vocabulary leave
// their one-hot block at zero.
func (t *Transformer) Transform(r model.FeatureRow) []float64 {
	out := make([]float64, t.width)
	t.transformInto(out, r)
	return out
}

func (t *Transformer) transformInto(dst []float64, r model.FeatureRow) {
	for i, n := range t.numeric {
		dst[i] = (r.Numeric(n.Column) - n.Mean) / n.Scale
	}
	for i, c := range t.categorical {
		if j, ok := t.index[i][r.Categorical(c.Column)]; ok {
			dst[t.offsets[i]+j] = 1
		}
	}
}

// TransformBatch encodes rows into an n×Width matrix.
func (t *Transformer) TransformBatch(rows []model.FeatureRow) (*mat.Dense, error) {
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	data := make([]float64, len(rows)*t.width)
	for i, r := range rows {
		t.transformInto(data[i*t.width:(i+1)*t.width], r)
	}
	return mat.NewDense(len(rows), t.width, data), nil
}
