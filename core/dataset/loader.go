package dataset

import (
	"cmp"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"

	"github.com/kilianp07/eta/core/model"
)

// LoadOptions controls parsing.
type LoadOptions struct {
	// Delimiter separates fields. Defaults to ';'.
	Delimiter rune `json:"delimiter"`
	// DisableImputation drops rows with a missing feature instead of filling
	// it with the column mode.
	DisableImputation bool `json:"disable_imputation"`
}

func (o LoadOptions) delimiter() rune {
	if o.Delimiter == 0 {
		return ';'
	}
	return o.Delimiter
}

var nanValues = []string{"", "NA", "N/A", "NaN", "nan", "null"}

// Load reads the dataset at path.
func Load(path string, opts LoadOptions) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetLoad, err)
	}
	defer f.Close()
	return Read(f, opts)
}

// Read parses a delimited stream. Every column is read as text so that comma
// decimals can be normalized before conversion.
func Read(r io.Reader, opts LoadOptions) (*Dataset, error) {
	df := dataframe.ReadCSV(r,
		dataframe.WithDelimiter(opts.delimiter()),
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String),
		dataframe.NaNValues(nanValues),
		dataframe.WithLazyQuotes(true),
	)
	if df.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatasetLoad, df.Err)
	}
	if df.Nrow() == 0 {
		return nil, fmt.Errorf("%w: no data rows", ErrDatasetLoad)
	}

	names := df.Names()
	required := append(append([]string{}, model.NumericColumns...), model.CategoricalColumns...)
	required = append(required, model.ColDeliveryTime)
	for _, col := range required {
		if !slices.Contains(names, col) {
			return nil, fmt.Errorf("%w: missing column %q", ErrDatasetLoad, col)
		}
	}

	ds := &Dataset{
		Columns: names,
		RawRows: df.Nrow(),
		Missing: make(map[string]int, len(names)),
		Imputed: make(map[string]int),
	}
	ds.Duplicates = countDuplicates(df)

	n := df.Nrow()
	numeric := make(map[string][]float64)
	numericOK := make(map[string][]bool)
	for _, col := range append(append([]string{}, model.NumericColumns...), model.ColDeliveryTime) {
		vals, ok := parseNumeric(df.Col(col))
		numeric[col], numericOK[col] = vals, ok
	}
	categorical := make(map[string][]string)
	categoricalOK := make(map[string][]bool)
	for _, col := range model.CategoricalColumns {
		s := df.Col(col)
		nan := s.IsNaN()
		vals := s.Records()
		ok := make([]bool, n)
		for i := range vals {
			vals[i] = strings.TrimSpace(vals[i])
			ok[i] = !nan[i] && vals[i] != ""
		}
		categorical[col], categoricalOK[col] = vals, ok
	}

	// Missing counts reflect the source, including columns the model ignores.
	for _, col := range names {
		if v, ok := numericOK[col]; ok {
			ds.Missing[col] = countFalse(v)
			continue
		}
		if v, ok := categoricalOK[col]; ok {
			ds.Missing[col] = countFalse(v)
			continue
		}
		ds.Missing[col] = countTrue(df.Col(col).IsNaN())
	}

	if !opts.DisableImputation {
		for _, col := range model.NumericColumns {
			ds.Imputed[col] = imputeMode(numeric[col], numericOK[col])
		}
		for _, col := range model.CategoricalColumns {
			ds.Imputed[col] = imputeMode(categorical[col], categoricalOK[col])
		}
	}

	for i := 0; i < n; i++ {
		if !rowUsable(i, numeric, numericOK, categoricalOK) {
			ds.Dropped++
			continue
		}
		row := model.FeatureRow{
			DistanceKm:           numeric[model.ColDistance][i],
			Weather:              categorical[model.ColWeather][i],
			TrafficLevel:         categorical[model.ColTraffic][i],
			TimeOfDay:            categorical[model.ColTimeOfDay][i],
			VehicleType:          categorical[model.ColVehicle][i],
			PreparationTimeMin:   int(math.Round(numeric[model.ColPreparation][i])),
			CourierExperienceYrs: numeric[model.ColExperience][i],
		}
		ds.Rows = append(ds.Rows, row)
		ds.Target = append(ds.Target, numeric[model.ColDeliveryTime][i])
	}
	if len(ds.Rows) == 0 {
		return nil, fmt.Errorf("%w: no usable rows out of %d", ErrDatasetLoad, n)
	}
	return ds, nil
}

// ParseDecimal converts a locale formatted number, accepting ',' as the
// decimal separator.
func ParseDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty value")
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

func parseNumeric(s series.Series) ([]float64, []bool) {
	nan := s.IsNaN()
	recs := s.Records()
	vals := make([]float64, len(recs))
	ok := make([]bool, len(recs))
	for i, rec := range recs {
		if nan[i] {
			continue
		}
		v, err := ParseDecimal(rec)
		if err != nil {
			continue
		}
		vals[i], ok[i] = v, true
	}
	return vals, ok
}

func rowUsable(i int, numeric map[string][]float64, numericOK map[string][]bool, categoricalOK map[string][]bool) bool {
	for col, ok := range numericOK {
		if !ok[i] || numeric[col][i] < 0 {
			return false
		}
	}
	for _, ok := range categoricalOK {
		if !ok[i] {
			return false
		}
	}
	return true
}

// imputeMode fills missing cells with the most frequent value, the smallest
// one on ties. It returns the number of filled cells.
func imputeMode[T cmp.Ordered](vals []T, ok []bool) int {
	counts := make(map[T]int)
	for i, v := range vals {
		if ok[i] {
			counts[v]++
		}
	}
	if len(counts) == 0 {
		return 0
	}
	keys := make([]T, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	mode := keys[0]
	for _, k := range keys {
		if counts[k] > counts[mode] {
			mode = k
		}
	}
	filled := 0
	for i := range vals {
		if !ok[i] {
			vals[i], ok[i] = mode, true
			filled++
		}
	}
	return filled
}

func countDuplicates(df dataframe.DataFrame) int {
	seen := make(map[string]struct{}, df.Nrow())
	dups := 0
	for _, rec := range df.Records()[1:] {
		key := strings.Join(rec, "\x1f")
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

func countFalse(v []bool) int {
	n := 0
	for _, b := range v {
		if !b {
			n++
		}
	}
	return n
}

func countTrue(v []bool) int { return len(v) - countFalse(v) }
