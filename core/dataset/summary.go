package dataset

import (
	"math"
	"sort"
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/eta/core/model"
)

// HeadSize is the number of rows kept in a Summary preview.
const HeadSize = 10

// Distribution describes one numeric sample.
type Distribution struct {
	Count  int     `json:"count" yaml:"count"`
	Mean   float64 `json:"mean" yaml:"mean"`
	Std    float64 `json:"std" yaml:"std"`
	Min    float64 `json:"min" yaml:"min"`
	Q1     float64 `json:"q1" yaml:"q1"`
	Median float64 `json:"median" yaml:"median"`
	Q3     float64 `json:"q3" yaml:"q3"`
	Max    float64 `json:"max" yaml:"max"`
}

// ColumnStats is the distribution of a numeric column.
type ColumnStats struct {
	Column string `json:"column" yaml:"column"`
	Distribution `yaml:",inline"`
}

// LevelCount is the frequency of one categorical level.
type LevelCount struct {
	Level string `json:"level" yaml:"level"`
	Count int    `json:"count" yaml:"count"`
}

// CategoryCounts lists level frequencies of a categorical column, most
// frequent first.
type CategoryCounts struct {
	Column string       `json:"column" yaml:"column"`
	Levels []LevelCount `json:"levels" yaml:"levels"`
}

// CrossCount is the number of rows with a given weather and traffic level.
type CrossCount struct {
	Weather string `json:"weather" yaml:"weather"`
	Traffic string `json:"traffic" yaml:"traffic"`
	Count   int    `json:"count" yaml:"count"`
}

// GroupDistribution is the delivery time distribution of one level.
type GroupDistribution struct {
	Level        string `json:"level" yaml:"level"`
	Distribution `yaml:",inline"`
}

// GroupedTarget groups the delivery time by the levels of a column.
type GroupedTarget struct {
	Column string              `json:"column" yaml:"column"`
	Groups []GroupDistribution `json:"groups" yaml:"groups"`
}

// Bin is one histogram bucket, [Lower, Upper).
type Bin struct {
	Lower float64 `json:"lower" yaml:"lower"`
	Upper float64 `json:"upper" yaml:"upper"`
	Count int     `json:"count" yaml:"count"`
}

// Summary is the descriptive overview of a dataset.
type Summary struct {
	Rows         int                `json:"rows" yaml:"rows"`
	UsableRows   int                `json:"usable_rows" yaml:"usable_rows"`
	Columns      int                `json:"columns" yaml:"columns"`
	ColumnNames  []string           `json:"column_names" yaml:"column_names"`
	Missing      map[string]int     `json:"missing" yaml:"missing"`
	MissingTotal int                `json:"missing_total" yaml:"missing_total"`
	Imputed      map[string]int     `json:"imputed" yaml:"imputed"`
	Duplicates   int                `json:"duplicates" yaml:"duplicates"`
	Dropped      int                `json:"dropped" yaml:"dropped"`
	Head         []model.FeatureRow `json:"head" yaml:"head"`
	Numeric      []ColumnStats      `json:"numeric" yaml:"numeric"`
	Categorical  []CategoryCounts   `json:"categorical" yaml:"categorical"`
	// WeatherTraffic is ordered by weather then traffic.
	WeatherTraffic []CrossCount     `json:"weather_traffic" yaml:"weather_traffic"`
	DeliveryBy     []GroupedTarget  `json:"delivery_by" yaml:"delivery_by"`
	Histograms     map[string][]Bin `json:"histograms" yaml:"histograms"`
}

// HistogramBins is the bucket count used by Summarize.
const HistogramBins = 30

// Overview loads path and summarizes it.
func Overview(path string, opts LoadOptions) (*Summary, error) {
	ds, err := Load(path, opts)
	if err != nil {
		return nil, err
	}
	return Summarize(ds), nil
}

// Summarize computes the descriptive statistics of ds.
func Summarize(ds *Dataset) *Summary {
	s := &Summary{
		Rows:         ds.RawRows,
		UsableRows:   ds.Len(),
		Columns:      len(ds.Columns),
		ColumnNames:  ds.Columns,
		Missing:      ds.Missing,
		MissingTotal: ds.MissingTotal(),
		Imputed:      ds.Imputed,
		Duplicates:   ds.Duplicates,
		Dropped:      ds.Dropped,
		Histograms:   make(map[string][]Bin),
	}
	s.Head = append(s.Head, ds.Rows[:min(HeadSize, ds.Len())]...)

	cols := append(append([]string{}, model.NumericColumns...), model.ColDeliveryTime)
	for _, col := range cols {
		vals := numericColumn(ds, col)
		s.Numeric = append(s.Numeric, ColumnStats{Column: col, Distribution: Describe(vals)})
		s.Histograms[col] = Histogram(vals, HistogramBins)
	}

	for _, col := range model.CategoricalColumns {
		counts := make(map[string]int)
		for _, r := range ds.Rows {
			counts[r.Categorical(col)]++
		}
		s.Categorical = append(s.Categorical, CategoryCounts{Column: col, Levels: sortedCounts(counts)})
	}

	cross := make(map[[2]string]int)
	for _, r := range ds.Rows {
		cross[[2]string{r.Weather, r.TrafficLevel}]++
	}
	for k, n := range cross {
		s.WeatherTraffic = append(s.WeatherTraffic, CrossCount{Weather: k[0], Traffic: k[1], Count: n})
	}
	sort.Slice(s.WeatherTraffic, func(i, j int) bool {
		a, b := s.WeatherTraffic[i], s.WeatherTraffic[j]
		if a.Weather != b.Weather {
			return a.Weather < b.Weather
		}
		return a.Traffic < b.Traffic
	})

	for _, col := range []string{model.ColVehicle, model.ColWeather, model.ColTraffic, model.ColTimeOfDay} {
		groups := make(map[string][]float64)
		for i, r := range ds.Rows {
			groups[r.Categorical(col)] = append(groups[r.Categorical(col)], ds.Target[i])
		}
		levels := make([]string, 0, len(groups))
		for l := range groups {
			levels = append(levels, l)
		}
		sort.Strings(levels)
		g := GroupedTarget{Column: col}
		for _, l := range levels {
			g.Groups = append(g.Groups, GroupDistribution{Level: l, Distribution: Describe(groups[l])})
		}
		s.DeliveryBy = append(s.DeliveryBy, g)
	}
	return s
}

func numericColumn(ds *Dataset, col string) []float64 {
	out := make([]float64, ds.Len())
	if col == model.ColDeliveryTime {
		copy(out, ds.Target)
		return out
	}
	for i, r := range ds.Rows {
		out[i] = r.Numeric(col)
	}
	return out
}

// Describe computes the distribution of vals. Std is the sample standard
// deviation; quantiles use the empirical CDF.
func Describe(vals []float64) Distribution {
	if len(vals) == 0 {
		return Distribution{}
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return Distribution{
		Count:  len(sorted),
		Mean:   mean,
		Std:    std,
		Min:    sorted[0],
		Q1:     stat.Quantile(0.25, stat.Empirical, sorted, nil),
		Median: stat.Quantile(0.5, stat.Empirical, sorted, nil),
		Q3:     stat.Quantile(0.75, stat.Empirical, sorted, nil),
		Max:    sorted[len(sorted)-1],
	}
}

// Histogram buckets vals into bins of equal width spanning [min, max].
func Histogram(vals []float64, bins int) []Bin {
	if len(vals) == 0 || bins <= 0 {
		return nil
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	lo, hi := sorted[0], sorted[len(sorted)-1]
	if lo == hi {
		return []Bin{{Lower: lo, Upper: hi, Count: len(sorted)}}
	}
	dividers := floats.Span(make([]float64, bins+1), lo, hi)
	// the last divider must be strictly greater than every value
	dividers[bins] = math.Nextafter(hi, math.Inf(1))
	counts := stat.Histogram(nil, dividers, sorted, nil)
	out := make([]Bin, bins)
	for i := range out {
		out[i] = Bin{Lower: dividers[i], Upper: dividers[i+1], Count: int(counts[i])}
	}
	return out
}

func sortedCounts(counts map[string]int) []LevelCount {
	out := make([]LevelCount, 0, len(counts))
	for l, n := range counts {
		out = append(out, LevelCount{Level: l, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Level < out[j].Level
	})
	return out
}

// OverviewCache summarizes a dataset file on first use and keeps the result.
// Failed loads are retried on the next call.
type OverviewCache struct {
	path string
	opts LoadOptions

	mu      sync.Mutex
	summary *Summary
}

// NewOverviewCache returns a cache for the dataset at path.
func NewOverviewCache(path string, opts LoadOptions) *OverviewCache {
	return &OverviewCache{path: path, opts: opts}
}

// Overview returns the cached summary, loading the dataset if needed.
func (c *OverviewCache) Overview() (*Summary, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.summary != nil {
		return c.summary, nil
	}
	s, err := Overview(c.path, c.opts)
	if err != nil {
		return nil, err
	}
	c.summary = s
	return s, nil
}
