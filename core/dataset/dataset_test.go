package dataset

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/eta/core/model"
)

const header = "Order_ID;Distance_km;Weather;Traffic_Level;Time_of_Day;Vehicle_Type;Preparation_Time_min;Courier_Experience_yrs;Delivery_Time_min\n"

const sample = header +
	"522;7,93;Windy;Low;Afternoon;Scooter;12;1;43\n" +
	"738;16,42;Clear;Medium;Evening;Bike;20;2;84\n" +
	"741;9,52;Foggy;Low;Night;Scooter;28;1;59\n" +
	"661;7,44;Rainy;Medium;Afternoon;Scooter;5;1;37\n" +
	"412;19,03;Clear;Low;Morning;Bike;16;5;68\n" +
	"101;3,5;;High;Morning;Car;10;;30\n" +
	"102;4;Clear;Low;Morning;Car;10;3;\n"

func TestRead_ParsesCommaDecimalsAndImputes(t *testing.T) {
	ds, err := Read(strings.NewReader(sample), LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, 7, ds.RawRows)
	assert.Equal(t, 6, ds.Len())
	assert.Equal(t, 1, ds.Dropped)
	assert.InDelta(t, 7.93, ds.Rows[0].DistanceKm, 1e-12)
	assert.Equal(t, 12, ds.Rows[0].PreparationTimeMin)
	assert.Equal(t, 43.0, ds.Target[0])

	assert.Equal(t, 1, ds.Missing[model.ColWeather])
	assert.Equal(t, 1, ds.Missing[model.ColExperience])
	assert.Equal(t, 1, ds.Missing[model.ColDeliveryTime])
	assert.Equal(t, 0, ds.Missing[model.ColOrderID])
	assert.Equal(t, 3, ds.MissingTotal())

	// mode of Weather among the valid rows is Clear (3 of 6)
	assert.Equal(t, "Clear", ds.Rows[5].Weather)
	// mode of experience is 1
	assert.Equal(t, 1.0, ds.Rows[5].CourierExperienceYrs)
	assert.Equal(t, 1, ds.Imputed[model.ColWeather])
}

func TestRead_DisableImputationDropsRows(t *testing.T) {
	ds, err := Read(strings.NewReader(sample), LoadOptions{DisableImputation: true})
	require.NoError(t, err)
	assert.Equal(t, 5, ds.Len())
	assert.Equal(t, 2, ds.Dropped)
}

func TestRead_Errors(t *testing.T) {
	cases := map[string]string{
		"empty":          "",
		"header only":    header,
		"missing column": "Distance_km;Weather\n1;Clear\n",
		"no usable rows": header + "1;x;Clear;Low;Morning;Car;10;1;\n",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Read(strings.NewReader(in), LoadOptions{})
			assert.ErrorIs(t, err, ErrDatasetLoad)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), LoadOptions{})
	assert.ErrorIs(t, err, ErrDatasetLoad)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delivery.csv")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	ds, err := Load(path, LoadOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, 6, ds.Len())
}

func TestParseDecimal(t *testing.T) {
	v, err := ParseDecimal(" 12,5 ")
	require.NoError(t, err)
	assert.Equal(t, 12.5, v)
	_, err = ParseDecimal("")
	assert.Error(t, err)
	_, err = ParseDecimal("abc")
	assert.Error(t, err)
	_, err = ParseDecimal("Inf")
	assert.Error(t, err)
}

func TestSplit(t *testing.T) {
	ds := &Dataset{}
	for i := 0; i < 10; i++ {
		ds.Rows = append(ds.Rows, model.FeatureRow{DistanceKm: float64(i)})
		ds.Target = append(ds.Target, float64(i))
	}
	train, test, err := Split(ds, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, 8, train.Len())
	assert.Equal(t, 2, test.Len())

	seen := map[float64]bool{}
	for _, v := range append(append([]float64{}, train.Target...), test.Target...) {
		assert.False(t, seen[v])
		seen[v] = true
	}

	train2, test2, err := Split(ds, 0.2, 42)
	require.NoError(t, err)
	assert.Equal(t, train.Target, train2.Target)
	assert.Equal(t, test.Target, test2.Target)

	_, _, err = Split(ds, 1, 42)
	assert.Error(t, err)
	_, _, err = Split(&Dataset{}, 0.2, 42)
	assert.ErrorIs(t, err, ErrDatasetLoad)

	one := ds.Subset([]int{3})
	tr, te, err := Split(one, 0.5, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, tr.Len())
	assert.Equal(t, 0, te.Len())
}

func TestSummarize(t *testing.T) {
	ds, err := Read(strings.NewReader(sample), LoadOptions{})
	require.NoError(t, err)
	s := Summarize(ds)

	assert.Equal(t, 7, s.Rows)
	assert.Equal(t, 9, s.Columns)
	assert.Equal(t, 3, s.MissingTotal)
	assert.Len(t, s.Head, 6)
	require.Len(t, s.Numeric, 4)
	assert.Equal(t, model.ColDeliveryTime, s.Numeric[3].Column)
	assert.Equal(t, 30.0, s.Numeric[3].Min)
	assert.Equal(t, 84.0, s.Numeric[3].Max)

	require.Len(t, s.Categorical, 4)
	assert.Equal(t, LevelCount{Level: "Clear", Count: 3}, s.Categorical[0].Levels[0])

	total := 0
	for _, c := range s.WeatherTraffic {
		total += c.Count
	}
	assert.Equal(t, ds.Len(), total)
	assert.Equal(t, "Clear", s.WeatherTraffic[0].Weather)

	require.Len(t, s.DeliveryBy, 4)
	assert.Equal(t, model.ColVehicle, s.DeliveryBy[0].Column)
	assert.Equal(t, "Bike", s.DeliveryBy[0].Groups[0].Level)
	assert.Equal(t, 2, s.DeliveryBy[0].Groups[0].Count)

	bins := s.Histograms[model.ColDistance]
	require.Len(t, bins, HistogramBins)
	n := 0
	for _, b := range bins {
		n += b.Count
	}
	assert.Equal(t, ds.Len(), n)
}

func TestDescribeAndHistogramEdgeCases(t *testing.T) {
	assert.Equal(t, Distribution{}, Describe(nil))
	d := Describe([]float64{4})
	assert.Equal(t, 0.0, d.Std)
	assert.Equal(t, 4.0, d.Median)

	assert.Nil(t, Histogram(nil, 5))
	bins := Histogram([]float64{2, 2, 2}, 5)
	require.Len(t, bins, 1)
	assert.Equal(t, 3, bins[0].Count)
}

func TestOverviewCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "delivery.csv")
	c := NewOverviewCache(path, LoadOptions{})
	_, err := c.Overview()
	assert.ErrorIs(t, err, ErrDatasetLoad)

	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))
	s, err := c.Overview()
	require.NoError(t, err)
	assert.Equal(t, 7, s.Rows)

	require.NoError(t, os.Remove(path))
	again, err := c.Overview()
	require.NoError(t, err)
	assert.Same(t, s, again)
}
