package dashboard

import (
	"fmt"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/eta/core/dataset"
	"github.com/kilianp07/eta/core/model"
	"github.com/kilianp07/eta/core/pipeline"
)

// PageTitle is the HTML title of the rendered page.
const PageTitle = "Food delivery times"

// Render writes an HTML page with the dataset charts to w. Coefficient
// charts are added when coefs is not empty.
func Render(w io.Writer, s *dataset.Summary, coefs []pipeline.Coefficient) error {
	page := components.NewPage()
	page.PageTitle = PageTitle
	page.SetLayout(components.PageFlexLayout)

	for _, col := range append(append([]string{}, model.NumericColumns...), model.ColDeliveryTime) {
		if bins := s.Histograms[col]; len(bins) > 0 {
			page.AddCharts(histogram(col, bins))
		}
	}
	for _, c := range s.Categorical {
		page.AddCharts(levelCounts(c))
	}
	if len(s.WeatherTraffic) > 0 {
		page.AddCharts(weatherTraffic(s.WeatherTraffic))
	}
	for _, g := range s.DeliveryBy {
		page.AddCharts(boxPlot(g))
	}
	if len(coefs) > 0 {
		page.AddCharts(coefficients(coefs))
	}
	return page.Render(w)
}

func title(t, sub string) charts.GlobalOpts {
	return charts.WithTitleOpts(opts.Title{Title: t, Subtitle: sub})
}

func histogram(col string, bins []dataset.Bin) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(title("Distribution of "+col, fmt.Sprintf("%d bins", len(bins))))
	labels := make([]string, len(bins))
	data := make([]opts.BarData, len(bins))
	for i, b := range bins {
		labels[i] = fmt.Sprintf("%.1f", b.Lower)
		data[i] = opts.BarData{Value: b.Count}
	}
	bar.SetXAxis(labels).AddSeries("count", data)
	return bar
}

func levelCounts(c dataset.CategoryCounts) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(title(c.Column, "orders per level"))
	labels := make([]string, len(c.Levels))
	data := make([]opts.BarData, len(c.Levels))
	for i, l := range c.Levels {
		labels[i] = l.Level
		data[i] = opts.BarData{Value: l.Count}
	}
	bar.SetXAxis(labels).AddSeries("orders", data)
	return bar
}

// weatherTraffic stacks one series per traffic level over the weather axis.
func weatherTraffic(cross []dataset.CrossCount) *charts.Bar {
	var weathers, traffics []string
	counts := make(map[[2]string]int)
	seenW, seenT := map[string]bool{}, map[string]bool{}
	for _, c := range cross {
		if !seenW[c.Weather] {
			seenW[c.Weather] = true
			weathers = append(weathers, c.Weather)
		}
		if !seenT[c.Traffic] {
			seenT[c.Traffic] = true
			traffics = append(traffics, c.Traffic)
		}
		counts[[2]string{c.Weather, c.Traffic}] = c.Count
	}
	sort.Strings(traffics)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		title("Orders by weather and traffic", ""),
		charts.WithLegendOpts(opts.Legend{Top: "bottom"}),
	)
	bar.SetXAxis(weathers)
	for _, tr := range traffics {
		data := make([]opts.BarData, len(weathers))
		for i, w := range weathers {
			data[i] = opts.BarData{Value: counts[[2]string{w, tr}]}
		}
		bar.AddSeries(tr, data, charts.WithBarChartOpts(opts.BarChart{Stack: "traffic"}))
	}
	return bar
}

func boxPlot(g dataset.GroupedTarget) *charts.BoxPlot {
	box := charts.NewBoxPlot()
	box.SetGlobalOptions(title("Delivery time by "+g.Column, "minutes"))
	labels := make([]string, len(g.Groups))
	data := make([]opts.BoxPlotData, len(g.Groups))
	for i, l := range g.Groups {
		labels[i] = l.Level
		d := l.Distribution
		data[i] = opts.BoxPlotData{Name: l.Level, Value: []float64{d.Min, d.Q1, d.Median, d.Q3, d.Max}}
	}
	box.SetXAxis(labels).AddSeries(model.ColDeliveryTime, data)
	return box
}

func coefficients(coefs []pipeline.Coefficient) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(title("Model coefficients", "minutes per standardized unit or level"))
	labels := make([]string, len(coefs))
	data := make([]opts.BarData, len(coefs))
	for i, c := range coefs {
		labels[i] = c.Feature
		data[i] = opts.BarData{Value: c.Weight}
	}
	bar.SetXAxis(labels).AddSeries("weight", data)
	return bar
}
