package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/kilianp07/eta/core/dataset"
)

// Sheet names produced by WriteSummaryXLSX.
const (
	SheetOverview       = "Overview"
	SheetNumeric        = "Numeric"
	SheetCategorical    = "Categorical"
	SheetWeatherTraffic = "WeatherTraffic"
	SheetDeliveryBy     = "DeliveryBy"
)

// WriteSummaryXLSX renders s as a workbook with one sheet per section.
func WriteSummaryXLSX(w io.Writer, s *dataset.Summary) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetOverview); err != nil {
		return err
	}
	for _, name := range []string{SheetNumeric, SheetCategorical, SheetWeatherTraffic, SheetDeliveryBy} {
		if _, err := f.NewSheet(name); err != nil {
			return err
		}
	}

	sw := sheetWriter{f: f}
	sw.sheet(SheetOverview)
	sw.row("rows", s.Rows)
	sw.row("usable_rows", s.UsableRows)
	sw.row("columns", s.Columns)
	sw.row("missing_total", s.MissingTotal)
	sw.row("duplicates", s.Duplicates)
	sw.row("dropped", s.Dropped)
	sw.row()
	sw.row("column", "missing", "imputed")
	for _, col := range sortedKeys(s.Missing) {
		sw.row(col, s.Missing[col], s.Imputed[col])
	}

	sw.sheet(SheetNumeric)
	sw.row("column", "count", "mean", "std", "min", "q1", "median", "q3", "max")
	for _, c := range s.Numeric {
		d := c.Distribution
		sw.row(c.Column, d.Count, d.Mean, d.Std, d.Min, d.Q1, d.Median, d.Q3, d.Max)
	}

	sw.sheet(SheetCategorical)
	sw.row("column", "level", "count")
	for _, c := range s.Categorical {
		for _, l := range c.Levels {
			sw.row(c.Column, l.Level, l.Count)
		}
	}

	sw.sheet(SheetWeatherTraffic)
	sw.row("weather", "traffic_level", "count")
	for _, c := range s.WeatherTraffic {
		sw.row(c.Weather, c.Traffic, c.Count)
	}

	sw.sheet(SheetDeliveryBy)
	sw.row("column", "level", "count", "mean", "min", "q1", "median", "q3", "max")
	for _, g := range s.DeliveryBy {
		for _, l := range g.Groups {
			d := l.Distribution
			sw.row(g.Column, l.Level, d.Count, d.Mean, d.Min, d.Q1, d.Median, d.Q3, d.Max)
		}
	}

	if sw.err != nil {
		return sw.err
	}
	f.SetActiveSheet(0)
	return f.Write(w)
}

// sheetWriter appends rows to the current sheet and keeps the first error.
type sheetWriter struct {
	f    *excelize.File
	name string
	next int
	err  error
}

func (s *sheetWriter) sheet(name string) {
	s.name = name
	s.next = 1
}

func (s *sheetWriter) row(vals ...any) {
	if s.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, s.next)
	if err != nil {
		s.err = err
		return
	}
	s.next++
	if len(vals) == 0 {
		return
	}
	if err := s.f.SetSheetRow(s.name, cell, &vals); err != nil {
		s.err = fmt.Errorf("sheet %s: %w", s.name, err)
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
