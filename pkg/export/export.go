package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/eta/core/predlog"
)

// csvHeader is the column layout of WriteCSV.
var csvHeader = []string{
	"request_id", "timestamp", "source",
	"distance_km", "weather", "traffic_level", "time_of_day", "vehicle_type",
	"preparation_time_min", "courier_experience_yrs",
	"minutes", "error",
}

// WriteJSON writes the prediction records to w in JSON format.
func WriteJSON(w io.Writer, records []predlog.Record) error {
	if records == nil {
		records = []predlog.Record{}
	}
	enc := json.NewEncoder(w)
	return enc.Encode(records)
}

// WriteCSV writes the prediction records to w in CSV format, one feature per column.
func WriteCSV(w io.Writer, records []predlog.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		rec := []string{
			r.RequestID,
			r.Timestamp.Format(time.RFC3339),
			r.Source,
			formatFloat(r.Row.DistanceKm),
			r.Row.Weather,
			r.Row.TrafficLevel,
			r.Row.TimeOfDay,
			r.Row.VehicleType,
			strconv.Itoa(r.Row.PreparationTimeMin),
			formatFloat(r.Row.CourierExperienceYrs),
			formatFloat(r.Minutes),
			r.Error,
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteYAML writes v to w as a YAML document.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
