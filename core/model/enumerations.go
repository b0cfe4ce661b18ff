package model

import (
	"fmt"
	"slices"
)

// Enumerations lists the accepted levels of every categorical column.
// An empty list accepts any value for that column.
type Enumerations struct {
	Weather      []string `json:"weather" yaml:"weather"`
	TrafficLevel []string `json:"traffic_level" yaml:"traffic_level"`
	TimeOfDay    []string `json:"time_of_day" yaml:"time_of_day"`
	VehicleType  []string `json:"vehicle_type" yaml:"vehicle_type"`
}

// DefaultEnumerations returns the levels documented for the delivery dataset.
func DefaultEnumerations() Enumerations {
	return Enumerations{
		Weather:      []string{"Clear", "Rainy", "Snowy", "Foggy", "Windy"},
		TrafficLevel: []string{"Low", "Medium", "High"},
		TimeOfDay:    []string{"Morning", "Afternoon", "Evening", "Night"},
		VehicleType:  []string{"Bike", "Scooter", "Car"},
	}
}

// Values returns the configured levels for col.
func (e Enumerations) Values(col string) []string {
	switch col {
	case ColWeather:
		return e.Weather
	case ColTraffic:
		return e.TrafficLevel
	case ColTimeOfDay:
		return e.TimeOfDay
	case ColVehicle:
		return e.VehicleType
	}
	return nil
}

// Allows reports whether v is accepted for col.
func (e Enumerations) Allows(col, v string) bool {
	vals := e.Values(col)
	if len(vals) == 0 {
		return true
	}
	return slices.Contains(vals, v)
}

// SetDefaults fills empty columns with DefaultEnumerations.
func (e *Enumerations) SetDefaults() {
	d := DefaultEnumerations()
	if len(e.Weather) == 0 {
		e.Weather = d.Weather
	}
	if len(e.TrafficLevel) == 0 {
		e.TrafficLevel = d.TrafficLevel
	}
	if len(e.TimeOfDay) == 0 {
		e.TimeOfDay = d.TimeOfDay
	}
	if len(e.VehicleType) == 0 {
		e.VehicleType = d.VehicleType
	}
}

// Range describes the input bounds offered to interactive clients.
type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Contains reports whether v lies within [Min, Max].
func (r Range) Contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Ranges groups the numeric input ranges.
type Ranges struct {
	DistanceKm           Range `json:"distance_km"`
	PreparationTimeMin   Range `json:"preparation_time_min"`
	CourierExperienceYrs Range `json:"courier_experience_yrs"`
}

// Check returns an error wrapping ErrInvalidFeature when a numeric value of r
// falls outside its range.
func (rs Ranges) Check(r FeatureRow) error {
	for _, c := range []struct {
		col string
		rng Range
	}{
		{ColDistance, rs.DistanceKm},
		{ColPreparation, rs.PreparationTimeMin},
		{ColExperience, rs.CourierExperienceYrs},
	} {
		if v := r.Numeric(c.col); !c.rng.Contains(v) {
			return fmt.Errorf("%w: %s %v is outside [%v, %v]", ErrInvalidFeature, c.col, v, c.rng.Min, c.rng.Max)
		}
	}
	return nil
}

// DefaultRanges returns the slider bounds of the prediction form.
func DefaultRanges() Ranges {
	return Ranges{
		DistanceKm:           Range{Min: 0, Max: 50, Step: 0.1},
		PreparationTimeMin:   Range{Min: 0, Max: 120, Step: 1},
		CourierExperienceYrs: Range{Min: 0, Max: 20, Step: 1},
	}
}
