package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidFeature is returned when a FeatureRow fails validation.
var ErrInvalidFeature = errors.New("invalid feature row")

// Column names used by the delivery dataset.
const (
	ColOrderID        = "Order_ID"
	ColDistance       = "Distance_km"
	ColWeather        = "Weather"
	ColTraffic        = "Traffic_Level"
	ColTimeOfDay      = "Time_of_Day"
	ColVehicle        = "Vehicle_Type"
	ColPreparation    = "Preparation_Time_min"
	ColExperience     = "Courier_Experience_yrs"
	ColDeliveryTime   = "Delivery_Time_min"
	ColConditionCombo = "Condition_Combo"
)

// NumericColumns lists the numeric feature columns in encoding order.
var NumericColumns = []string{ColDistance, ColPreparation, ColExperience}

// CategoricalColumns lists the categorical feature columns in encoding order.
var CategoricalColumns = []string{ColWeather, ColTraffic, ColTimeOfDay, ColVehicle}

// FeatureRow is a single delivery observation used for training or inference.
type FeatureRow struct {
	DistanceKm           float64 `json:"distance_km" yaml:"distance_km" validate:"gte=0"`
	Weather              string  `json:"weather" yaml:"weather" validate:"required"`
	TrafficLevel         string  `json:"traffic_level" yaml:"traffic_level" validate:"required"`
	TimeOfDay            string  `json:"time_of_day" yaml:"time_of_day" validate:"required"`
	VehicleType          string  `json:"vehicle_type" yaml:"vehicle_type" validate:"required"`
	PreparationTimeMin   int     `json:"preparation_time_min" yaml:"preparation_time_min" validate:"gte=0"`
	CourierExperienceYrs float64 `json:"courier_experience_yrs" yaml:"courier_experience_yrs" validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewFeatureRow builds a row and validates it against enums.
func NewFeatureRow(distanceKm float64, weather, traffic, timeOfDay, vehicle string,
	preparationMin int, experienceYrs float64, enums Enumerations) (FeatureRow, error) {
	r := FeatureRow{
		DistanceKm:           distanceKm,
		Weather:              weather,
		TrafficLevel:         traffic,
		TimeOfDay:            timeOfDay,
		VehicleType:          vehicle,
		PreparationTimeMin:   preparationMin,
		CourierExperienceYrs: experienceYrs,
	}
	if err := r.Validate(enums); err != nil {
		return FeatureRow{}, err
	}
	return r, nil
}

// Validate checks numeric ranges and, for every column with a non-empty
// enumeration, that the categorical value is one of the allowed levels.
func (r FeatureRow) Validate(enums Enumerations) error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFeature, err)
	}
	if math.IsInf(r.DistanceKm, 0) || math.IsInf(r.CourierExperienceYrs, 0) {
		return fmt.Errorf("%w: numeric values must be finite", ErrInvalidFeature)
	}
	for _, col := range CategoricalColumns {
		v := r.Categorical(col)
		if !enums.Allows(col, v) {
			return fmt.Errorf("%w: %s %q is not one of %v", ErrInvalidFeature, col, v, enums.Values(col))
		}
	}
	return nil
}

// Numeric returns the value of a numeric column. Unknown columns yield NaN.
func (r FeatureRow) Numeric(col string) float64 {
	switch col {
	case ColDistance:
		return r.DistanceKm
	case ColPreparation:
		return float64(r.PreparationTimeMin)
	case ColExperience:
		return r.CourierExperienceYrs
	}
	return math.NaN()
}

// Categorical returns the value of a categorical column or "" when unknown.
func (r FeatureRow) Categorical(col string) string {
	switch col {
	case ColWeather:
		return r.Weather
	case ColTraffic:
		return r.TrafficLevel
	case ColTimeOfDay:
		return r.TimeOfDay
	case ColVehicle:
		return r.VehicleType
	}
	return ""
}
