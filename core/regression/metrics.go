package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Score summarizes the fit quality on a labelled set.
type Score struct {
	RMSE float64 `json:"rmse" yaml:"rmse"`
	MAE  float64 `json:"mae" yaml:"mae"`
	R2   float64 `json:"r2" yaml:"r2"`
	N    int     `json:"n" yaml:"n"`
}

// Evaluate computes RMSE, MAE and R² of yhat against y.
func Evaluate(y, yhat []float64) (Score, error) {
	if len(y) != len(yhat) {
		return Score{}, fmt.Errorf("%w: %d targets, %d estimates", ErrShapeMismatch, len(y), len(yhat))
	}
	if len(y) == 0 {
		return Score{}, fmt.Errorf("%w: empty evaluation set", ErrInsufficientData)
	}
	return Score{RMSE: RMSE(y, yhat), MAE: MAE(y, yhat), R2: R2(y, yhat), N: len(y)}, nil
}

// RMSE is the root mean squared error. Inputs must have equal length.
func RMSE(y, yhat []float64) float64 {
	if len(y) == 0 || len(y) != len(yhat) {
		return math.NaN()
	}
	var s float64
	for i := range y {
		d := y[i] - yhat[i]
		s += d * d
	}
	return math.Sqrt(s / float64(len(y)))
}

// MAE is the mean absolute error.
func MAE(y, yhat []float64) float64 {
	if len(y) == 0 || len(y) != len(yhat) {
		return math.NaN()
	}
	var s float64
	for i := range y {
		s += math.Abs(y[i] - yhat[i])
	}
	return s / float64(len(y))
}

// R2 is the coefficient of determination.
func R2(y, yhat []float64) float64 {
	if len(y) == 0 || len(y) != len(yhat) {
		return math.NaN()
	}
	return stat.RSquaredFrom(yhat, y, nil)
}
