package ml

import (
	"gonum.org/v1/gonum/stat"
)

// Scaler standardizes feature vectors against the column means and
// standard deviations observed at training time.
type Scaler struct {
	Mean []float64
	Std  []float64
}

// FitScaler computes per-column mean and standard deviation over the
// training matrix. Constant columns get a unit deviation so scaling
// never divides by zero.
func FitScaler(x [][]float64) *Scaler {
	if len(x) == 0 {
		return &Scaler{}
	}
	cols := len(x[0])
	s := &Scaler{
		Mean: make([]float64, cols),
		Std:  make([]float64, cols),
	}
	column := make([]float64, len(x))
	for j := 0; j < cols; j++ {
		for i := range x {
			column[i] = x[i][j]
		}
		s.Mean[j] = stat.Mean(column, nil)
		std := stat.StdDev(column, nil)
		if std == 0 || std != std { // zero or NaN (single row)
			std = 1
		}
		s.Std[j] = std
	}
	return s
}

// Transform returns the standardized copy of one vector.
func (s *Scaler) Transform(x []float64) []float64 {
	out := make([]float64, len(x))
	for i, v := range x {
		if i < len(s.Mean) {
			out[i] = (v - s.Mean[i]) / s.Std[i]
		} else {
			out[i] = v
		}
	}
	return out
}

// TransformAll standardizes a whole matrix.
func (s *Scaler) TransformAll(x [][]float64) [][]float64 {
	out := make([][]float64, len(x))
	for i, row := range x {
		out[i] = s.Transform(row)
	}
	return out
}
