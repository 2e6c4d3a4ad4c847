package training

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/i474232898/aqi-service/internal/regression"
)

// FitLinear solves ordinary least squares with an intercept term.
func FitLinear(X [][]float64, y []float64) (*regression.Linear, error) {
	n := len(X)
	if n == 0 || n != len(y) {
		return nil, fmt.Errorf("fit linear: %d rows, %d targets", n, len(y))
	}
	d := len(X[0])
	if n <= d {
		return nil, fmt.Errorf("fit linear: need more than %d rows, got %d", d, n)
	}

	a := mat.NewDense(n, d+1, nil)
	for i, x := range X {
		a.Set(i, 0, 1)
		for j, v := range x {
			a.Set(i, j+1, v)
		}
	}
	b := mat.NewVecDense(n, append([]float64(nil), y...))

	var beta mat.VecDense
	if err := beta.SolveVec(a, b); err != nil {
		return nil, fmt.Errorf("fit linear: %w", err)
	}

	coef := make([]float64, d)
	for j := range coef {
		coef[j] = beta.AtVec(j + 1)
	}
	return &regression.Linear{Intercept: beta.AtVec(0), Coefficients: coef}, nil
}
