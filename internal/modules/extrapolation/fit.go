package extrapolation

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// PolyFit returns the least-squares coefficients c0..c_degree of the
// polynomial through (xs, ys).
func PolyFit(xs, ys []float64, degree int) ([]float64, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%d x values for %d y values", len(xs), len(ys))
	}
	if len(xs) <= degree {
		return nil, fmt.Errorf("degree %d fit needs at least %d points, got %d", degree, degree+1, len(xs))
	}

	vander := mat.NewDense(len(xs), degree+1, nil)
	for i, x := range xs {
		p := 1.0
		for j := 0; j <= degree; j++ {
			vander.Set(i, j, p)
			p *= x
		}
	}

	var c mat.VecDense
	if err := c.SolveVec(vander, mat.NewVecDense(len(ys), ys)); err != nil {
		return nil, fmt.Errorf("least squares fit failed: %w", err)
	}
	return c.RawVector().Data, nil
}

// ZeroNoiseEstimate fits a degree-2 polynomial and evaluates it at zero.
func ZeroNoiseEstimate(scales, expectations []float64) (float64, error) {
	coeffs, err := PolyFit(scales, expectations, 2)
	if err != nil {
		return 0, err
	}
	return coeffs[0], nil
}
