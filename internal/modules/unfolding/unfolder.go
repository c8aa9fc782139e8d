// Package unfolding implements iterative Bayesian unfolding of measured
// histograms against tensored single-qubit response matrices.
package unfolding

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/utils"
)

// Params controls the EM solver.
type Params struct {
	MaxIterations int
	// Tolerance bounds the L2 distance between successive iterates.
	Tolerance float64
	// Smoothing is added to the predicted distribution before division.
	Smoothing float64
}

// DefaultParams returns the canonical solver settings.
func DefaultParams() Params {
	return Params{MaxIterations: 100, Tolerance: 1e-4, Smoothing: 1e-8}
}

// Unfolder runs IBU for every circuit of a batch.
type Unfolder struct {
	backend backend.Backend
	params  Params
	metrics *metrics.Metrics
	log     zerolog.Logger
}

// NewUnfolder creates an unfolder reading response matrices from b.
func NewUnfolder(b backend.Backend, params Params, m *metrics.Metrics, log zerolog.Logger) *Unfolder {
	def := DefaultParams()
	if params.MaxIterations <= 0 {
		params.MaxIterations = def.MaxIterations
	}
	if params.Tolerance <= 0 {
		params.Tolerance = def.Tolerance
	}
	if params.Smoothing <= 0 {
		params.Smoothing = def.Smoothing
	}
	return &Unfolder{
		backend: b,
		params:  params,
		metrics: m,
		log:     log.With().Str("component", "unfolding").Logger(),
	}
}

// ResponseMatrix returns the 2×2 matrix R[observed][true] for one qubit.
func ResponseMatrix(p backend.QubitProperties) *mat.Dense {
	e0, e1 := p.ProbMeas1Prep0, p.ProbMeas0Prep1
	return mat.NewDense(2, 2, []float64{
		1 - e0, e1,
		e0, 1 - e1,
	})
}

// TensorResponse combines per-qubit responses for the measured qubits. The
// first measured qubit is the least significant bit, so it is the rightmost
// Kronecker factor.
func TensorResponse(props *backend.Properties, measured []int) (*mat.Dense, error) {
	if len(measured) == 0 {
		return nil, fmt.Errorf("no measured qubits")
	}
	var full *mat.Dense
	for _, q := range measured {
		qp, err := props.Qubit(q)
		if err != nil {
			return nil, err
		}
		r := ResponseMatrix(qp)
		if full == nil {
			full = r
			continue
		}
		var next mat.Dense
		next.Kronecker(r, full)
		full = &next
	}
	return full, nil
}

// Result is the outcome of one solver run.
type Result struct {
	Probabilities []float64
	Iterations    int
	Converged     bool
}

// Solve runs expectation maximization for the observed distribution under
// response r, starting from the uniform guess.
func Solve(r mat.Matrix, observed []float64, params Params) Result {
	n := len(observed)
	guess := make([]float64, n)
	for i := range guess {
		guess[i] = 1 / float64(n)
	}
	m := mat.NewVecDense(n, observed)

	var predicted, ratio, back mat.VecDense
	next := make([]float64, n)
	for it := 1; it <= params.MaxIterations; it++ {
		predicted.MulVec(r, mat.NewVecDense(n, guess))
		ratio.CloneFromVec(m)
		for i := 0; i < n; i++ {
			ratio.SetVec(i, ratio.AtVec(i)/(predicted.AtVec(i)+params.Smoothing))
		}
		back.MulVec(r.T(), &ratio)
		for i := range next {
			next[i] = guess[i] * back.AtVec(i)
		}

		dist := floats.Distance(next, guess, 2)
		copy(guess, next)
		if dist < params.Tolerance {
			return Result{Probabilities: guess, Iterations: it, Converged: true}
		}
	}
	return Result{Probabilities: guess, Iterations: params.MaxIterations}
}

// Unfold corrects every histogram against the response of its circuit's
// measured qubits. histograms[i] must come from circuits[i].
func (u *Unfolder) Unfold(ctx context.Context, circuits []domain.Circuit, shots int, histograms []domain.Histogram) ([]domain.Histogram, error) {
	if len(circuits) != len(histograms) {
		return nil, fmt.Errorf("%d circuits for %d histograms", len(circuits), len(histograms))
	}
	if len(histograms) == 0 {
		return nil, nil
	}

	width := 0
	for _, c := range circuits {
		width = max(width, len(c.MeasuredQubits()))
	}
	if err := utils.EnsureMemory(utils.DenseMatrixBytes(1<<width) * uint64(min(len(circuits), runtime.GOMAXPROCS(0)))); err != nil {
		return nil, err
	}

	props, err := u.backend.Properties(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Histogram, len(histograms))
	g, _ := errgroup.WithContext(ctx)
	for i := range histograms {
		i := i
		g.Go(func() error {
			h, err := u.unfoldOne(props, circuits[i], histograms[i], shots)
			if err != nil {
				return fmt.Errorf("circuit %s: %w", circuits[i].Name(), err)
			}
			out[i] = h
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (u *Unfolder) unfoldOne(props *backend.Properties, c domain.Circuit, h domain.Histogram, shots int) (domain.Histogram, error) {
	measured := c.MeasuredQubits()
	r, err := TensorResponse(props, measured)
	if err != nil {
		return nil, err
	}
	if h.IsZero() {
		return domain.Histogram{}, nil
	}
	observed, err := h.Vector(len(measured))
	if err != nil {
		return nil, err
	}

	res := Solve(r, observed, u.params)
	u.metrics.Unfolded(res.Iterations, res.Converged)
	if !res.Converged {
		u.log.Warn().
			Str("circuit", c.Name()).
			Int("iterations", res.Iterations).
			Msg("Unfolding hit the iteration cap, using last iterate")
	} else {
		u.log.Debug().Str("circuit", c.Name()).Int("iterations", res.Iterations).Msg("Unfolding converged")
	}

	for i, p := range res.Probabilities {
		if math.IsNaN(p) {
			return nil, fmt.Errorf("unfolding diverged at outcome %s", domain.Bitstring(i, len(measured)))
		}
	}
	return domain.CountsFromProbabilities(res.Probabilities, len(measured), shots), nil
}
