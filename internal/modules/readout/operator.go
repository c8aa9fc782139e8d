package readout

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/modules/calibration"
)

// Operator is the inverse of a measured assignment matrix.
type Operator struct {
	width   int
	inverse *mat.Dense
}

// AssignmentMatrix builds A[observed][prepared] from a calibration record.
// Column j is the normalized histogram read out after preparing state j.
func AssignmentMatrix(record *calibration.Record) (*mat.Dense, error) {
	if err := record.Validate(); err != nil {
		return nil, err
	}
	k := len(record.Payload.Qubits)
	n := 1 << k
	a := mat.NewDense(n, n, nil)
	for prepared := 0; prepared < n; prepared++ {
		h := record.Payload.Counts[domain.Bitstring(prepared, k)]
		col, err := h.Vector(k)
		if err != nil {
			return nil, fmt.Errorf("prepared state %s: %w", domain.Bitstring(prepared, k), err)
		}
		a.SetCol(prepared, col)
	}
	return a, nil
}

// NewOperator inverts the assignment matrix of record.
func NewOperator(record *calibration.Record) (*Operator, error) {
	a, err := AssignmentMatrix(record)
	if err != nil {
		return nil, err
	}
	var inv mat.Dense
	if err := inv.Inverse(a); err != nil {
		return nil, fmt.Errorf("assignment matrix is not invertible: %w", err)
	}
	return &Operator{width: len(record.Payload.Qubits), inverse: &inv}, nil
}

// Width is the number of measured qubits the operator covers.
func (o *Operator) Width() int { return o.width }

// Apply returns the quasi-probability distribution A⁻¹·p over every outcome.
func (o *Operator) Apply(h domain.Histogram) (domain.QuasiDistribution, error) {
	p, err := h.Vector(o.width)
	if err != nil {
		return nil, err
	}
	var q mat.VecDense
	q.MulVec(o.inverse, mat.NewVecDense(len(p), p))

	quasi := make(domain.QuasiDistribution, len(p))
	for i := 0; i < q.Len(); i++ {
		quasi[domain.Bitstring(i, o.width)] = q.AtVec(i)
	}
	return quasi, nil
}

// Correct applies the operator, projects onto the nearest probability
// distribution and rescales to counts. A histogram without counts comes back
// empty.
func (o *Operator) Correct(h domain.Histogram, shots int) (domain.Histogram, error) {
	if h.IsZero() {
		return domain.Histogram{}, nil
	}
	quasi, err := o.Apply(h)
	if err != nil {
		return nil, err
	}
	probs, _ := quasi.NearestProbabilityDistribution()

	out := make(domain.Histogram)
	for bits, p := range probs {
		if c := domain.TruncCount(p, shots); c > 0 {
			out[bits] = c
		}
	}
	return out, nil
}
