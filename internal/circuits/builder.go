package circuits

import (
	"fmt"
	"math/bits"

	"github.com/aristath/qlbm/internal/domain"
)

// ReferenceBuilder builds a streaming-only transport model on the grid
// register. The x register holds log2(width) qubits starting at qubit 0 and
// the y register the following log2(height) qubits. The initial condition
// fills the left half of the domain uniformly; every step shifts the x
// register by one site with periodic boundaries.
type ReferenceBuilder struct{}

// NewReferenceBuilder returns a ReferenceBuilder.
func NewReferenceBuilder() *ReferenceBuilder {
	return &ReferenceBuilder{}
}

// Build returns the circuit for the given number of steps.
func (b *ReferenceBuilder) Build(lattice domain.Lattice, steps int) (domain.Circuit, error) {
	if steps < 0 {
		return nil, fmt.Errorf("negative step count %d", steps)
	}
	dims := lattice.Dims()
	if err := dims.Validate(); err != nil {
		return nil, err
	}

	nx := bits.Len(uint(dims.Width)) - 1
	ny := bits.Len(uint(dims.Height)) - 1
	n := nx + ny

	var gates []Gate
	for q := 0; q < nx-1; q++ {
		gates = append(gates, Gate{Name: "h", Qubits: []int{q}})
	}
	for q := nx; q < n; q++ {
		gates = append(gates, Gate{Name: "h", Qubits: []int{q}})
	}
	for s := 0; s < steps; s++ {
		gates = append(gates, increment(nx)...)
	}

	measured := make([]int, n)
	for i := range measured {
		measured[i] = i
	}

	name := fmt.Sprintf("%s-%s-step%d", lattice.Kind(), dims, steps)
	return New(name, n, measured, gates, transportIdeal(dims, steps))
}

// increment adds one modulo 2^nx to the register on qubits 0..nx-1.
func increment(nx int) []Gate {
	gates := make([]Gate, 0, nx)
	for j := nx - 1; j >= 0; j-- {
		qs := make([]int, j+1)
		for i := range qs {
			qs[i] = i
		}
		switch j {
		case 0:
			gates = append(gates, Gate{Name: "x", Qubits: qs})
		case 1:
			gates = append(gates, Gate{Name: "cx", Qubits: qs})
		default:
			gates = append(gates, Gate{Name: "mcx", Qubits: qs})
		}
	}
	return gates
}

func transportIdeal(dims domain.Dims, steps int) []float64 {
	w, h := dims.Width, dims.Height
	ideal := make([]float64, w*h)
	populated := float64((w / 2) * h)
	for x0 := 0; x0 < w/2; x0++ {
		x := (x0 + steps) % w
		for y := 0; y < h; y++ {
			ideal[x+w*y] = 1 / populated
		}
	}
	return ideal
}
