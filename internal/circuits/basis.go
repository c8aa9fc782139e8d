package circuits

import (
	"fmt"

	"github.com/aristath/qlbm/internal/domain"
)

// BasisState returns the calibration circuit that prepares the computational
// basis state with the given index on qubits and measures them. Bit j of state
// is written to qubits[j].
func BasisState(qubits []int, state int) (*Circuit, error) {
	if len(qubits) == 0 {
		return nil, fmt.Errorf("basis state: no qubits")
	}
	if state < 0 || state >= 1<<len(qubits) {
		return nil, fmt.Errorf("basis state %d out of range for %d qubits", state, len(qubits))
	}

	numQubits := 0
	for _, q := range qubits {
		if q+1 > numQubits {
			numQubits = q + 1
		}
	}

	var gates []Gate
	for j, q := range qubits {
		if state&(1<<j) != 0 {
			gates = append(gates, Gate{Name: "x", Qubits: []int{q}})
		}
	}

	ideal := make([]float64, 1<<len(qubits))
	ideal[state] = 1
	name := "cal_" + domain.Bitstring(state, len(qubits))
	return New(name, numQubits, qubits, gates, ideal)
}

// BasisStates returns the 2^k calibration circuits for qubits in index order.
func BasisStates(qubits []int) ([]domain.Circuit, error) {
	out := make([]domain.Circuit, 0, 1<<len(qubits))
	for s := 0; s < 1<<len(qubits); s++ {
		c, err := BasisState(qubits, s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
