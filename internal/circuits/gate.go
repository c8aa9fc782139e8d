// Package circuits provides the gate-list circuits used by the local simulator:
// the reference transport builder, basis-state calibration circuits and the
// random gate folder used for noise amplification.
package circuits

import (
	"fmt"
	"strings"
)

// Gate is a single operation on one or more qubits. For controlled gates the
// target is the last qubit.
type Gate struct {
	Name   string
	Qubits []int
	Params []float64
}

var selfInverse = map[string]bool{
	"x": true, "y": true, "z": true, "h": true, "cx": true, "cz": true, "swap": true, "mcx": true,
}

var adjointNames = map[string]string{
	"s": "sdg", "sdg": "s", "t": "tdg", "tdg": "t", "sx": "sxdg", "sxdg": "sx",
}

// Inverse returns the adjoint gate.
func (g Gate) Inverse() Gate {
	inv := Gate{Name: g.Name, Qubits: append([]int(nil), g.Qubits...)}
	switch {
	case selfInverse[g.Name]:
	case adjointNames[g.Name] != "":
		inv.Name = adjointNames[g.Name]
	default:
		// Rotations: negate every angle
		inv.Params = make([]float64, len(g.Params))
		for i, p := range g.Params {
			inv.Params[i] = -p
		}
		return inv
	}
	inv.Params = append([]float64(nil), g.Params...)
	return inv
}

// IsInverseOf reports whether g undoes other.
func (g Gate) IsInverseOf(other Gate) bool {
	inv := other.Inverse()
	if g.Name != inv.Name || len(g.Qubits) != len(inv.Qubits) || len(g.Params) != len(inv.Params) {
		return false
	}
	for i := range g.Qubits {
		if g.Qubits[i] != inv.Qubits[i] {
			return false
		}
	}
	for i := range g.Params {
		if g.Params[i] != inv.Params[i] {
			return false
		}
	}
	return true
}

// QASM renders the gate as an OpenQASM 3 statement.
func (g Gate) QASM() string {
	operands := make([]string, len(g.Qubits))
	for i, q := range g.Qubits {
		operands[i] = fmt.Sprintf("q[%d]", q)
	}
	name := g.Name
	if g.Name == "mcx" {
		name = fmt.Sprintf("ctrl(%d) @ x", len(g.Qubits)-1)
	}
	if len(g.Params) > 0 {
		ps := make([]string, len(g.Params))
		for i, p := range g.Params {
			ps[i] = fmt.Sprintf("%g", p)
		}
		name = fmt.Sprintf("%s(%s)", name, strings.Join(ps, ", "))
	}
	return fmt.Sprintf("%s %s;", name, strings.Join(operands, ", "))
}

// CancelInversePairs removes adjacent gate/adjoint pairs until none remain.
// This is what an optimizing transpiler pass does to a folded circuit.
func CancelInversePairs(gates []Gate) []Gate {
	stack := make([]Gate, 0, len(gates))
	for _, g := range gates {
		if n := len(stack); n > 0 && g.IsInverseOf(stack[n-1]) {
			stack = stack[:n-1]
			continue
		}
		stack = append(stack, g)
	}
	return stack
}
