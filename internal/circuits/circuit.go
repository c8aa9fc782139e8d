package circuits

import (
	"fmt"
	"strings"
)

// Circuit is a gate list with a known ideal output distribution.
type Circuit struct {
	name      string
	numQubits int
	measured  []int
	gates     []Gate
	ideal     []float64
}

// New assembles a circuit. ideal is indexed by measured-bitstring value.
func New(name string, numQubits int, measured []int, gates []Gate, ideal []float64) (*Circuit, error) {
	if len(ideal) != 1<<len(measured) {
		return nil, fmt.Errorf("circuit %s: ideal distribution has %d entries, expected %d", name, len(ideal), 1<<len(measured))
	}
	for _, q := range measured {
		if q < 0 || q >= numQubits {
			return nil, fmt.Errorf("circuit %s: measured qubit %d outside register of %d", name, q, numQubits)
		}
	}
	return &Circuit{
		name:      name,
		numQubits: numQubits,
		measured:  append([]int(nil), measured...),
		gates:     gates,
		ideal:     ideal,
	}, nil
}

func (c *Circuit) Name() string { return c.name }

func (c *Circuit) MeasuredQubits() []int { return append([]int(nil), c.measured...) }

// Gates returns the gate list (excluding measurement).
func (c *Circuit) Gates() []Gate { return c.gates }

// Ideal returns the noiseless output distribution.
func (c *Circuit) Ideal() []float64 { return c.ideal }

// NumQubits returns the register size.
func (c *Circuit) NumQubits() int { return c.numQubits }

// WithGates returns a copy of c running a different, equivalent gate list.
func (c *Circuit) WithGates(name string, gates []Gate) *Circuit {
	return &Circuit{
		name:      name,
		numQubits: c.numQubits,
		measured:  c.measured,
		gates:     gates,
		ideal:     c.ideal,
	}
}

// Program renders the circuit as OpenQASM 3.
func (c *Circuit) Program() string {
	var b strings.Builder
	b.WriteString("OPENQASM 3.0;\ninclude \"stdgates.inc\";\n")
	fmt.Fprintf(&b, "qubit[%d] q;\nbit[%d] c;\n", c.numQubits, len(c.measured))
	for _, g := range c.gates {
		b.WriteString(g.QASM())
		b.WriteByte('\n')
	}
	for i, q := range c.measured {
		fmt.Fprintf(&b, "c[%d] = measure q[%d];\n", i, q)
	}
	return b.String()
}
