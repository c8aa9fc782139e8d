package domain

// Circuit is a runnable circuit produced by the circuit builder.
type Circuit interface {
	Name() string
	// MeasuredQubits lists measured qubit indices; the order defines the bit
	// order of every histogram the circuit produces (first entry = rightmost bit).
	MeasuredQubits() []int
	// Program is the serialized form sent to a remote backend.
	Program() string
}

// CircuitBuilder produces the circuit for a given number of algorithm steps.
// Step 0 is initial conditions plus measurement.
type CircuitBuilder interface {
	Build(lattice Lattice, steps int) (Circuit, error)
}

// BuildSteps builds the circuits for steps 0..steps inclusive.
func BuildSteps(b CircuitBuilder, lattice Lattice, steps int) ([]Circuit, error) {
	circuits := make([]Circuit, 0, steps+1)
	for i := 0; i <= steps; i++ {
		c, err := b.Build(lattice, i)
		if err != nil {
			return nil, err
		}
		circuits = append(circuits, c)
	}
	return circuits, nil
}
