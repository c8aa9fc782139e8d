package testing

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/backend/simulator"
	"github.com/aristath/qlbm/internal/domain"
)

// ScenarioHistogram is the 2-qubit measurement used across pipeline tests.
func ScenarioHistogram() domain.Histogram {
	return domain.Histogram{"00": 600, "01": 200, "10": 150, "11": 50}
}

// NoisyReadout returns asymmetric readout errors for the first n qubits.
func NoisyReadout(n int) map[int]backend.QubitProperties {
	out := make(map[int]backend.QubitProperties, n)
	for q := 0; q < n; q++ {
		out[q] = backend.QubitProperties{
			ProbMeas1Prep0: 0.02 + 0.01*float64(q),
			ProbMeas0Prep1: 0.05 + 0.01*float64(q),
		}
	}
	return out
}

// NewNoisySimulator returns a seeded simulator with readout noise on n qubits
// and no gate noise.
func NewNoisySimulator(name string, n int, seed int64) *simulator.Simulator {
	return simulator.New(simulator.Config{
		Name:    name,
		Readout: NoisyReadout(n),
		Seed:    seed,
	}, zerolog.Nop())
}

// Collisionless returns a collisionless lattice, failing the test on invalid dims.
func Collisionless(t *testing.T, w, h int) *domain.Collisionless {
	t.Helper()
	l, err := domain.NewCollisionless(domain.Dims{Width: w, Height: h})
	if err != nil {
		t.Fatalf("invalid lattice: %v", err)
	}
	return l
}
