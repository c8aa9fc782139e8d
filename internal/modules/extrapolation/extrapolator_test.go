package extrapolation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/backend/simulator"
	"github.com/aristath/qlbm/internal/circuits"
	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/calibration"
	"github.com/aristath/qlbm/internal/modules/readout"
	"github.com/aristath/qlbm/internal/modules/unfolding"
	testingpkg "github.com/aristath/qlbm/internal/testing"
)

func TestPolyFit_ExactQuadratic(t *testing.T) {
	xs := []float64{1, 2, 3, 4}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 1 - 0.2*x + 0.01*x*x
	}
	c, err := PolyFit(xs, ys, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, c[0], 1e-9)
	assert.InDelta(t, -0.2, c[1], 1e-9)
	assert.InDelta(t, 0.01, c[2], 1e-9)

	est, err := ZeroNoiseEstimate(xs, ys)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, est, 1e-9)
}

func TestPolyFit_TooFewPoints(t *testing.T) {
	_, err := PolyFit([]float64{1, 2}, []float64{1, 2}, 2)
	assert.Error(t, err)
	_, err = PolyFit([]float64{1, 2, 3}, []float64{1, 2}, 2)
	assert.Error(t, err)
}

func TestValidateScaleFactors(t *testing.T) {
	tests := []struct {
		name    string
		scales  []float64
		wantErr bool
	}{
		{"canonical", DefaultScaleFactors(), false},
		{"minimal", []float64{1, 2, 3}, false},
		{"too few", []float64{1, 2}, true},
		{"below one", []float64{0.5, 1, 2}, true},
		{"not ascending", []float64{1, 3, 2}, true},
		{"duplicate", []float64{1, 2, 2, 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScaleFactors(tt.scales)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNew_RejectsInvalidScaleFactors(t *testing.T) {
	_, err := New(Config{ScaleFactors: []float64{2, 1, 3}}, nil, nil, nil, nil, nil, nil, zerolog.Nop())
	assert.Error(t, err)

	e, err := New(Config{}, nil, nil, nil, nil, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultScaleFactors(), e.ScaleFactors())
}

func TestLabel(t *testing.T) {
	l := testingpkg.Collisionless(t, 4, 2)
	assert.Equal(t, "zne-collisionless-4x2-ibm-qpu", Label(l, false, ""))
	assert.Equal(t, "zne-eq-collisionless-4x2-ibm-qpu", Label(l, true, ""))

	st, err := domain.NewSpaceTime(domain.Dims{Width: 4, Height: 4}, 2)
	require.NoError(t, err)
	assert.Equal(t, "zne-collision-4x4-sim", Label(st, false, "sim"))
}

// recordingBackend remembers submit options.
type recordingBackend struct {
	*simulator.Simulator
	submits []backend.SubmitOptions
	sizes   []int
}

func (r *recordingBackend) Submit(ctx context.Context, cs []domain.Circuit, shots int, opts backend.SubmitOptions) (backend.Job, error) {
	r.submits = append(r.submits, opts)
	r.sizes = append(r.sizes, len(cs))
	return r.Simulator.Submit(ctx, cs, shots, opts)
}

func identityCalibration(qubits []int) *calibration.Record {
	counts := make(map[string]domain.Histogram)
	for _, s := range domain.Outcomes(len(qubits)) {
		counts[s] = domain.Histogram{s: 100}
	}
	return &calibration.Record{
		Payload:      calibration.RawCalibration{Qubits: qubits, Shots: 100, Counts: counts},
		ExperimentID: "identity",
	}
}

// newGateNoiseExtrapolator runs on a simulator with gate noise only, so the
// readout and unfolding stages are identities and the fit is what is tested.
func newGateNoiseExtrapolator(t *testing.T) (*Extrapolator, *recordingBackend) {
	t.Helper()
	perfect := map[int]backend.QubitProperties{0: {}, 1: {}, 2: {}}
	b := &recordingBackend{Simulator: simulator.New(simulator.Config{
		Name:      "gate_noise",
		GateError: 0.03,
		Readout:   perfect,
		Seed:      21,
	}, zerolog.Nop())}

	dims := domain.Dims{Width: 4, Height: 2}
	store, err := calibration.NewFileStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), calibration.NewKey("gate_noise", dims), identityCalibration([]int{0, 1, 2})))

	rm := readout.NewMitigator(store, nil, nil, zerolog.Nop())
	uf := unfolding.NewUnfolder(b, unfolding.DefaultParams(), nil, zerolog.Nop())
	e, err := New(Config{Await: backend.AwaitOptions{PollInterval: time.Millisecond}},
		circuits.NewReferenceBuilder(), b, circuits.NewRandomFolder(3), rm, uf, nil, zerolog.Nop())
	require.NoError(t, err)
	return e, b
}

func populatedMass(h domain.Histogram, step, shots int) float64 {
	mass := 0.0
	for x0 := 0; x0 < 2; x0++ {
		x := (x0 + step) % 4
		for y := 0; y < 2; y++ {
			mass += float64(h[domain.Bitstring(x+4*y, 3)])
		}
	}
	return mass / float64(shots)
}

func TestExtrapolate_MovesTowardIdeal(t *testing.T) {
	e, b := newGateNoiseExtrapolator(t)
	lattice := testingpkg.Collisionless(t, 4, 2)
	const shots = 100000

	hs, label, err := e.Extrapolate(context.Background(), lattice, 2, shots, Options{UseCalibrationCache: true})
	require.NoError(t, err)
	assert.Equal(t, "zne-collisionless-4x2-ibm-qpu", label)
	require.Len(t, hs, 3)

	// One job, structure preserved, timestep 0 once plus two timesteps at seven scales
	require.Len(t, b.submits, 1)
	assert.True(t, b.submits[0].PreserveStructure)
	assert.Equal(t, []int{15}, b.sizes)

	// Extrapolated timesteps span the full outcome space
	assert.Len(t, hs[1], 8)
	assert.Len(t, hs[2], 8)

	// The unscaled circuit at step 2 keeps about 0.917 of the mass on the
	// populated sites; the zero-noise estimate should recover nearly all of it.
	mass := populatedMass(hs[2], 2, shots)
	assert.Greater(t, mass, 0.96)
	assert.Less(t, mass, 1.04)
}

func TestExtrapolate_Equalized(t *testing.T) {
	e, _ := newGateNoiseExtrapolator(t)
	lattice := testingpkg.Collisionless(t, 4, 2)

	hs, label, err := e.Extrapolate(context.Background(), lattice, 1, 20000, Options{Equalize: true, UseCalibrationCache: true})
	require.NoError(t, err)
	assert.Equal(t, "zne-eq-collisionless-4x2-ibm-qpu", label)
	for _, h := range hs {
		for bits, v := range h {
			assert.Contains(t, []int{0, 5000}, v, bits)
		}
	}
}

func TestExtrapolate_StepZeroOnly(t *testing.T) {
	e, b := newGateNoiseExtrapolator(t)
	hs, _, err := e.Extrapolate(context.Background(), testingpkg.Collisionless(t, 4, 2), 0, 1000, Options{UseCalibrationCache: true})
	require.NoError(t, err)
	assert.Len(t, hs, 1)
	assert.Equal(t, []int{1}, b.sizes)
}

func TestExtrapolateCircuits_MismatchedQubits(t *testing.T) {
	e, _ := newGateNoiseExtrapolator(t)
	a, err := circuits.BasisState([]int{0, 1}, 0)
	require.NoError(t, err)
	c, err := circuits.BasisState([]int{0, 2}, 0)
	require.NoError(t, err)

	_, err = e.ExtrapolateCircuits(context.Background(), domain.Dims{Width: 4, Height: 2}, []domain.Circuit{a, c}, 10, Options{})
	assert.Error(t, err)
}

func TestExtrapolateCircuits_BackendErrorUnmodified(t *testing.T) {
	backendErr := errors.New("quota exceeded")
	b := new(testingpkg.MockBackend)
	b.On("Submit", mock.Anything, mock.Anything, 10, backend.SubmitOptions{PreserveStructure: true}).Return(nil, backendErr)

	e, err := New(Config{}, nil, b, circuits.NewRandomFolder(1), nil, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	c, err := circuits.BasisState([]int{0}, 0)
	require.NoError(t, err)

	_, err = e.ExtrapolateCircuits(context.Background(), domain.Dims{Width: 2, Height: 2}, []domain.Circuit{c, c}, 10, Options{})
	assert.Same(t, backendErr, err)
}

func TestCollect_ClampsNegativeEstimates(t *testing.T) {
	e, b := newGateNoiseExtrapolator(t)
	m := metrics.New(prometheus.NewRegistry())
	e.metrics = m

	c, err := circuits.BasisState([]int{0, 1, 2}, 0)
	require.NoError(t, err)
	cs := []domain.Circuit{c, c}

	// "001" grows with the noise scale as 0.1*s - 0.05, so its fit at zero
	// noise is -0.05.
	const shots = 1000
	results := []domain.Histogram{{"000": shots}}
	for _, s := range e.ScaleFactors() {
		rising := int(100*s - 50)
		results = append(results, domain.Histogram{"000": shots - rising, "001": rising})
	}
	job := &testingpkg.DoneJob{JobID: "scaled", Results: results}

	hs, err := e.Collect(context.Background(), job, domain.Dims{Width: 4, Height: 2}, cs, shots, Options{UseCalibrationCache: true})
	require.NoError(t, err)
	require.Len(t, hs, 2)

	assert.Equal(t, 0, hs[1]["001"])
	assert.Greater(t, hs[1]["000"], shots)
	assert.GreaterOrEqual(t, testutil.ToFloat64(m.ClampedEstimates), 1.0)
	assert.Empty(t, b.sizes, "collecting must not submit")
}

func TestCollect_ResultCountMismatch(t *testing.T) {
	e, _ := newGateNoiseExtrapolator(t)
	c, err := circuits.BasisState([]int{0, 1, 2}, 0)
	require.NoError(t, err)

	job := &testingpkg.DoneJob{JobID: "short", Results: []domain.Histogram{{"000": 10}, {"000": 10}}}
	_, err = e.Collect(context.Background(), job, domain.Dims{Width: 4, Height: 2}, []domain.Circuit{c, c}, 10, Options{UseCalibrationCache: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "returned 2 results for 8 circuits")
}
