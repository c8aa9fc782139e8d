package mitigation

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/qlbm/internal/backend"
	"github.com/aristath/qlbm/internal/backend/simulator"
	"github.com/aristath/qlbm/internal/circuits"
	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/calibration"
	"github.com/aristath/qlbm/internal/modules/extrapolation"
	"github.com/aristath/qlbm/internal/modules/readout"
	"github.com/aristath/qlbm/internal/modules/unfolding"
	testingpkg "github.com/aristath/qlbm/internal/testing"
)

var fastAwait = backend.AwaitOptions{PollInterval: time.Millisecond}

type fixture struct {
	pipeline *Pipeline
	sim      *simulator.Simulator
	lattice  domain.Lattice
	circuits []domain.Circuit
	raw      []domain.Histogram
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	log := zerolog.Nop()

	sim := testingpkg.NewNoisySimulator("noisy", 3, 11)
	store, err := calibration.NewFileStore(t.TempDir(), log)
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())

	rm := readout.NewMitigator(store, readout.NewCorrelatedExperiment(4000, fastAwait, log), m, log)
	uf := unfolding.NewUnfolder(sim, unfolding.DefaultParams(), m, log)
	builder := circuits.NewReferenceBuilder()
	ex, err := extrapolation.New(extrapolation.Config{Await: fastAwait}, builder, sim, circuits.NewRandomFolder(5), rm, uf, m, log)
	require.NoError(t, err)

	lattice := testingpkg.Collisionless(t, 4, 2)
	cs, err := domain.BuildSteps(builder, lattice, 2)
	require.NoError(t, err)
	job, err := sim.Submit(ctx, cs, 4000, backend.SubmitOptions{})
	require.NoError(t, err)
	raw, err := backend.Await(ctx, job, fastAwait, log)
	require.NoError(t, err)

	return &fixture{
		pipeline: NewPipeline(sim, Stages{Readout: rm, Unfolder: uf, Extrapolator: ex}, "", m, log),
		sim:      sim,
		lattice:  lattice,
		circuits: cs,
		raw:      raw,
		metrics:  m,
	}
}

func TestConfig_Method(t *testing.T) {
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{}, "raw"},
		{Config{Readout: true}, "rem"},
		{Config{Unfolding: true}, "ibu"},
		{Config{Readout: true, Unfolding: true}, "rem-ibu"},
		{Config{Extrapolation: true}, "zne"},
		{Config{Readout: true, Extrapolation: true}, "zne"},
		{Config{Unfolding: true, Extrapolation: true}, "zne"},
		{Config{Readout: true, Unfolding: true, Extrapolation: true}, "zne"},
		{Config{Extrapolation: true, Equalization: true}, "zne-eq"},
		{Config{Readout: true, Unfolding: true, Extrapolation: true, Equalization: true}, "zne-eq"},
		// Equalization alone has no effect
		{Config{Equalization: true}, "raw"},
		{Config{Readout: true, Equalization: true}, "rem"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.Method())
		})
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte("readout_error_mitigation: true\niterative_bayesian_unfolding: true\n"))
	require.NoError(t, err)
	assert.Equal(t, Config{Readout: true, Unfolding: true, UseCalibrationCache: true}, cfg)

	cfg, err = ParseConfig([]byte("zero_noise_extrapolation: true\nequalization: true\nuse_calibration_cache: false\n"))
	require.NoError(t, err)
	assert.Equal(t, Config{Extrapolation: true, Equalization: true}, cfg)

	_, err = ParseConfig([]byte("readout_error_mitigation: [oops"))
	assert.Error(t, err)
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mitigation.yaml")
	require.NoError(t, os.WriteFile(path, []byte("readout_error_mitigation: true\n"), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "rem", cfg.Method())
	assert.True(t, cfg.UseCalibrationCache)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestMitigate_RawScenario(t *testing.T) {
	c, err := circuits.BasisState([]int{0, 1}, 0)
	require.NoError(t, err)
	raw := []domain.Histogram{testingpkg.ScenarioHistogram()}

	p := NewPipeline(nil, Stages{}, "", nil, zerolog.Nop())
	res, err := p.Mitigate(context.Background(), testingpkg.Collisionless(t, 4, 2), []domain.Circuit{c}, 1000, raw, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, "raw-collisionless-4x2-ibm-qpu", res.Label)
	assert.Equal(t, raw, res.Histograms)

	// The passthrough result is a copy
	res.Histograms[0]["00"] = 0
	assert.Equal(t, 600, raw[0]["00"])
}

func TestMitigate_Labels(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		cfg   Config
		label string
	}{
		{Config{UseCalibrationCache: true}, "raw-collisionless-4x2-ibm-qpu"},
		{Config{Readout: true, UseCalibrationCache: true}, "rem-collisionless-4x2-ibm-qpu"},
		{Config{Unfolding: true, UseCalibrationCache: true}, "ibu-collisionless-4x2-ibm-qpu"},
		{Config{Readout: true, Unfolding: true, UseCalibrationCache: true}, "rem-ibu-collisionless-4x2-ibm-qpu"},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			res, err := f.pipeline.Mitigate(context.Background(), f.lattice, f.circuits, 4000, f.raw, tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.label, res.Label)
			assert.Len(t, res.Histograms, len(f.circuits))
		})
	}
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.HistogramsMitigated.WithLabelValues("rem-ibu")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.CalibrationRuns))
}

func TestMitigate_ReadoutConservesCounts(t *testing.T) {
	f := newFixture(t)
	res, err := f.pipeline.Mitigate(context.Background(), f.lattice, f.circuits, 4000, f.raw, Config{Readout: true, UseCalibrationCache: true})
	require.NoError(t, err)
	for _, h := range res.Histograms {
		total := h.Total()
		assert.LessOrEqual(t, total, 4000)
		assert.GreaterOrEqual(t, total, 4000-8)
	}
}

func TestMitigate_Deterministic(t *testing.T) {
	f := newFixture(t)
	before := domain.Copies(f.raw)
	cfg := Config{Readout: true, Unfolding: true, UseCalibrationCache: true}

	first, err := f.pipeline.Mitigate(context.Background(), f.lattice, f.circuits, 4000, f.raw, cfg)
	require.NoError(t, err)
	second, err := f.pipeline.Mitigate(context.Background(), f.lattice, f.circuits, 4000, f.raw, cfg)
	require.NoError(t, err)

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("mitigation is not deterministic (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(before, f.raw); diff != "" {
		t.Errorf("raw histograms were modified (-before +after):\n%s", diff)
	}
}

func TestMitigate_ExtrapolationSupersedes(t *testing.T) {
	f := newFixture(t)

	res, err := f.pipeline.Mitigate(context.Background(), f.lattice, f.circuits, 4000, nil, Config{Readout: true, Extrapolation: true, UseCalibrationCache: true})
	require.NoError(t, err)
	assert.Equal(t, "zne-collisionless-4x2-ibm-qpu", res.Label)
	assert.Len(t, res.Histograms, len(f.circuits))

	res, err = f.pipeline.Mitigate(context.Background(), f.lattice, f.circuits, 4000, nil, Config{Extrapolation: true, Equalization: true, UseCalibrationCache: true})
	require.NoError(t, err)
	assert.Equal(t, "zne-eq-collisionless-4x2-ibm-qpu", res.Label)
	uniform := 4000 / 4
	for _, h := range res.Histograms {
		for bits, v := range h {
			assert.Contains(t, []int{0, uniform}, v, bits)
		}
	}
}

func TestMitigate_Errors(t *testing.T) {
	f := newFixture(t)
	bare := NewPipeline(f.sim, Stages{}, "", nil, zerolog.Nop())
	ctx := context.Background()

	for _, cfg := range []Config{{Readout: true}, {Unfolding: true}, {Extrapolation: true}} {
		_, err := bare.Mitigate(ctx, f.lattice, f.circuits, 4000, f.raw, cfg)
		assert.Error(t, err, cfg.Method())
	}

	_, err := f.pipeline.Mitigate(ctx, f.lattice, f.circuits, 4000, f.raw[:1], Config{Readout: true})
	assert.Error(t, err)

	_, err = f.pipeline.Mitigate(ctx, f.lattice, nil, 4000, nil, Config{})
	assert.Error(t, err)
}
