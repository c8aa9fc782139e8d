package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/qlbm/internal/domain"
	"github.com/aristath/qlbm/internal/metrics"
	"github.com/aristath/qlbm/internal/modules/mitigation"
	"github.com/aristath/qlbm/internal/modules/runner"
)

var (
	runWidth       int
	runHeight      int
	runSteps       int
	runShots       int
	runCollision   bool
	runReadout     bool
	runUnfolding   bool
	runZNE         bool
	runEqualize    bool
	runNoCache     bool
	runProfile     string
	runRecoverJob  string
	runMetricsFile string
)

// runCmd executes one experiment
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an experiment and write mitigated counts",
	Long: `Build the transport circuits for timesteps 0..steps, execute them and write
<output>/<label>/counts_<t>.json for every timestep.

Mitigation flags:
  --readout    readout error mitigation
  --unfolding  iterative Bayesian unfolding
  --zne        zero-noise extrapolation (supersedes the two above)
  --equalize   equalize extrapolated counts (with --zne only)

Use --recover to finish a job that was submitted earlier.`,
	RunE: runExperiment,
}

func init() {
	runCmd.Flags().IntVar(&runWidth, "width", 4, "Lattice width (power of two)")
	runCmd.Flags().IntVar(&runHeight, "height", 2, "Lattice height (power of two)")
	runCmd.Flags().IntVar(&runSteps, "steps", 3, "Number of timesteps after the initial state")
	runCmd.Flags().IntVar(&runShots, "shots", 4096, "Shots per circuit")
	runCmd.Flags().BoolVar(&runCollision, "collision", false, "Use the space-time collision lattice")
	runCmd.Flags().BoolVar(&runReadout, "readout", false, "Enable readout error mitigation")
	runCmd.Flags().BoolVar(&runUnfolding, "unfolding", false, "Enable iterative Bayesian unfolding")
	runCmd.Flags().BoolVar(&runZNE, "zne", false, "Enable zero-noise extrapolation")
	runCmd.Flags().BoolVar(&runEqualize, "equalize", false, "Equalize extrapolated counts")
	runCmd.Flags().BoolVar(&runNoCache, "no-cache", false, "Always run a fresh readout calibration")
	runCmd.Flags().StringVar(&runProfile, "profile", "", "YAML mitigation profile (overrides QLBM_MITIGATION_PROFILE)")
	runCmd.Flags().StringVar(&runRecoverJob, "recover", "", "Re-attach to an existing job id instead of submitting")
	runCmd.Flags().StringVar(&runMetricsFile, "metrics-file", "", "Write prometheus metrics to this file (overrides QLBM_METRICS_FILE)")
}

func runExperiment(cmd *cobra.Command, args []string) error {
	lattice, err := buildLattice()
	if err != nil {
		return err
	}
	mcfg, err := mitigationConfig(cmd)
	if err != nil {
		return err
	}

	exp := runner.Experiment{Lattice: lattice, Steps: runSteps, Shots: runShots, Mitigation: mcfg}
	var report *runner.Report
	if runRecoverJob != "" {
		report, err = container.Runner.Recover(cmd.Context(), runRecoverJob, exp)
	} else {
		report, err = container.Runner.Run(cmd.Context(), exp)
	}
	if err != nil {
		return err
	}

	metricsFile := cfg.MetricsFile
	if runMetricsFile != "" {
		metricsFile = runMetricsFile
	}
	if metricsFile != "" {
		if err := metrics.WriteTextfile(metricsFile, container.Registry); err != nil {
			log.Warn().Err(err).Str("path", metricsFile).Msg("Failed to write metrics")
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "job %s: %s (%d timesteps) written to %s\n", report.JobID, report.Label, len(report.Histograms), report.Dir)
	return nil
}

func buildLattice() (domain.Lattice, error) {
	dims := domain.Dims{Width: runWidth, Height: runHeight}
	if runCollision {
		return domain.NewSpaceTime(dims, runSteps)
	}
	return domain.NewCollisionless(dims)
}

// mitigationConfig starts from the profile, if any, and applies the flags
// that were set explicitly.
func mitigationConfig(cmd *cobra.Command) (mitigation.Config, error) {
	mcfg := mitigation.DefaultConfig()
	profile := cfg.MitigationProfile
	if runProfile != "" {
		profile = runProfile
	}
	if profile != "" {
		var err error
		if mcfg, err = mitigation.LoadConfig(profile); err != nil {
			return mitigation.Config{}, err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("readout") {
		mcfg.Readout = runReadout
	}
	if flags.Changed("unfolding") {
		mcfg.Unfolding = runUnfolding
	}
	if flags.Changed("zne") {
		mcfg.Extrapolation = runZNE
	}
	if flags.Changed("equalize") {
		mcfg.Equalization = runEqualize
	}
	if flags.Changed("no-cache") {
		mcfg.UseCalibrationCache = !runNoCache
	}
	return mcfg, nil
}
