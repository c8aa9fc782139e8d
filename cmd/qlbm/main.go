// Package main is the qlbm command line: it runs lattice Boltzmann transport
// experiments on a quantum backend, mitigates their noise and writes the
// per-timestep counts for visualization.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/qlbm/internal/config"
	"github.com/aristath/qlbm/internal/di"
	"github.com/aristath/qlbm/pkg/logger"
)

var (
	logLevel string

	cfg       *config.Config
	log       zerolog.Logger
	container *di.Container
)

var rootCmd = &cobra.Command{
	Use:   "qlbm",
	Short: "Run and error-mitigate quantum lattice Boltzmann experiments",
	Long: `qlbm builds quantum lattice Boltzmann transport circuits, executes them on
the configured backend and applies readout mitigation, iterative Bayesian
unfolding or zero-noise extrapolation to the measured counts.

Configuration is read from the environment (and a .env file); see QLBM_* variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		log = logger.New(logger.Config{Level: level, Pretty: cfg.LogPretty, Output: cmd.ErrOrStderr()})

		container, err = di.Wire(cmd.Context(), cfg, log)
		if err != nil {
			return fmt.Errorf("failed to wire dependencies: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if container == nil {
			return nil
		}
		err := container.Close()
		container = nil
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides LOG_LEVEL)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(calibrationCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
