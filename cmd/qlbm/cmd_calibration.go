package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aristath/qlbm/internal/modules/calibration"
	"github.com/aristath/qlbm/internal/scheduler"
)

var (
	invalidateAll   bool
	refreshWatch    bool
	refreshSchedule string
)

// calibrationCmd manages stored readout calibrations
var calibrationCmd = &cobra.Command{
	Use:   "calibration",
	Short: "Manage stored readout calibrations",
	Long: `Stored calibrations are trusted until removed. Invalidate a key after the
backend has been recalibrated.

Available subcommands:
  list       - List stored calibration keys
  invalidate - Remove stored calibrations
  refresh    - Re-run the calibration of every stored key for the backend`,
}

var calibrationListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored calibration keys",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		keys, err := container.Store.Keys(cmd.Context())
		if err != nil {
			return err
		}
		for _, k := range keys {
			fmt.Fprintln(cmd.OutOrStdout(), k)
		}
		return nil
	},
}

var calibrationInvalidateCmd = &cobra.Command{
	Use:   "invalidate [<backend>_<w>x<h>...]",
	Short: "Remove stored calibrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		if invalidateAll == (len(args) > 0) {
			return fmt.Errorf("pass either keys or --all")
		}

		keys := make([]calibration.Key, 0, len(args))
		for _, a := range args {
			k, err := calibration.ParseKey(a)
			if err != nil {
				return err
			}
			keys = append(keys, k)
		}
		if invalidateAll {
			var err error
			if keys, err = container.Store.Keys(cmd.Context()); err != nil {
				return err
			}
		}

		for _, k := range keys {
			if err := container.Store.Delete(cmd.Context(), k); err != nil {
				return fmt.Errorf("failed to invalidate %s: %w", k, err)
			}
			log.Info().Str("key", k.String()).Msg("Calibration invalidated")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d calibration(s) invalidated\n", len(keys))
		return nil
	},
}

var calibrationRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Re-run stored calibrations on the backend",
	Long: `Re-run the readout calibration for every key stored for the configured
backend and replace the records. With --watch the refresh repeats on the cron
schedule from --schedule (default QLBM_REFRESH_SCHEDULE) until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s := scheduler.New(cmd.Context(), log)
		if !refreshWatch {
			return s.RunNow(container.RefreshJob)
		}

		schedule := cfg.RefreshSchedule
		if refreshSchedule != "" {
			schedule = refreshSchedule
		}
		if err := s.AddJob(schedule, container.RefreshJob); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", schedule, err)
		}
		s.Start()
		<-cmd.Context().Done()
		s.Stop()
		return nil
	},
}

func init() {
	calibrationInvalidateCmd.Flags().BoolVar(&invalidateAll, "all", false, "Remove every stored calibration")
	calibrationRefreshCmd.Flags().BoolVar(&refreshWatch, "watch", false, "Keep running and refresh on a schedule")
	calibrationRefreshCmd.Flags().StringVar(&refreshSchedule, "schedule", "", "Cron schedule (with seconds field) for --watch")

	calibrationCmd.AddCommand(calibrationListCmd)
	calibrationCmd.AddCommand(calibrationInvalidateCmd)
	calibrationCmd.AddCommand(calibrationRefreshCmd)
}
