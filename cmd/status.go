package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/recon-cli/internal/model"
)

var statusCalibration bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue counts, optionally with confidence calibration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("process"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		counts, err := env.Store.CountByStatus(ctx)
		if err != nil {
			return err
		}

		for _, status := range []model.RecordStatus{
			model.RecordPending, model.RecordProcessing, model.RecordPosted,
			model.RecordFlagged, model.RecordError, model.RecordRejected,
		} {
			fmt.Printf("%-12s %d\n", status, counts[status])
		}

		if !statusCalibration {
			return nil
		}

		buckets, err := env.Learning.Calibration(ctx)
		if err != nil {
			return err
		}
		fmt.Println("\nconfidence calibration:")
		for _, b := range buckets {
			if b.Total == 0 {
				continue
			}
			fmt.Printf("  %3d-%3d  decisions %4d  corrected %3d  accuracy %.1f%%\n",
				b.Low, b.High, b.Total, b.Corrected, b.Accuracy*100)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusCalibration, "calibration", false, "include confidence calibration buckets")
	rootCmd.AddCommand(statusCmd)
}
