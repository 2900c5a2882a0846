package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sells-group/recon-cli/internal/model"
)

var recoverRecordID string

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover stuck records, or reset one flagged/error record",
	Long:  "Without flags, sweeps records stuck in processing past the timeout: under the attempt cap they return to pending, at the cap they are flagged. With --record, resets one flagged or error record back to pending.",
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

		if recoverRecordID != "" {
			rec, err := env.Store.GetRecord(ctx, recoverRecordID)
			if err != nil {
				return err
			}
			if rec.Status != model.RecordFlagged && rec.Status != model.RecordError {
				return fmt.Errorf("record %s is %s, only flagged or error records reset", rec.ID, rec.Status)
			}
			if err := env.Store.ResetRecord(ctx, recoverRecordID, "", ""); err != nil {
				return err
			}
			fmt.Printf("record %s reset to pending\n", recoverRecordID)
			return nil
		}

		released, flagged, err := env.Controller.RecoverStuck(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("released %d stuck records, flagged %d at the attempt cap\n", released, flagged)
		return nil
	},
}

func init() {
	recoverCmd.Flags().StringVar(&recoverRecordID, "record", "", "reset this flagged/error record to pending")
	rootCmd.AddCommand(recoverCmd)
}
