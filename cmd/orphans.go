package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var orphansCmd = &cobra.Command{
	Use:   "orphans",
	Short: "Route aged unmatched bank transactions to manual review",
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

		routed, err := env.Sweeper.Sweep(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("routed %d orphan transactions to manual review\n", routed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(orphansCmd)
}
