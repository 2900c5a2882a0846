package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	processWatch    bool
	processInterval time.Duration
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the queue controller over pending records",
	Long:  "Claims pending records under the concurrency cap and processes each to a terminal state. Default is one-shot: drain the queue and exit. --watch keeps the controller running with periodic stuck-record recovery.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("process"); err != nil {
			return err
		}

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		log := zap.L().With(zap.String("command", "process"))

		// Sweep before claiming so records stranded by a previous crash
		// re-enter the queue first.
		released, flagged, err := env.Controller.RecoverStuck(ctx)
		if err != nil {
			return err
		}
		if released+flagged > 0 {
			log.Info("stuck recovery before processing",
				zap.Int("released", released), zap.Int("flagged", flagged))
		}

		if !processWatch {
			if err := env.Controller.RunUntilDrained(ctx); err != nil {
				return err
			}
			log.Info("queue drained",
				zap.Int64("completed", env.Controller.Completed.Load()),
				zap.Int64("failed", env.Controller.Failed.Load()))
			return nil
		}

		go func() {
			ticker := time.NewTicker(processInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					released, flagged, err := env.Controller.RecoverStuck(ctx)
					if err != nil {
						log.Error("stuck recovery failed", zap.Error(err))
						continue
					}
					if released+flagged > 0 {
						log.Info("stuck recovery sweep",
							zap.Int("released", released), zap.Int("flagged", flagged))
					}
					// Records ingested by other processes don't fire the
					// in-process trigger; re-check capacity each sweep.
					env.Controller.Trigger()
				}
			}
		}()

		log.Info("controller running",
			zap.Int("max_concurrent", cfg.Queue.MaxConcurrent))
		return env.Controller.Run(ctx)
	},
}

func init() {
	processCmd.Flags().BoolVar(&processWatch, "watch", false, "keep running and recover stuck records periodically")
	processCmd.Flags().DurationVar(&processInterval, "recover-interval", 5*time.Minute, "stuck recovery sweep interval in watch mode")
	rootCmd.AddCommand(processCmd)
}
