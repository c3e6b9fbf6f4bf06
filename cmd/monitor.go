package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/monitoring"
)

var monitorSources []string

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run health and incident checks on an interval",
	Long:  "Computes health and incidents for the selected sources immediately and then every monitoring.check_interval_secs, delivering alerts until interrupted.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		interval := time.Duration(cfg.Monitoring.CheckIntervalSecs) * time.Second
		monitoring.NewChecker(newMonitor(st, true), monitorSources, interval).Run(ctx)
		return nil
	},
}

func init() {
	monitorCmd.Flags().StringSliceVar(&monitorSources, "source", nil, "source key (repeatable; default all)")
	rootCmd.AddCommand(monitorCmd)
}
