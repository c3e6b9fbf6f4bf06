package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/ingest"
	"github.com/sells-group/ingest-cli/internal/model"
	"github.com/sells-group/ingest-cli/internal/snapshot"
)

var (
	runSources []string
	runForce   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run ingestion for registered sources",
	Long:  "Runs each selected source once (all sources when --source is omitted). Sources that are not due by cadence are skipped unless --force is set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("run"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		reg, entries, err := loadRegistry()
		if err != nil {
			return err
		}
		if err := ingest.SyncSources(ctx, st, entries); err != nil {
			return err
		}

		snap, err := snapshot.New(snapshot.Options{
			Target:  cfg.Snapshot.Target,
			Token:   cfg.Snapshot.Token,
			Timeout: time.Duration(cfg.Snapshot.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return eris.Wrap(err, "init snapshot writer")
		}

		orch := ingest.New(st, reg, snap, ingest.OptionsFromConfig(cfg))
		results, runErr := orch.RunAll(ctx, runSources, runForce)

		var failed int
		for _, r := range results {
			if !r.Skipped && r.Status == model.RunStatusFailed {
				failed++
			}
		}
		zap.L().Info("run complete",
			zap.Int("sources", len(results)),
			zap.Int("failed", failed),
		)
		if err := printJSON(os.Stdout, results); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	runCmd.Flags().StringSliceVar(&runSources, "source", nil, "source key to run (repeatable; default all)")
	runCmd.Flags().BoolVar(&runForce, "force", false, "run even when the source is not due or is paused")
	rootCmd.AddCommand(runCmd)
}
