package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/replay"
)

var replayCmd = &cobra.Command{
	Use:   "replay <original-run-id> <replay-run-id>",
	Short: "Compare two runs of a source for replay determinism",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("replay"); err != nil {
			return err
		}
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rep, err := replay.CompareRuns(ctx, st, args[0], args[1], replay.ToleranceFromConfig(cfg.Replay))
		if err != nil {
			return err
		}
		if err := printJSON(os.Stdout, rep); err != nil {
			return err
		}
		if !rep.Passed {
			return eris.Errorf("replay: runs diverge: %v", rep.FailureReasons)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(replayCmd)
}
