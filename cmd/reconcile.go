package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/reconcile"
)

var reconcileApply bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Plan (and optionally apply) promotion repairs",
	Long:  "Compares draft links, candidate statuses and promotion sync logs and prints the repair plan. With --apply the plan is executed against the store.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec := reconcile.New(st)
		plan, err := rec.Plan(ctx)
		if err != nil {
			return err
		}

		out := struct {
			Plan   reconcile.Plan         `json:"plan"`
			Result *reconcile.ApplyResult `json:"result,omitempty"`
		}{Plan: plan}

		if reconcileApply && !plan.Empty() {
			res, err := rec.Apply(ctx, plan)
			if err != nil {
				return err
			}
			out.Result = &res
			zap.L().Info("reconcile applied",
				zap.Int("status_repaired", res.StatusRepaired),
				zap.Int("sync_logs_inserted", res.SyncLogsInserted),
				zap.Int("skipped", res.SkippedSyncRepair),
			)
		}
		return printJSON(os.Stdout, out)
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileApply, "apply", false, "execute the repair plan")
	rootCmd.AddCommand(reconcileCmd)
}
