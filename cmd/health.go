package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/monitoring"
	"github.com/sells-group/ingest-cli/internal/report"
)

var (
	healthSources []string
	healthXLSX    string
	healthJSON    bool
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Compute source health snapshots",
	Long:  "Computes health for the selected sources, persists rolling rates and health scores, and prints the snapshots.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		hs, err := newMonitor(st, false).Health(ctx, healthSources)
		if err != nil {
			return err
		}

		if healthXLSX != "" {
			if err := report.WriteHealthXLSX(healthXLSX, hs); err != nil {
				return err
			}
			zap.L().Info("health report written", zap.String("path", healthXLSX), zap.Int("sources", len(hs)))
		}
		if healthJSON {
			return printJSON(os.Stdout, hs)
		}
		formatHealth(os.Stdout, hs)
		return nil
	},
}

func formatHealth(out io.Writer, hs []monitoring.SourceHealth) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "SOURCE\tSTATE\tSCORE\tFAIL_RATE\tPROMO_RATE\tCONSEC_FAIL\tLAST_RUN\tSIGNALS")
	_, _ = fmt.Fprintln(w, "------\t-----\t-----\t---------\t----------\t-----------\t--------\t-------")
	for _, h := range hs {
		codes := make([]string, 0, len(h.Signals))
		for _, s := range h.Signals {
			codes = append(codes, s.Code)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%.1f\t%.2f\t%.2f\t%d\t%s\t%s\n",
			h.SourceKey,
			h.State,
			h.HealthScore,
			h.RollingFailureRate30d,
			h.RollingPromotionRate30d,
			h.ConsecutiveFailures,
			orDash(h.LastRunStatus),
			strings.Join(codes, ","),
		)
	}
	_ = w.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func init() {
	healthCmd.Flags().StringSliceVar(&healthSources, "source", nil, "source key (repeatable; default all)")
	healthCmd.Flags().StringVar(&healthXLSX, "xlsx", "", "also write the snapshots to this .xlsx file")
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "print JSON instead of a table")
	rootCmd.AddCommand(healthCmd)
}
