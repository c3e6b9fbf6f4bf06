package main

import (
	"os"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/lifecycle"
	"github.com/sells-group/ingest-cli/internal/model"
)

var (
	lifecycleSources []string
	lifecycleApply   bool
)

// lifecycleReview pairs the recorded automation result with a fresh one.
type lifecycleReview struct {
	SourceKey string                 `json:"source_key"`
	State     model.SourceState      `json:"state"`
	Cadence   string                 `json:"cadence"`
	Recorded  *model.LifecycleRecord `json:"recorded,omitempty"`
	Decision  lifecycle.Decision     `json:"decision"`
	Applied   bool                   `json:"applied"`
}

var lifecycleCmd = &cobra.Command{
	Use:   "lifecycle",
	Short: "Review lifecycle automation for sources",
	Long:  "Re-evaluates the degradation triggers for each source from its stored counters and shows the last recorded automation result. With --apply the fresh decision is merged and applied.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sources, err := st.ListSources(ctx)
		if err != nil {
			return eris.Wrap(err, "lifecycle: list sources")
		}
		th := lifecycle.ThresholdsFromConfig(cfg.Lifecycle)
		now := time.Now().UTC()

		out := make([]lifecycleReview, 0, len(sources))
		for i := range sources {
			src := &sources[i]
			if len(lifecycleSources) > 0 && !slices.Contains(lifecycleSources, src.Key) {
				continue
			}
			rev := lifecycleReview{SourceKey: src.Key}
			if src.Metadata.Lifecycle != nil {
				rev.Recorded = src.Metadata.Lifecycle.LastResult
			}
			rev.Decision = lifecycle.Review(*src, th, now)
			if lifecycleApply && lifecycle.Pending(*src) {
				if err := lifecycle.Apply(ctx, st, src, rev.Decision, now); err != nil {
					return err
				}
				rev.Applied = true
			}
			rev.State, rev.Cadence = src.State, src.Cadence
			out = append(out, rev)
		}
		return printJSON(os.Stdout, out)
	},
}

func init() {
	lifecycleCmd.Flags().StringSliceVar(&lifecycleSources, "source", nil, "source key (repeatable; default all)")
	lifecycleCmd.Flags().BoolVar(&lifecycleApply, "apply", false, "merge and apply the fresh decision")
	rootCmd.AddCommand(lifecycleCmd)
}
