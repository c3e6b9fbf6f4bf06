package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/sells-group/ingest-cli/internal/probe"
)

var (
	probeStrategies []string
	probeLegalRisk  string
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Inspect a candidate new source and recommend a strategy",
	Long:  "Fetches the landing page, counts feed, calendar, sitemap, API and dynamic-rendering signals, checks robots.txt, and prints the recommended extraction strategy. Nothing is written.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p := probe.New(probe.Options{
			UserAgent:   cfg.Fetch.UserAgent,
			Timeout:     time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
			Preferences: probeStrategies,
			LegalRisk:   probeLegalRisk,
			StrongRate:  cfg.Strategy.StrongRate,
		})
		rep, err := p.Probe(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, rep)
	},
}

func init() {
	probeCmd.Flags().StringSliceVar(&probeStrategies, "strategies", nil, "preferred strategy order (default rss,ics,api_json,sitemap_html,html_listing,render)")
	probeCmd.Flags().StringVar(&probeLegalRisk, "legal-risk", "low", "legal risk of the source (low, medium, high)")
	rootCmd.AddCommand(probeCmd)
}
