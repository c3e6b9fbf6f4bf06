package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	incidentSources []string
	incidentDeliver bool
)

var incidentsCmd = &cobra.Command{
	Use:   "incidents",
	Short: "Evaluate incident alerts",
	Long:  "Evaluates anomaly alerts for the selected sources, records them in each source's alert history, and optionally delivers them to the configured webhook and Notion incident log.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := newMonitor(st, incidentDeliver).Incidents(ctx, incidentSources)
		if err != nil {
			return err
		}
		return printJSON(os.Stdout, res)
	},
}

func init() {
	incidentsCmd.Flags().StringSliceVar(&incidentSources, "source", nil, "source key (repeatable; default all)")
	incidentsCmd.Flags().BoolVar(&incidentDeliver, "deliver", false, "deliver alerts to the webhook and incident log")
	rootCmd.AddCommand(incidentsCmd)
}
