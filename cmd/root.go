package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ingest-cli/internal/config"
)

var cfg *config.Config

// Persistent overrides applied on top of file and INGEST_* settings.
var (
	flagLogLevel    string
	flagSourcesFile string
	flagStoreDriver string
)

var rootCmd = &cobra.Command{
	Use:   "ingest-cli",
	Short: "Source ingestion and source health jobs",
	Long:  "Runs registered source modules, gates candidate quality, tracks source health and incidents, and automates source lifecycle.",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyOverrides(c)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		zap.L().Debug("config loaded",
			zap.String("command", cmd.Name()),
			zap.String("store", cfg.Store.Driver),
			zap.String("sources_file", cfg.Sources.File),
		)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func applyOverrides(c *config.Config) {
	if flagLogLevel != "" {
		c.Log.Level = flagLogLevel
	}
	if flagSourcesFile != "" {
		c.Sources.File = flagSourcesFile
	}
	if flagStoreDriver != "" {
		c.Store.Driver = flagStoreDriver
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagLogLevel, "log-level", "", "log level override (debug, info, warn, error)")
	pf.StringVar(&flagSourcesFile, "sources", "", "source registry file override")
	pf.StringVar(&flagStoreDriver, "store", "", "store driver override (postgres, sqlite)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
