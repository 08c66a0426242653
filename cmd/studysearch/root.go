package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/studysearch/internal/config"
	"github.com/dshills/studysearch/internal/logging"
)

// Set at build time with -ldflags "-X main.version=... -X main.buildTime=..."
var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	configPath string
	logLevel   string

	cfg    *config.Config
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "studysearch",
	Short: "Semantic search over course lectures",
	Long: `studysearch ingests lecture notes and transcripts, embeds them and answers
hybrid searches that blend vector similarity with keyword relevance.

Run "studysearch serve" to expose the search tools to an MCP client over
stdio, or use the ingest and search commands directly.`,
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (default $STUDYSEARCH_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig resolves the configuration and builds the logger before any
// subcommand runs. Logs go to stderr since stdout may carry the protocol.
func loadConfig(cmd *cobra.Command, _ []string) error {
	if cmd == versionCmd {
		return nil
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
		if err := loaded.Validate(); err != nil {
			return err
		}
	}

	cfg = loaded
	logger = logging.New(logging.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Out:    cmd.ErrOrStderr(),
	})
	return nil
}
