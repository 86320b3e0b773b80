package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

var (
	// cfgPath is the YAML config file; empty means ./config.yaml or the user config
	cfgPath string
	// logLevel overrides log.level from the config
	logLevel string
	// metricsAddr overrides metrics.addr from the config
	metricsAddr string
)

var rootCmd = &cobra.Command{
	Use:   "pdfrag",
	Short: "Ingest policy documents and retrieve answers from them",
	Long: `pdfrag chunks PDF and text documents, embeds the chunks and stores them
in a vector store. Queries are answered from the most similar chunks.

Examples:
  # Store every document under ./policies
  pdfrag ingest ./policies

  # Show the three chunks closest to a question
  pdfrag search "How long are visitor logs kept?"

  # Compose an answer from the retrieved chunks
  pdfrag ask "How long are visitor logs kept?"

  # Browse results interactively
  pdfrag tui`,
	SilenceUsage: true,
}

// Execute runs the root command with ctx as the base context of every subcommand.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Path to YAML config file (defaults to ./config.yaml or ~/.config/pdfrag/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while the command runs")
}
