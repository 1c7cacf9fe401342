// Package commands defines all Cobra CLI commands for the docq binary.
package commands

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/docq-ai/docq-go/internal/audit"
	"github.com/docq-ai/docq-go/internal/config"
	"github.com/docq-ai/docq-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "docq",
		Short: "docq — ask questions about your own documents",
		Long: `docq is a local-first document Q&A system.

Upload text documents, then ask natural language questions about them.
Answers are generated from the most relevant passages of your own files
and every answer carries citations back to the exact chunk it came from.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.docq/config.yaml).
See 'docq --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// .env is optional; a missing file is not an error.
			_ = godotenv.Load()

			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.docq/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewSearchCmd(),
		NewQueryCmd(),
		NewAgentCmd(),
		NewVersionCmd(),
	)

	return root
}
