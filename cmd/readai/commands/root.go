// Package commands defines all Cobra CLI commands for the readai binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/readai-labs/readai-go/internal/audit"
	"github.com/readai-labs/readai-go/internal/config"
	"github.com/readai-labs/readai-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "readai",
		Short: "ReadAI — an AI reading companion for your books",
		Long: `ReadAI is a local-first AI companion for readers.

It answers questions about ingested books with page citations, searches your
past conversations about a book, and translates whole books into other
languages while preserving page alignment.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.readai/config.yaml).
See 'readai --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
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

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.readai/config.yaml)")

	root.AddCommand(
		NewAskCmd(),
		NewTranslateCmd(),
		NewIngestCmd(),
		NewBooksCmd(),
		NewServeCmd(),
		NewVersionCmd(),
	)

	return root
}
