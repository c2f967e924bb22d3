// Package commands defines all Cobra CLI commands for the docrag binary.
package commands

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/54b3r/docrag/internal/audit"
	"github.com/54b3r/docrag/internal/config"
	"github.com/54b3r/docrag/internal/logging"
)

// skipSetup marks commands that run without configuration.
const skipSetup = "docrag/skip-setup"

// app is the state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	// configPath is the --config flag value.
	configPath string
	// envFile is the --env-file flag value.
	envFile string

	settings *config.Settings
	log      *slog.Logger
}

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "docrag",
		Short: "docrag: local semantic search over your documents",
		Long: `docrag indexes the .txt, .md and .pdf files of a folder into a vector
store and answers natural-language queries with the most similar passages.

Every ingestion rebuilds the collection from scratch. Embeddings come from a
local Ollama server by default (EMBEDDING_PROVIDER=ollama|openai|azure).

Configuration is layered: defaults, then a YAML file (--config,
DOCRAG_CONFIG, ~/.docrag/config.yaml or ./docrag.yaml), then .env, then the
environment, which always wins.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Annotations[skipSetup] == "true" {
				return nil
			}
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to YAML config file (default: ~/.docrag/config.yaml)")
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Dotenv file loaded before the environment is read")

	root.AddCommand(
		newIngestCmd(a),
		newSearchCmd(a),
		newDemoCmd(a),
		newRunsCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)

	return root
}

// setup loads .env and YAML into the environment, parses and validates the
// settings, and installs the process logger.
func (a *app) setup(cmd *cobra.Command) error {
	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	log := logging.NewWithOptions(logging.Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Writer: cmd.ErrOrStderr(),
	})

	path, err := config.Load(a.configPath, log)
	if err != nil {
		return err
	}

	// YAML may have set LOG_LEVEL/LOG_FORMAT; rebuild the logger.
	log = logging.NewWithOptions(logging.Options{
		Level:  os.Getenv("LOG_LEVEL"),
		Format: os.Getenv("LOG_FORMAT"),
		Writer: cmd.ErrOrStderr(),
	})
	slog.SetDefault(log)
	a.log = log

	settings, err := config.FromEnv()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	a.settings = settings

	audit.LogCommandStart(log, cmd.Name(), path)
	return nil
}
