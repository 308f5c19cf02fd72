package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/chriskillpack/alttagger/internal/config"
)

type globalFlags struct {
	configPath string
	verbose    bool

	provider string
	model    string
	db       string
	library  string
	session  string
	state    string
}

var gflags globalFlags

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alttagger",
		Short: "Generate accessibility alt text for an image library",
		Long: `alttagger walks an image library and asks a vision model to write alt text
for every image that is missing it.

Work happens in small, rate limited steps. A session remembers how many images
were pending when it started so progress survives restarts.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()
			setupLogging(gflags.verbose)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&gflags.configPath, "config", "", "Path to a YAML config file")
	pf.BoolVarP(&gflags.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&gflags.provider, "provider", "", "Vision provider (gemini, openai, claude, openrouter, ollama, llama)")
	pf.StringVar(&gflags.model, "model", "", "Model name, defaults to the provider's default model")
	pf.StringVar(&gflags.db, "db", "", "Path to database")
	pf.StringVar(&gflags.library, "library", "", "Path to image library")
	pf.StringVar(&gflags.session, "session", "", "Session name")
	pf.StringVar(&gflags.state, "state", "", `Session state backend: "sqlite", "memory" or a postgres URL`)

	cmd.AddCommand(
		newScanCmd(),
		newGenerateCmd(),
		newStatsCmd(),
		newPreviewCmd(),
		newTestAPICmd(),
		newSessionCmd(),
		newServeCmd(),
		newWorkerCmd(),
	)

	return cmd
}

func setupLogging(verbose bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	// JSON when stderr is not a terminal, e.g. under systemd or in a container.
	if fi, err := os.Stderr.Stat(); err == nil && fi.Mode()&os.ModeCharDevice != 0 {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// loadConfig layers the global flags over the config file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(gflags.configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	override := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	// A model configured for another provider does not carry over.
	if flags.Changed("provider") && gflags.provider != cfg.Provider && !flags.Changed("model") {
		cfg.Model = ""
	}
	override("provider", &cfg.Provider, gflags.provider)
	override("model", &cfg.Model, gflags.model)
	override("db", &cfg.DBPath, gflags.db)
	override("library", &cfg.Library, gflags.library)
	override("session", &cfg.Session, gflags.session)
	override("state", &cfg.State, gflags.state)

	return cfg, nil
}
