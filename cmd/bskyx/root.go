package main

import (
	"errors"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	internal "github.com/ZanzyTHEbar/bsky-explainer/bskyx"
	"github.com/ZanzyTHEbar/bsky-explainer/bskyx/config"
)

var version = "dev"

// app carries what every subcommand needs once the root pre-run has executed.
type app struct {
	configPath string
	envFile    string
	debug      bool
	logJSON    bool

	cfg    *config.Config
	logger zerolog.Logger
}

func newRootCommand() *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:   internal.DefaultAppName,
		Short: "Explain Bluesky posts with a ReAct agent",
		Long: `bskyx explains Bluesky posts, memes and jargon to a general audience.

It runs a Reason-Act-Observe agent that can fetch posts, describe images and
search the web before answering, and benchmarks models against judged cases.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "Path to a config file (default: search ./config.yaml and the user config dir)")
	cmd.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "Dotenv file loaded before reading the environment")
	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging")
	cmd.PersistentFlags().BoolVar(&a.logJSON, "log-json", false, "Write logs as JSON instead of console text")

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.setup(cmd)
	}

	cmd.AddCommand(newExplainCommand(a))
	cmd.AddCommand(newEvalCommand(a))

	return cmd
}

func (a *app) setup(cmd *cobra.Command) error {
	level := zerolog.InfoLevel
	if a.debug {
		level = zerolog.DebugLevel
	}
	if a.logJSON {
		a.logger = zerolog.New(cmd.ErrOrStderr()).Level(level).With().Timestamp().Logger()
	} else {
		a.logger = zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}).
			Level(level).With().Timestamp().Logger()
	}

	if a.envFile != "" {
		if err := godotenv.Load(a.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			a.logger.Warn().Err(err).Str("path", a.envFile).Msg("Failed to load env file")
		}
	}

	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.logger.Debug().Str("model", cfg.LLM.Model).Str("base_url", cfg.LLM.BaseURL).Msg("Configuration loaded")
	return nil
}
