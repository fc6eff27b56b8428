package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mlespinoza1/swarm/internal/config"
	"github.com/mlespinoza1/swarm/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "gather",
	Short: "Requirements gathering workflow for the agent swarm",
	Long: `Gather turns a requirements document into generated code.

It refines requirements.txt with a language model, cross-references the
result with memgpt_index.md, notifies the swarm agents along the way and
writes the code returned by the code-generation endpoint to
transformed_code_output.py, keeping one backup of the previous output.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	cfgFile string // Settings file named with --config
	envFile string // Dotenv file named with --env-file

	// configReadErr holds the error from loading cfgFile or envFile.
	configReadErr error
)

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "settings file (default is ./gather.yaml if present)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", config.DefaultDotEnv, "dotenv file to load before reading the environment")
}

func initConfig() {
	configReadErr = nil

	// Environment from the dotenv file must be in place before viper binds it.
	if err := config.LoadDotEnv(envFile); err != nil {
		configReadErr = err
		return
	}

	config.SetDefaults(viper.GetViper())

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			configReadErr = fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		return
	}

	viper.SetConfigName("gather")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	// Read config file if it exists (ignore error if not found)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			configReadErr = fmt.Errorf("read config: %w", err)
		}
	}
}

// loadConfig returns the validated configuration and installs the
// configured logger as the slog default.
func loadConfig() (*config.Config, *slog.Logger, error) {
	if configReadErr != nil {
		return nil, nil, configReadErr
	}
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	logger := logging.New(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	return cfg, logger, nil
}
