package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"journalagent/config"
	loggerv2 "journalagent/logger/v2"
)

var (
	v          = viper.New()
	configPath string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "journal-agent",
	Short: "Conversational trading journal assistant",
	Long: `Conversational trading journal assistant.

Answers questions about a user's trades, notes and strategies by driving a
language model through tool calls against the journal gateway and a set of
built-in tools, and streams the answer over server-sent events.

Examples:
  # Serve with defaults and JOURNAL_AGENT_* environment variables
  journal-agent serve

  # Serve with a config file and debug logging
  journal-agent serve --config journal-agent.yaml --log-level debug

  # Show the tools the model would be offered
  journal-agent tools`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file")

	for key, flag := range map[string]string{
		"log.level":  "log-level",
		"log.format": "log-format",
		"log.file":   "log-file",
	} {
		if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			fmt.Fprintf(os.Stderr, "bind flag %s: %v\n", flag, err)
			os.Exit(1)
		}
	}

	rootCmd.AddCommand(serveCmd, toolsCmd)
}

// setup loads configuration and creates the logger shared by every command.
func setup() (*config.Config, loggerv2.Logger, error) {
	cfg, err := config.Load(v, configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := loggerv2.New(loggerv2.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   "stderr",
		FilePath: cfg.Log.File,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
