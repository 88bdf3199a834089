package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Rheron1848/mcprt/pkg/config"
	"github.com/Rheron1848/mcprt/pkg/logging"
)

var (
	configPath string
	logLevel   string

	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "mcprt",
	Short: "A stateful JSON-RPC session runtime",
	Long: `mcprt serves the sample add, echo and countdown handlers over stdio or
streamable HTTP, and calls any server that speaks the same session protocol.

Settings come from defaults, then the file given with --config, then MCPRT_
environment variables (MCPRT_SERVER__ADDR=:9000), then flags.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, callCmd)
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built at: %s)", version, commit, date)
}

// loadConfig reads the configuration and applies the persistent flags
func loadConfig() (*config.Config, logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	// stdout carries protocol traffic in stdio mode
	logCfg := cfg.LoggerConfig()
	logCfg.Output = os.Stderr
	logger, err := logging.NewFromConfig(logCfg)
	if err != nil {
		return nil, nil, err
	}
	logging.SetGlobalLogger(logger)
	return cfg, logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
