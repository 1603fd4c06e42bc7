// Package main is the entry point for eflp, the enterprise firewall log parser.
package main

import (
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cisec/eflp/internal/config"
	"github.com/cisec/eflp/internal/logging"
	"github.com/cisec/eflp/internal/parser"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type globalFlags struct {
	cfgFile  string
	logLevel string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "eflp",
		Short: "Enterprise firewall log parser",
		Long: `eflp normalizes firewall logs from eleven vendors into a common record
shape, either from the command line or as an HTTP/websocket service.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&flags.logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")

	// Version info
	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}}
Commit: ` + commit + `
Build Date: ` + buildDate + "\n")

	rootCmd.AddCommand(
		newParseCmd(flags),
		newVendorsCmd(),
		newMappingCmd(),
		newServeCmd(flags),
	)
	return rootCmd
}

// setup loads the configuration and builds the logger. When records go to
// stdout the log is moved to stderr.
func (f *globalFlags) setup(recordsOnStdout bool) (*config.Config, zerolog.Logger, io.Closer, error) {
	cfg, err := config.Load(f.cfgFile)
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}

	// Override log level from CLI
	if f.logLevel != "" {
		cfg.Logging.Level = f.logLevel
	}
	if recordsOnStdout && cfg.Logging.Output == "stdout" {
		cfg.Logging.Output = "stderr"
	}

	logger, closer, err := logging.New(cfg.Logging, "eflp")
	if err != nil {
		return nil, zerolog.Nop(), nil, err
	}
	return cfg, logger, closer, nil
}

func newDispatcher(cfg config.ParserSettings, logger zerolog.Logger) *parser.Dispatcher {
	registry := parser.NewRegistry(parser.Options{MaxLineBytes: cfg.MaxLineBytes}, logger)
	return parser.NewDispatcher(registry, parser.DispatchConfig{
		Workers:       cfg.Workers,
		ParallelLines: cfg.ParallelLines,
		MaxLineBytes:  cfg.MaxLineBytes,
	}, logger)
}
