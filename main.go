package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/felo/eml-extract/internal/config"
	"github.com/felo/eml-extract/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "eml-extract",
		Short:         "Parse email messages and extract their fields and bodies",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(rootCmd)

	rootCmd.AddCommand(newExtractCommand(), newIndexCommand(), newServeCommand())
	return rootCmd
}

// setup loads the configuration for cmd and installs the default logger.
func setup(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd)
	if err != nil {
		return nil, nil, err
	}

	log, err := logger.New(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(log)

	return cfg, log, nil
}
