package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "dbftsim",
		Short: "Simulate a dBFT validator network",

		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	logger := func(cmd *cobra.Command) (*slog.Logger, error) {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(logLevel)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
			Level: lvl,
		})), nil
	}

	root.AddCommand(
		newRunCmd(logger),
		newKeysCmd(),
		newDecodeCmd(),
		newStatusCmd(),
	)

	return root
}

// loggerFunc builds the logger for a command
// from the persistent flags once they are parsed.
type loggerFunc func(*cobra.Command) (*slog.Logger, error)

