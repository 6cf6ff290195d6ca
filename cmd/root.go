// Package cmd defines and implements the CLI commands for the collector
// executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// appKeyType is the key for storing the App in the context.
type appKeyType struct{}

var appKey appKeyType

// newApp is the application factory. It is a variable so tests can swap
// in a mock container.
var newApp = realApp

// newRootCmd creates and configures the root command. Application
// services are built in PersistentPreRunE so every subcommand finds a
// ready container in its context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "collector",
		Short: "Drives the external crawler across tracked creators.",
		Long: `collector orchestrates an external crawler subprocess to gather
creator notes in planned batches, tracking per-creator progress locally
so interrupted runs can resume where they stopped.`,

		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			container, err := newApp(cfgFile)
			if err != nil {
				return fmt.Errorf("initializing application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, container))
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if container, ok := cmd.Context().Value(appKey).(App); ok && container != nil {
				_ = container.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ./collector.yaml)")

	cmd.AddCommand(newCollectCmd())
	cmd.AddCommand(newDiscoverCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// resolveApp fetches the container placed in the context by the root
// command.
func resolveApp(ctx context.Context) (App, error) {
	container, ok := ctx.Value(appKey).(App)
	if !ok || container == nil {
		return nil, errors.New("application services not initialized")
	}
	return container, nil
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
