package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"milestonepay/internal/app/bootstrap"
	"milestonepay/internal/platform/config"

	"github.com/spf13/cobra"
)

// Worker process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring.
// 3) Start the verification consumer and the outbox relay.

var configPath string

var rootCmd = &cobra.Command{
	Use:           "milestonepay-worker",
	Short:         "Verification consumer and outbox relay",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := bootstrap.BuildWorker(ctx, cfg)
		if err != nil {
			return fmt.Errorf("bootstrap worker: %w", err)
		}
		defer func() {
			if err := app.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "worker shutdown close failed: %v\n", err)
			}
		}()
		return app.Run(ctx)
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
