package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"milestonepay/contexts/engagement-finance/milestone-escrow/domain/entities"
	"milestonepay/internal/app/bootstrap"
	"milestonepay/internal/platform/config"
	"milestonepay/internal/platform/httpserver"

	"github.com/spf13/cobra"
)

// API process entrypoint.
// Data flow:
// 1) Load config.
// 2) Build app wiring (ports + adapters + use cases).
// 3) Start HTTP server until SIGINT/SIGTERM.

var configPath string

var rootCmd = &cobra.Command{
	Use:           "milestonepay-api",
	Short:         "Milestone escrow HTTP API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, err := bootstrap.BuildAPI(ctx, cfg)
		if err != nil {
			return fmt.Errorf("bootstrap api: %w", err)
		}
		defer func() {
			if err := app.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "api shutdown close failed: %v\n", err)
			}
		}()
		return app.Run(ctx)
	},
}

var (
	tokenUserID string
	tokenRole   string
	tokenTTL    time.Duration
)

// tokenCmd signs a bearer token with the configured secret for local use.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Print a bearer token for a user id and role",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		caller := entities.Caller{UserID: tokenUserID, Role: entities.Role(tokenRole)}
		if !caller.Valid() {
			return fmt.Errorf("invalid caller %q with role %q", tokenUserID, tokenRole)
		}
		token, err := httpserver.SignToken(cfg.JWTSecret, caller, tokenTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")
	tokenCmd.Flags().StringVar(&tokenUserID, "user", "", "user id (token subject)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", string(entities.RoleAdmin), "freelancer, employer or admin")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
