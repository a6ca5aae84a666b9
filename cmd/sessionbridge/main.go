package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kitchenops/sessionbridge/internal/app"
	"github.com/kitchenops/sessionbridge/internal/config"
	"github.com/kitchenops/sessionbridge/internal/observability"
	"github.com/kitchenops/sessionbridge/internal/tools/common"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var envFile string
	cmd := &cobra.Command{
		Use:          "sessionbridge",
		Short:        "Back-office auth session bridge",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional KEY=VALUE env file")
	cmd.AddCommand(newServeCommand(&envFile))
	return cmd
}

func newServeCommand(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if err := common.LoadEnvFile(*envFile); err != nil {
				return err
			}
			cfg, err := config.Load(ctx)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, loggerProvider, err := observability.InitLogging(ctx, cfg)
			if err != nil {
				return fmt.Errorf("init logging: %w", err)
			}

			a, err := app.InitializeApp(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			a.Observability.LoggerProvider = loggerProvider
			return a.Run(ctx)
		},
	}
}
