package main

import (
	"encoding/json"
	"fmt"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"MarketFlow/internal/di"
	"MarketFlow/internal/usecase"
	"MarketFlow/pkg/config"
	"MarketFlow/pkg/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "marketflow",
		Short:         "Pair-rotation signal engine",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "config file path")

	root.AddCommand(serveCmd(&configPath))
	root.AddCommand(cycleCmd(&configPath))
	root.AddCommand(migrateCmd(&configPath))
	return root
}

// build loads config and wires the application. The returned cleanup closes every client.
func build(configPath string) (*server.App, func(), error) {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config load failed: %w", err)
	}
	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, cleanup, nil
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, API and notification delivery until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := build(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Run()
		},
	}
}

func cycleCmd(configPath *string) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "cycle",
		Short: "Evaluate one cycle and print the report",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := build(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			if err := app.Migrate(ctx); err != nil {
				return err
			}
			report, err := app.RunCycle(ctx, refresh)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if term.IsTerminal(int(os.Stdout.Fd())) {
				title, body := usecase.FormatReport(report)
				fmt.Fprintf(out, "%s\n\n%s\n", title, body)
				return nil
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "refetch the baseline even when stored data is fresh")
	return cmd
}

func migrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create storage tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, cleanup, err := build(*configPath)
			if err != nil {
				return err
			}
			defer cleanup()
			return app.Migrate(cmd.Context())
		},
	}
}

