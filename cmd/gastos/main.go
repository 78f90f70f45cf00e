package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"gastos/internal/cli"
	"gastos/internal/config"
	applog "gastos/internal/log"
)

var (
	version = "dev"

	logLevel string
	cfg      *config.Config
	logger   *applog.Logger

	rootCmd = &cobra.Command{
		Use:   "gastos",
		Short: "Monthly expenses dashboard backed by a spreadsheet",
		Long: `gastos reads a monthly expenses spreadsheet, caches the parsed dataset
and serves a dashboard with per-category totals.`,
		SilenceUsage:      true,
		PersistentPreRunE: initConfig,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error); overrides LOG_LEVEL")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(fetchCmd())
	rootCmd.AddCommand(cacheCmd())
	rootCmd.AddCommand(versionCmd())
}

func main() {
	ctx, cancel := cli.SignalContext(context.Background(), applog.New(applog.DefaultConfig()))
	err := rootCmd.ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initConfig(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "version" {
		return nil
	}
	cli.LoadEnvFile()

	loaded, err := cli.LoadAndValidateConfig()
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}
	cfg = loaded
	logger = cli.SetupLogger(cfg.LogLevel)
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "gastos", version)
		},
	}
}
