package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/sqlgraph/internal/cli"
	"github.com/aretw0/sqlgraph/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "sqlgraph",
	Short: "sqlgraph answers analytics questions with planned, verified SQL",
	Long: `sqlgraph turns a natural-language question into a reviewed analysis plan,
synthesizes and verifies SQL against the scope's datasource, and writes a report.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default $SQLGRAPH_CONFIG or ./sqlgraph.yaml)")
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging on stderr")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// openApp loads the configuration and wires the engine. Callers must Close it.
func openApp(ctx context.Context, cmd *cobra.Command) (*cli.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	debug, _ := cmd.Flags().GetBool("debug")
	logger := cli.NewLogger(cfg.Log, debug)
	return cli.NewApp(ctx, cfg, logger, cli.Overrides{})
}
