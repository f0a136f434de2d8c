package main

import (
	"fmt"
	"os"

	"crab-rebase-sim/internal/config"
	"crab-rebase-sim/internal/logging"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	envPath    string
	envFile    config.EnvFile
)

var rootCmd = &cobra.Command{
	Use:   "crabsim",
	Short: "Backtest Crab strategy rebalancing against archived chain state",
	Long: `crabsim replays historical blocks through one or more Crab strategy
configurations, rebasing each vault when its trigger fires and writing every
snapshot to CSV, the snapshot journal and, optionally, TimescaleDB.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		res, err := config.LoadEnv(envPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", envPath, err)
		}
		envFile = res
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "internal/config/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envPath, "env", ".env", "path to .env file")
}

func loadConfig() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	log := logging.New(cfg.Log)
	log.Info("config loaded", zap.String("path", configPath))
	if envFile.Found {
		log.Info("env file loaded",
			zap.String("path", envFile.Path),
			zap.Strings("overrides", envFile.Overrides()),
			zap.Int("applied", len(envFile.Applied)),
			zap.Strings("shadowed", envFile.Shadowed),
		)
	}
	return cfg, log, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
