package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"crab-rebase-sim/internal/app"
	"crab-rebase-sim/internal/metrics"
	"crab-rebase-sim/internal/quote"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var probeCmd = &cobra.Command{
	Use:   "probe",
	Short: "Print prices, TWAP, quotes and funding at a block",
	Long: `Print every market input the simulation reads at one block, as JSON.

Examples:
  crabsim probe
  crabsim probe --block 14011134 --amount 10`,
	RunE: runProbe,
}

var (
	probeBlock  uint64
	probeAmount float64
)

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().Uint64Var(&probeBlock, "block", 0, "block to probe (default: chain head)")
	probeCmd.Flags().Float64Var(&probeAmount, "amount", 1, "oSQTH amount to quote, in whole tokens")
}

func runProbe(cmd *cobra.Command, args []string) error {
	if probeAmount <= 0 {
		return fmt.Errorf("amount must be positive, got %v", probeAmount)
	}
	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()
	src, closeSrc, err := app.OpenSource(ctx, cfg, log, metrics.NewNoop())
	if err != nil {
		return err
	}
	defer func() { _ = closeSrc() }()

	amount := decimal.NewFromFloat(probeAmount).Mul(quote.Ether).Truncate(0)
	report, err := app.Probe(ctx, src, probeBlock, amount)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
