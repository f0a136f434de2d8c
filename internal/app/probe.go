package app

import (
	"context"
	"time"

	"crab-rebase-sim/internal/quote"

	"github.com/shopspring/decimal"
)

// ProbeReport is a point-in-time view of every market input the simulation
// reads at one block.
type ProbeReport struct {
	Block               uint64          `json:"block"`
	Time                time.Time       `json:"time"`
	WETHPrice           float64         `json:"weth_price"`
	OSQTHETHPrice       float64         `json:"osqth_eth_price"`
	TWAPOSQTHPrice      decimal.Decimal `json:"twap_osqth_price"`
	Amount              decimal.Decimal `json:"amount"`
	SellProceeds        decimal.Decimal `json:"sell_proceeds"`
	BuyCost             decimal.Decimal `json:"buy_cost"`
	ImpliedFunding      float64         `json:"implied_funding"`
	NormalizationFactor decimal.Decimal `json:"normalization_factor"`
}

// Probe reads prices and quotes for amount wei of oSQTH at block, or at the
// chain head when block is zero.
func Probe(ctx context.Context, src quote.Source, block uint64, amount decimal.Decimal) (ProbeReport, error) {
	if block == 0 {
		head, err := src.HeadBlock(ctx)
		if err != nil {
			return ProbeReport{}, err
		}
		block = head
	}
	out := ProbeReport{Block: block, Amount: amount}
	var err error
	if out.Time, err = src.BlockTime(ctx, block); err != nil {
		return ProbeReport{}, err
	}
	if out.WETHPrice, err = src.SpotPrice(ctx, quote.PairWETHUSDC, block); err != nil {
		return ProbeReport{}, err
	}
	if out.OSQTHETHPrice, err = src.SpotPrice(ctx, quote.PairOSQTHWETH, block); err != nil {
		return ProbeReport{}, err
	}
	if out.TWAPOSQTHPrice, err = src.TWAP(ctx, quote.PairOSQTHWETH, quote.DefaultTWAPWindow, block); err != nil {
		return ProbeReport{}, err
	}
	if out.SellProceeds, err = src.QuoteExactInput(ctx, quote.TokenOSQTH, quote.TokenWETH, amount, block); err != nil {
		return ProbeReport{}, err
	}
	if out.BuyCost, err = src.QuoteExactOutput(ctx, quote.TokenWETH, quote.TokenOSQTH, amount, block); err != nil {
		return ProbeReport{}, err
	}
	funding, err := quote.ImpliedFunding(ctx, src, block)
	if err != nil {
		return ProbeReport{}, err
	}
	out.ImpliedFunding = funding * 100
	if out.NormalizationFactor, err = src.NormalizationFactor(ctx, block); err != nil {
		return ProbeReport{}, err
	}
	return out, nil
}
