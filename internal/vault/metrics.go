package vault

import (
	"context"
	"fmt"

	"crab-rebase-sim/internal/quote"

	"github.com/shopspring/decimal"
)

// CollateralRatio is collateral / (short * oSQTH/WETH spot).
func CollateralRatio(short, collateral decimal.Decimal, osqthPrice float64) (decimal.Decimal, error) {
	debt := short.Mul(decimal.NewFromFloat(osqthPrice))
	if debt.IsZero() {
		return decimal.Zero, fmt.Errorf("collateral ratio with short %s at price %v: %w", short, osqthPrice, ErrDivisionByZero)
	}
	return collateral.Div(debt), nil
}

func CollateralRatioAt(ctx context.Context, p quote.Provider, short, collateral decimal.Decimal, block uint64) (decimal.Decimal, error) {
	price, err := p.SpotPrice(ctx, quote.PairOSQTHWETH, block)
	if err != nil {
		return decimal.Zero, err
	}
	return CollateralRatio(short, collateral, price)
}

// BuyBackCost is the WETH needed to buy the whole short back at block.
func BuyBackCost(ctx context.Context, p quote.Provider, short decimal.Decimal, block uint64) (decimal.Decimal, error) {
	return p.QuoteExactOutput(ctx, quote.TokenWETH, quote.TokenOSQTH, short, block)
}

// EffectiveCollateralRatio divides collateral by the quoted cost of
// repaying the short, so it includes slippage.
func EffectiveCollateralRatio(ctx context.Context, p quote.Provider, short, collateral decimal.Decimal, block uint64) (decimal.Decimal, error) {
	cost, err := BuyBackCost(ctx, p, short, block)
	if err != nil {
		return decimal.Zero, err
	}
	return effectiveRatio(collateral, cost)
}

func effectiveRatio(collateral, cost decimal.Decimal) (decimal.Decimal, error) {
	if cost.IsZero() {
		return decimal.Zero, fmt.Errorf("effective collateral ratio: %w", ErrDivisionByZero)
	}
	return collateral.Div(cost), nil
}

// TotalValueUSDC is the net vault value after buying back the short,
// priced in USDC and rounded to an integer.
func TotalValueUSDC(ctx context.Context, p quote.Provider, short, collateral decimal.Decimal, block uint64) (decimal.Decimal, error) {
	cost, err := BuyBackCost(ctx, p, short, block)
	if err != nil {
		return decimal.Zero, err
	}
	ethPrice, err := p.SpotPrice(ctx, quote.PairWETHUSDC, block)
	if err != nil {
		return decimal.Zero, err
	}
	return totalValue(collateral, cost, ethPrice), nil
}

func totalValue(collateral, cost decimal.Decimal, ethPrice float64) decimal.Decimal {
	return collateral.Sub(cost).Mul(decimal.NewFromFloat(ethPrice)).Round(0)
}

type Measurement struct {
	CollateralRatio          decimal.Decimal
	EffectiveCollateralRatio decimal.Decimal
	TotalValueUSDC           decimal.Decimal
	WETHPrice                float64
	OSQTHETHPrice            float64
}

func (m Measurement) OSQTHUSDCPrice() float64 {
	return m.WETHPrice * m.OSQTHETHPrice
}

// Measure computes every position metric at block with one lookup per input.
func Measure(ctx context.Context, p quote.Provider, short, collateral decimal.Decimal, block uint64) (Measurement, error) {
	osqth, err := p.SpotPrice(ctx, quote.PairOSQTHWETH, block)
	if err != nil {
		return Measurement{}, err
	}
	eth, err := p.SpotPrice(ctx, quote.PairWETHUSDC, block)
	if err != nil {
		return Measurement{}, err
	}
	cr, err := CollateralRatio(short, collateral, osqth)
	if err != nil {
		return Measurement{}, err
	}
	cost, err := BuyBackCost(ctx, p, short, block)
	if err != nil {
		return Measurement{}, err
	}
	ecr, err := effectiveRatio(collateral, cost)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{
		CollateralRatio:          cr,
		EffectiveCollateralRatio: ecr,
		TotalValueUSDC:           totalValue(collateral, cost, eth),
		WETHPrice:                eth,
		OSQTHETHPrice:            osqth,
	}, nil
}
