// Package sim drives the Crab strategies over a block range: initial vault
// sizing, per-block trigger evaluation and rebasing, and the final repricing.
package sim

import (
	"context"
	"errors"
	"fmt"

	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
)

// ReasonInitial marks the first snapshot of a pass.
const ReasonInitial = "Initial"

const maxBisectIterations = 64

var (
	borrowLow       = decimal.RequireFromString("0.25")
	borrowHigh      = decimal.NewFromInt(3)
	borrowTolerance = decimal.RequireFromString("0.0001")
	two             = decimal.NewFromInt(2)
)

var ErrInvalidDeposit = errors.New("deposit must be positive")

// Sizing is the leveraged position opened for a deposit.
type Sizing struct {
	Borrow     decimal.Decimal
	Short      decimal.Decimal
	Collateral decimal.Decimal
	Iterations int
}

// SizeInitial finds how much ETH to borrow against deposit so that selling
// the minted oSQTH repays the borrow with at most 0.01% to spare. The search
// bisects the borrow multiplier over [0.25, 3].
func SizeInitial(ctx context.Context, p quote.Provider, deposit decimal.Decimal, block uint64) (Sizing, error) {
	if deposit.Sign() <= 0 {
		return Sizing{}, ErrInvalidDeposit
	}
	spot, err := p.SpotPrice(ctx, quote.PairOSQTHWETH, block)
	if err != nil {
		return Sizing{}, err
	}
	if spot <= 0 {
		return Sizing{}, fmt.Errorf("osqth price %v at block %d: %w", spot, block, vault.ErrDivisionByZero)
	}
	price := decimal.NewFromFloat(spot)

	low, high := borrowLow, borrowHigh
	var out Sizing
	var prevQuote decimal.Decimal
	for i := 0; i < maxBisectIterations && low.LessThanOrEqual(high); i++ {
		mid := low.Add(high).Div(two)
		borrow := deposit.Mul(mid).Truncate(0)
		debt := borrow.Add(deposit).DivRound(price, 18).Div(two).Round(0)
		proceeds, err := p.QuoteExactInput(ctx, quote.TokenOSQTH, quote.TokenWETH, debt, block)
		if err != nil {
			return Sizing{}, err
		}
		out = Sizing{Borrow: borrow, Short: debt, Collateral: deposit.Add(borrow), Iterations: i + 1}
		if i > 0 && proceeds.Equal(prevQuote) {
			break
		}
		prevQuote = proceeds

		excess := proceeds.DivRound(borrow, 18).Sub(decimal.NewFromInt(1))
		if excess.Sign() > 0 && excess.LessThanOrEqual(borrowTolerance) {
			break
		}
		if excess.Sign() > 0 {
			low = mid
		} else {
			high = mid
		}
	}
	return out, nil
}

// InitialVault sizes the position for deposit wei of ETH and measures it at
// block.
func InitialVault(ctx context.Context, src quote.Source, deposit decimal.Decimal, block uint64) (vault.Status, error) {
	size, err := SizeInitial(ctx, src, deposit, block)
	if err != nil {
		return vault.Status{}, err
	}
	status := vault.Status{
		ShortAmount:      size.Short,
		CollateralAmount: size.Collateral,
		Reason:           ReasonInitial,
	}
	if err := reprice(ctx, src, &status, block); err != nil {
		return vault.Status{}, err
	}
	twap, err := src.TWAP(ctx, quote.PairOSQTHWETH, quote.DefaultTWAPWindow, block)
	if err != nil {
		return vault.Status{}, err
	}
	status.TWAPOSQTHPrice = twap
	return status, nil
}

// reprice refreshes every market-derived field of status at block. Amounts,
// the reason, the TWAP and the interest are left as they are.
func reprice(ctx context.Context, src quote.Source, status *vault.Status, block uint64) error {
	m, err := vault.Measure(ctx, src, status.ShortAmount, status.CollateralAmount, block)
	if err != nil {
		return err
	}
	ts, err := src.BlockTime(ctx, block)
	if err != nil {
		return err
	}
	status.BlockNumber = block
	status.Timestamp = ts
	status.CollateralRatio = m.CollateralRatio
	status.EffectiveCollateralRatio = m.EffectiveCollateralRatio
	status.TotalValueUSDC = m.TotalValueUSDC
	status.WETHPrice = m.WETHPrice
	status.OSQTHETHPrice = m.OSQTHETHPrice
	status.OSQTHUSDCPrice = m.OSQTHUSDCPrice()
	return annotateFunding(ctx, src, status, block)
}

// annotateFunding sets the implied funding (percent per day) and the
// normalization factor.
func annotateFunding(ctx context.Context, src quote.FundingSource, status *vault.Status, block uint64) error {
	funding, err := quote.ImpliedFunding(ctx, src, block)
	if err != nil {
		return err
	}
	nf, err := src.NormalizationFactor(ctx, block)
	if err != nil {
		return err
	}
	status.CurrentImpliedFunding = funding * 100
	status.NormalizationFactor, _ = nf.Shift(-18).Float64()
	return nil
}
