package hedge

import (
	"context"

	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
)

type Rebaser struct {
	Market          quote.Market
	Threshold       decimal.Decimal
	IncludeInterest bool
}

// Rebase executes the hedge one block after block and prices the new
// position at block. Every outcome other than OutcomeApplied returns current
// unchanged. With checkValue a rebase that lowers the total value is
// discarded as OutcomeValueRegression.
func (r Rebaser) Rebase(ctx context.Context, current vault.Status, block uint64, checkValue bool) (vault.Status, Outcome, error) {
	preRatio, err := vault.CollateralRatioAt(ctx, r.Market, current.ShortAmount, current.CollateralAmount, block)
	if err != nil {
		return current, 0, err
	}
	res, err := Execute(ctx, r.Market, block+1, current.ShortAmount, current.CollateralAmount, r.Threshold, r.IncludeInterest)
	if err != nil {
		return current, 0, err
	}
	if res.Outcome != OutcomeApplied {
		return current, res.Outcome, nil
	}

	m, err := vault.Measure(ctx, r.Market, res.ShortAmount, res.CollateralAmount, block)
	if err != nil {
		return current, 0, err
	}
	if checkValue && m.TotalValueUSDC.LessThan(current.TotalValueUSDC) {
		return current, OutcomeValueRegression, nil
	}

	ts, err := r.Market.BlockTime(ctx, block)
	if err != nil {
		return current, 0, err
	}
	return vault.Status{
		BlockNumber:              block,
		Timestamp:                ts,
		ShortAmount:              res.ShortAmount,
		CollateralAmount:         res.CollateralAmount,
		CollateralRatio:          m.CollateralRatio,
		PrevCollateralRatio:      preRatio,
		EffectiveCollateralRatio: m.EffectiveCollateralRatio,
		TotalValueUSDC:           m.TotalValueUSDC,
		WETHPrice:                m.WETHPrice,
		OSQTHETHPrice:            m.OSQTHETHPrice,
		OSQTHUSDCPrice:           m.OSQTHUSDCPrice(),
		TWAPOSQTHPrice:           res.TWAP,
		UserInterest:             res.UserInterest,
	}, OutcomeApplied, nil
}
