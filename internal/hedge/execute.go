package hedge

import (
	"context"
	"fmt"

	"crab-rebase-sim/internal/quote"

	"github.com/shopspring/decimal"
)

type Outcome int

const (
	OutcomeApplied Outcome = iota
	// OutcomeNoHedge means the deviation was inside the threshold.
	OutcomeNoHedge
	// OutcomeUnfavorable means includeInterest rejected the quoted execution.
	OutcomeUnfavorable
	// OutcomeValueRegression means the value guard rejected the rebase.
	OutcomeValueRegression
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeNoHedge:
		return "no_hedge"
	case OutcomeUnfavorable:
		return "unfavorable"
	case OutcomeValueRegression:
		return "value_regression"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is the raw rebase output. Amounts are unchanged unless Outcome is
// OutcomeApplied.
type Result struct {
	ShortAmount      decimal.Decimal
	CollateralAmount decimal.Decimal
	TWAP             decimal.Decimal
	UserInterest     decimal.Decimal
	Target           Target
	Outcome          Outcome
}

// Execute sizes the hedge at block and fills it against quoted prices.
//
// With includeInterest the selling side only applies when the quote returns
// less oSQTH than the target, and the buying side only when the quoted cost
// is below the TWAP proceeds.
func Execute(ctx context.Context, p quote.Provider, block uint64, short, collateral, threshold decimal.Decimal, includeInterest bool) (Result, error) {
	twap, err := p.TWAP(ctx, quote.PairOSQTHWETH, quote.DefaultTWAPWindow, block)
	if err != nil {
		return Result{}, err
	}
	unchanged := Result{
		ShortAmount:      short,
		CollateralAmount: collateral,
		TWAP:             twap,
		UserInterest:     decimal.Zero,
	}

	target, err := SizeHedge(short, collateral, twap, threshold)
	if err != nil {
		return Result{}, err
	}
	unchanged.Target = target
	if target.IsZero() {
		unchanged.Outcome = OutcomeNoHedge
		return unchanged, nil
	}

	ethProceeds := target.Hedge.Mul(twap).Truncate(0)
	hedgeWei := target.Hedge.Shift(18)

	var res Result
	if target.Selling {
		quoted, err := p.QuoteExactOutput(ctx, quote.TokenOSQTH, quote.TokenWETH, ethProceeds, block)
		if err != nil {
			return Result{}, err
		}
		quotedUnits := quoted.Shift(-18)
		interest := target.Hedge.Sub(quotedUnits)
		if includeInterest {
			if !quotedUnits.LessThan(target.Hedge) {
				unchanged.Outcome = OutcomeUnfavorable
				return unchanged, nil
			}
			interest = quotedUnits.Sub(target.Hedge)
		}
		res = Result{
			ShortAmount:      short.Add(hedgeWei).Truncate(0),
			CollateralAmount: collateral.Add(ethProceeds),
			UserInterest:     interest,
		}
	} else {
		cost, err := p.QuoteExactOutput(ctx, quote.TokenWETH, quote.TokenOSQTH, hedgeWei.Truncate(0), block)
		if err != nil {
			return Result{}, err
		}
		if includeInterest && !cost.LessThan(ethProceeds) {
			unchanged.Outcome = OutcomeUnfavorable
			return unchanged, nil
		}
		res = Result{
			ShortAmount:      short.Sub(hedgeWei).Truncate(0),
			CollateralAmount: collateral.Sub(ethProceeds),
			UserInterest:     cost.Sub(ethProceeds).Shift(-18),
		}
	}

	if res.ShortAmount.Sign() < 0 || res.CollateralAmount.Sign() < 0 {
		return Result{}, fmt.Errorf("short %s collateral %s at block %d: %w", res.ShortAmount, res.CollateralAmount, block, ErrNegativePosition)
	}
	res.TWAP = twap
	res.Target = target
	res.Outcome = OutcomeApplied
	return res, nil
}
