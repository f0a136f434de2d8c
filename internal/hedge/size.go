// Package hedge sizes and executes the delta-hedging rebase of a Crab vault.
package hedge

import (
	"errors"
	"fmt"

	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
)

var ErrNegativePosition = errors.New("rebase would leave a negative position")

const divisionPrecision = 18

var two = decimal.NewFromInt(2)

// Target is the oSQTH amount, in whole tokens, that restores delta
// neutrality and the auction direction.
type Target struct {
	Hedge   decimal.Decimal
	Selling bool
}

func (t Target) IsZero() bool {
	return t.Hedge.IsZero()
}

// SizeHedge compares the squeeth delta (2 * short * price) with the ETH delta
// (collateral). twap is the 18-decimal oSQTH/WETH price. A deviation at or
// below threshold, as a fraction of collateral, yields a zero target.
func SizeHedge(short, collateral, twap, threshold decimal.Decimal) (Target, error) {
	price := twap.Shift(-18)
	if price.IsZero() {
		return Target{}, fmt.Errorf("size hedge at zero price: %w", vault.ErrDivisionByZero)
	}
	if collateral.IsZero() {
		return Target{}, fmt.Errorf("size hedge with zero collateral: %w", vault.ErrDivisionByZero)
	}
	squeethDelta := short.Mul(two).Mul(price)
	ethDelta := collateral

	var target Target
	if squeethDelta.GreaterThan(ethDelta) {
		target = Target{Hedge: squeethDelta.Sub(ethDelta).DivRound(price, divisionPrecision).Shift(-18)}
	} else {
		target = Target{Hedge: ethDelta.Sub(squeethDelta).DivRound(price, divisionPrecision).Shift(-18), Selling: true}
	}

	deviation := target.Hedge.Mul(twap).Div(collateral)
	if deviation.LessThanOrEqual(threshold) {
		return Target{}, nil
	}
	return target, nil
}
