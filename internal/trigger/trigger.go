// Package trigger decides whether a strategy should rebase at a block.
package trigger

import (
	"context"
	"fmt"
	"math"

	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
)

const (
	ReasonOpportunisticPrice = "opportunistic price"
	ReasonNone               = "no rebase"
)

var (
	// LowerBound is the collateral ratio at or below which every variant rebases.
	LowerBound = decimal.RequireFromString("1.75")

	performanceLimit = decimal.RequireFromString("1.07")
)

const (
	growthRatioLimit = 2.0
	growthEpsilon    = 1e-9
)

type Signal int

const (
	SignalSpot Signal = iota
	SignalTWAP
)

func (s Signal) String() string {
	if s == SignalTWAP {
		return "twap"
	}
	return "spot"
}

type Result struct {
	Triggered bool
	Reason    string
}

// Condition is the predicate the simulation asks before each rebase.
type Condition interface {
	Evaluate(ctx context.Context, p quote.Provider, block uint64, current vault.Status) (Result, error)
}

// Rules is the shared trigger state machine. Rules are checked in a fixed
// order and the first match wins: opportunistic price, opportunistic growth,
// low collateral ratio, high collateral ratio, performance.
type Rules struct {
	Name string
	// UpperBound disables the high collateral rule when zero.
	UpperBound  decimal.Decimal
	Signal      Signal
	Growth      bool
	Performance bool
}

type observation struct {
	ethPrice        float64
	osqthPrice      float64
	twap            decimal.Decimal
	collateralRatio decimal.Decimal
	totalValue      decimal.Decimal
}

func (r Rules) Evaluate(ctx context.Context, p quote.Provider, block uint64, current vault.Status) (Result, error) {
	obs, err := r.observe(ctx, p, block, current)
	if err != nil {
		return Result{}, fmt.Errorf("%s at block %d: %w", r.Name, block, err)
	}
	return r.decide(obs, current), nil
}

func (r Rules) observe(ctx context.Context, p quote.Provider, block uint64, current vault.Status) (observation, error) {
	var obs observation
	var err error
	if obs.ethPrice, err = p.SpotPrice(ctx, quote.PairWETHUSDC, block); err != nil {
		return obs, err
	}
	if r.Signal == SignalTWAP {
		if obs.twap, err = p.TWAP(ctx, quote.PairOSQTHWETH, quote.DefaultTWAPWindow, block); err != nil {
			return obs, err
		}
	} else {
		if obs.osqthPrice, err = p.SpotPrice(ctx, quote.PairOSQTHWETH, block); err != nil {
			return obs, err
		}
	}
	// Always recomputed for block, never taken from the snapshot.
	if obs.collateralRatio, err = vault.CollateralRatioAt(ctx, p, current.ShortAmount, current.CollateralAmount, block); err != nil {
		return obs, err
	}
	if r.Performance {
		if obs.totalValue, err = vault.TotalValueUSDC(ctx, p, current.ShortAmount, current.CollateralAmount, block); err != nil {
			return obs, err
		}
	}
	return obs, nil
}

func (r Rules) decide(obs observation, current vault.Status) Result {
	ethRose := obs.ethPrice > current.WETHPrice
	if ethRose && r.osqthHeld(obs, current) {
		return Result{Triggered: true, Reason: ReasonOpportunisticPrice}
	}
	if r.Growth && ethRose {
		if res, ok := growth(obs, current); ok {
			return res
		}
	}
	if obs.collateralRatio.LessThanOrEqual(LowerBound) {
		return Result{Triggered: true, Reason: fmt.Sprintf("collateral less than %s: %s", LowerBound, obs.collateralRatio)}
	}
	if r.UpperBound.IsPositive() && obs.collateralRatio.GreaterThanOrEqual(r.UpperBound) {
		return Result{Triggered: true, Reason: fmt.Sprintf("collateral more than %s: %s", r.UpperBound, obs.collateralRatio)}
	}
	if r.Performance && current.TotalValueUSDC.IsPositive() {
		ratio := obs.totalValue.Div(current.TotalValueUSDC)
		if ratio.GreaterThan(performanceLimit) {
			return Result{Triggered: true, Reason: fmt.Sprintf("total value has grown by: %s%%", ratio.Mul(decimal.NewFromInt(100)))}
		}
	}
	return Result{Reason: ReasonNone}
}

func (r Rules) osqthHeld(obs observation, current vault.Status) bool {
	if r.Signal == SignalTWAP {
		return obs.twap.LessThanOrEqual(current.TWAPOSQTHPrice)
	}
	return obs.osqthPrice <= current.OSQTHETHPrice
}

// growth fires when oSQTH grew less than twice as fast as ETH. It is skipped
// when either previous price is unset or ETH barely moved.
func growth(obs observation, current vault.Status) (Result, bool) {
	if current.WETHPrice <= 0 || current.OSQTHETHPrice <= 0 {
		return Result{}, false
	}
	ethGrowth := obs.ethPrice/current.WETHPrice - 1
	if math.Abs(ethGrowth) < growthEpsilon {
		return Result{}, false
	}
	osqthGrowth := obs.osqthPrice/current.OSQTHETHPrice - 1
	ratio := osqthGrowth / ethGrowth
	if ratio >= growthRatioLimit {
		return Result{}, false
	}
	return Result{
		Triggered: true,
		Reason: fmt.Sprintf("opportunistic growth: %v %v %v %v ratio %.3f",
			obs.ethPrice, current.WETHPrice, obs.osqthPrice, current.OSQTHETHPrice, ratio),
	}, true
}
