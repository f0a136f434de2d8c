// Package quote defines the block-addressed price and execution-quote source
// consumed by the trigger and hedge packages.
package quote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Pair string

const (
	PairWETHUSDC  Pair = "WETH/USDC"
	PairOSQTHWETH Pair = "oSQTH/WETH"
)

type Token string

const (
	TokenWETH  Token = "WETH"
	TokenOSQTH Token = "oSQTH"
)

// DefaultTWAPWindow is the oracle window used by the Crab strategy.
const DefaultTWAPWindow = 420 * time.Second

// Ether is the fixed-point scale of token amounts and TWAP values.
var Ether = decimal.New(1, 18)

var ErrDataUnavailable = errors.New("quote data unavailable")

// Provider answers price questions at a historical block. Implementations
// must be deterministic for a given block and wrap every lookup failure
// with ErrDataUnavailable.
type Provider interface {
	SpotPrice(ctx context.Context, pair Pair, block uint64) (float64, error)
	// TWAP returns the time-weighted price as an 18-decimal fixed-point integer.
	TWAP(ctx context.Context, pair Pair, window time.Duration, block uint64) (decimal.Decimal, error)
	// QuoteExactOutput returns the amount of sell needed to receive amountOut of buy.
	QuoteExactOutput(ctx context.Context, sell, buy Token, amountOut decimal.Decimal, block uint64) (decimal.Decimal, error)
	// QuoteExactInput returns the amount of buy received for amountIn of sell.
	QuoteExactInput(ctx context.Context, sell, buy Token, amountIn decimal.Decimal, block uint64) (decimal.Decimal, error)
}

type Chain interface {
	HeadBlock(ctx context.Context) (uint64, error)
	BlockTime(ctx context.Context, block uint64) (time.Time, error)
}

// FundingSource exposes the power-perp controller readings used for reporting.
type FundingSource interface {
	IndexPrice(ctx context.Context, block uint64) (decimal.Decimal, error)
	MarkPrice(ctx context.Context, block uint64) (decimal.Decimal, error)
	NormalizationFactor(ctx context.Context, block uint64) (decimal.Decimal, error)
}

type Market interface {
	Provider
	Chain
}

type Source interface {
	Provider
	Chain
	FundingSource
}

// Unavailable tags err as a data-availability failure for op.
func Unavailable(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, ErrDataUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrDataUnavailable, err)
}

func (t Token) Valid() bool {
	return t == TokenWETH || t == TokenOSQTH
}

func (p Pair) Valid() bool {
	return p == PairWETHUSDC || p == PairOSQTHWETH
}
