package quote

import (
	"context"
	"errors"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

const (
	FundingPeriodDays = 17.5
	// PoolLiquidityBlock is the first block with oSQTH/WETH liquidity.
	PoolLiquidityBlock = 13982691

	sqrtPricePrecision = 36
)

var q192 = decimal.NewFromBigInt(new(big.Int).Lsh(big.NewInt(1), 192), 0)

// PriceFromSqrtX96 converts a Uniswap V3 sqrtPriceX96 into the price of
// token1 in token0 units, shifted by the token decimal difference.
func PriceFromSqrtX96(sqrtPriceX96 *big.Int, decimalsDiff int32) (float64, error) {
	if sqrtPriceX96 == nil || sqrtPriceX96.Sign() <= 0 {
		return 0, Unavailable("sqrt price", errors.New("sqrtPriceX96 is zero"))
	}
	sqrt := decimal.NewFromBigInt(sqrtPriceX96, 0)
	price := q192.DivRound(sqrt.Mul(sqrt), sqrtPricePrecision).Shift(decimalsDiff)
	f, _ := price.Float64()
	return f, nil
}

// ImpliedFunding returns the daily implied funding ln(mark/index)/17.5.
// Blocks before pool liquidity and a zero index report no funding.
func ImpliedFunding(ctx context.Context, src FundingSource, block uint64) (float64, error) {
	if block < PoolLiquidityBlock {
		return 0, nil
	}
	index, err := src.IndexPrice(ctx, block)
	if err != nil {
		return 0, err
	}
	if index.IsZero() {
		return 0, nil
	}
	mark, err := src.MarkPrice(ctx, block)
	if err != nil {
		return 0, err
	}
	ratio, _ := mark.Div(index).Float64()
	if ratio <= 0 {
		return 0, nil
	}
	return math.Log(ratio) / FundingPeriodDays, nil
}
