package sim

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hundredEth = d("100000000000000000000")

func TestSizeInitialConvergesWithinTolerance(t *testing.T) {
	market := quarterMarket()

	size, err := SizeInitial(context.Background(), market, hundredEth, 14011134)
	require.NoError(t, err)

	// A fill at spot returns half the collateral, so the borrow converges to
	// just under the deposit.
	assert.True(t, size.Borrow.LessThan(hundredEth), "borrow %s", size.Borrow)
	assert.True(t, size.Borrow.GreaterThanOrEqual(hundredEth.Mul(d("0.9998"))), "borrow %s", size.Borrow)
	assert.True(t, size.Collateral.Equal(hundredEth.Add(size.Borrow)))
	assert.True(t, size.Short.Equal(size.Collateral.Mul(decimal.NewFromInt(2)).Round(0)), "short %s", size.Short)
	assert.Less(t, size.Iterations, maxBisectIterations)
	assert.Equal(t, size.Iterations, market.Calls("QuoteExactInput"))
}

func TestSizeInitialStopsWhenQuoteStalls(t *testing.T) {
	market := quarterMarket()
	market.InputFunc = func(quote.Token, quote.Token, decimal.Decimal, uint64) (decimal.Decimal, error) {
		return d("1"), nil
	}

	size, err := SizeInitial(context.Background(), market, hundredEth, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, size.Iterations)
}

func TestSizeInitialRejectsBadInputs(t *testing.T) {
	_, err := SizeInitial(context.Background(), quarterMarket(), decimal.Zero, 1)
	assert.ErrorIs(t, err, ErrInvalidDeposit)

	market := quarterMarket()
	market.OSQTHPrice = 0
	_, err = SizeInitial(context.Background(), market, hundredEth, 1)
	assert.ErrorIs(t, err, vault.ErrDivisionByZero)
}

func TestSizeInitialPropagatesQuoteErrors(t *testing.T) {
	market := quarterMarket()
	market.InputFunc = func(quote.Token, quote.Token, decimal.Decimal, uint64) (decimal.Decimal, error) {
		return decimal.Zero, quote.Unavailable("quoter", errors.New("reverted"))
	}
	_, err := SizeInitial(context.Background(), market, hundredEth, 1)
	assert.ErrorIs(t, err, quote.ErrDataUnavailable)
}

func TestInitialVault(t *testing.T) {
	market := quarterMarket()
	market.Index = d("100")
	market.Mark = d("105")
	market.NormFactor = d("500000000000000000")
	block := uint64(14011134)

	status, err := InitialVault(context.Background(), market, hundredEth, block)
	require.NoError(t, err)

	assert.Equal(t, block, status.BlockNumber)
	assert.Equal(t, time.Unix(1_600_000_000, 0).UTC().Add(time.Duration(block)*12*time.Second), status.Timestamp)
	assert.Equal(t, ReasonInitial, status.Reason)
	assert.True(t, status.TWAPOSQTHPrice.Equal(twapQuarter))
	assert.True(t, status.PrevCollateralRatio.IsZero())
	assert.True(t, status.UserInterest.IsZero())

	cr, _ := status.CollateralRatio.Float64()
	assert.InDelta(t, 2.0, cr, 1e-9)
	assert.Equal(t, 2000.0, status.WETHPrice)
	assert.Equal(t, 0.25, status.OSQTHETHPrice)
	assert.Equal(t, 500.0, status.OSQTHUSDCPrice)

	collateral, _ := status.CollateralAmount.Shift(-18).Float64()
	value, _ := status.TotalValueUSDC.Shift(-18).Float64()
	assert.InDelta(t, collateral*1000, value, 1e-6)

	assert.InDelta(t, math.Log(1.05)/17.5*100, status.CurrentImpliedFunding, 1e-12)
	assert.Equal(t, 0.5, status.NormalizationFactor)
}

func TestInitialVaultBeforePoolLiquidityHasNoFunding(t *testing.T) {
	market := quarterMarket()
	market.Index = d("100")
	market.Mark = d("105")

	status, err := InitialVault(context.Background(), market, hundredEth, quote.PoolLiquidityBlock-1)
	require.NoError(t, err)
	assert.Zero(t, status.CurrentImpliedFunding)
	assert.Zero(t, market.Calls("IndexPrice"))
}
