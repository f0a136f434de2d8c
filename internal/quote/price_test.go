package quote

import (
	"context"
	"errors"
	"math"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceFromSqrtX96(t *testing.T) {
	q96 := new(big.Int).Lsh(big.NewInt(1), 96)
	price, err := PriceFromSqrtX96(q96, 0)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, price, 1e-12)

	half := new(big.Int).Lsh(big.NewInt(1), 95)
	price, err = PriceFromSqrtX96(half, 0)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, price, 1e-12)

	price, err = PriceFromSqrtX96(half, 12)
	require.NoError(t, err)
	assert.InDelta(t, 4e12, price, 1)
}

func TestPriceFromSqrtX96Zero(t *testing.T) {
	_, err := PriceFromSqrtX96(big.NewInt(0), 0)
	require.ErrorIs(t, err, ErrDataUnavailable)
}

type fundingStub struct {
	index, mark decimal.Decimal
	err         error
}

func (f fundingStub) IndexPrice(context.Context, uint64) (decimal.Decimal, error) {
	return f.index, f.err
}

func (f fundingStub) MarkPrice(context.Context, uint64) (decimal.Decimal, error) {
	return f.mark, f.err
}

func (f fundingStub) NormalizationFactor(context.Context, uint64) (decimal.Decimal, error) {
	return decimal.NewFromInt(1), f.err
}

func TestImpliedFunding(t *testing.T) {
	ctx := context.Background()
	mark := decimal.NewFromFloat(3000 * math.Exp(0.175))
	src := fundingStub{index: decimal.NewFromInt(3000), mark: mark}

	got, err := ImpliedFunding(ctx, src, PoolLiquidityBlock+10)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, got, 1e-9)

	got, err = ImpliedFunding(ctx, src, PoolLiquidityBlock-1)
	require.NoError(t, err)
	assert.Zero(t, got)

	got, err = ImpliedFunding(ctx, fundingStub{index: decimal.Zero, mark: mark}, PoolLiquidityBlock)
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestImpliedFundingPropagatesErrors(t *testing.T) {
	src := fundingStub{err: Unavailable("index", errors.New("missing trie node"))}
	_, err := ImpliedFunding(context.Background(), src, PoolLiquidityBlock)
	require.ErrorIs(t, err, ErrDataUnavailable)
}

func TestUnavailableWrapsCause(t *testing.T) {
	cause := errors.New("execution reverted")
	err := Unavailable("slot0", cause)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "slot0")
}
