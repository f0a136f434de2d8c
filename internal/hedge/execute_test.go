package hedge

import (
	"context"
	"testing"

	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/quote/quotetest"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quarterMarket() *quotetest.Market {
	return &quotetest.Market{ETHPrice: 2000, OSQTHPrice: 0.25, TWAPPrice: twapQuarter}
}

func fixedOutput(amount string) func(quote.Token, quote.Token, decimal.Decimal, uint64) (decimal.Decimal, error) {
	return func(quote.Token, quote.Token, decimal.Decimal, uint64) (decimal.Decimal, error) {
		return d(amount), nil
	}
}

func TestExecuteNoHedgeKeepsAmounts(t *testing.T) {
	market := quarterMarket()
	short, collateral := d("10000000000000000000"), d("5100000000000000000")

	res, err := Execute(context.Background(), market, 10, short, collateral, threshold, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoHedge, res.Outcome)
	assert.True(t, res.ShortAmount.Equal(short))
	assert.True(t, res.CollateralAmount.Equal(collateral))
	assert.True(t, res.UserInterest.IsZero())
	assert.Equal(t, 0, market.Calls("QuoteExactOutput"))
}

func TestExecuteSellingWithoutInterestAlwaysApplies(t *testing.T) {
	market := quarterMarket()
	var gotSell, gotBuy quote.Token
	var gotAmount decimal.Decimal
	market.OutputFunc = func(sell, buy quote.Token, amountOut decimal.Decimal, _ uint64) (decimal.Decimal, error) {
		gotSell, gotBuy, gotAmount = sell, buy, amountOut
		return d("4100000000000000000"), nil
	}

	res, err := Execute(context.Background(), market, 10, d("10000000000000000000"), d("6000000000000000000"), threshold, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, quote.TokenOSQTH, gotSell)
	assert.Equal(t, quote.TokenWETH, gotBuy)
	assert.Equal(t, "1000000000000000000", gotAmount.String())
	assert.Equal(t, "14000000000000000000", res.ShortAmount.String())
	assert.Equal(t, "7000000000000000000", res.CollateralAmount.String())
	assert.Equal(t, "-0.1", res.UserInterest.String())
	assert.True(t, res.Target.Selling)
}

func TestExecuteSellingWithInterestSkipsFavorableQuote(t *testing.T) {
	market := quarterMarket()
	market.OutputFunc = fixedOutput("4000000000000000000")
	short, collateral := d("10000000000000000000"), d("6000000000000000000")

	res, err := Execute(context.Background(), market, 10, short, collateral, threshold, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnfavorable, res.Outcome)
	assert.True(t, res.ShortAmount.Equal(short))
	assert.True(t, res.CollateralAmount.Equal(collateral))
	assert.True(t, res.UserInterest.IsZero())
}

func TestExecuteSellingWithInterestAppliesWhenQuoteBelowTarget(t *testing.T) {
	market := quarterMarket()
	market.OutputFunc = fixedOutput("3900000000000000000")

	res, err := Execute(context.Background(), market, 10, d("10000000000000000000"), d("6000000000000000000"), threshold, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "14000000000000000000", res.ShortAmount.String())
	assert.Equal(t, "-0.1", res.UserInterest.String())
}

func TestExecuteBuyingWithoutInterestAlwaysApplies(t *testing.T) {
	market := quarterMarket()
	var gotSell quote.Token
	var gotAmount decimal.Decimal
	market.OutputFunc = func(sell, _ quote.Token, amountOut decimal.Decimal, _ uint64) (decimal.Decimal, error) {
		gotSell, gotAmount = sell, amountOut
		return d("1100000000000000000"), nil
	}

	res, err := Execute(context.Background(), market, 10, d("10000000000000000000"), d("4000000000000000000"), threshold, false)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.False(t, res.Target.Selling)
	assert.Equal(t, quote.TokenWETH, gotSell)
	assert.Equal(t, "4000000000000000000", gotAmount.String())
	assert.Equal(t, "6000000000000000000", res.ShortAmount.String())
	assert.Equal(t, "3000000000000000000", res.CollateralAmount.String())
	assert.Equal(t, "0.1", res.UserInterest.String())
}

func TestExecuteBuyingWithInterestRequiresCheaperQuote(t *testing.T) {
	short, collateral := d("10000000000000000000"), d("4000000000000000000")

	market := quarterMarket()
	market.OutputFunc = fixedOutput("1000000000000000000")
	res, err := Execute(context.Background(), market, 10, short, collateral, threshold, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnfavorable, res.Outcome)
	assert.True(t, res.ShortAmount.Equal(short))

	market.OutputFunc = fixedOutput("900000000000000000")
	res, err = Execute(context.Background(), market, 10, short, collateral, threshold, true)
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, res.Outcome)
	assert.Equal(t, "6000000000000000000", res.ShortAmount.String())
	assert.Equal(t, "-0.1", res.UserInterest.String())
}

func TestExecuteNegativePosition(t *testing.T) {
	market := quarterMarket()
	_, err := Execute(context.Background(), market, 10, d("10000000000000000000"), d("2000000000000000000"), threshold, false)
	require.ErrorIs(t, err, ErrNegativePosition)
}

func TestExecutePropagatesQuoteErrors(t *testing.T) {
	market := quarterMarket()
	market.OutputFunc = func(quote.Token, quote.Token, decimal.Decimal, uint64) (decimal.Decimal, error) {
		return decimal.Zero, quote.Unavailable("quoter", nil)
	}
	_, err := Execute(context.Background(), market, 10, d("10000000000000000000"), d("6000000000000000000"), threshold, false)
	require.ErrorIs(t, err, quote.ErrDataUnavailable)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "applied", OutcomeApplied.String())
	assert.Equal(t, "no_hedge", OutcomeNoHedge.String())
	assert.Equal(t, "unfavorable", OutcomeUnfavorable.String())
	assert.Equal(t, "value_regression", OutcomeValueRegression.String())
}
