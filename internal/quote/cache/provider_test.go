package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"crab-rebase-sim/internal/metrics"
	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/quote/quotetest"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingCounter struct{ n int }

func (c *countingCounter) Inc() { c.n++ }

func newMarket() *quotetest.Market {
	return &quotetest.Market{
		ETHPrice:   2000,
		OSQTHPrice: 0.25,
		TWAPPrice:  decimal.RequireFromString("250000000000000000"),
		Index:      decimal.NewFromInt(3000),
		Mark:       decimal.NewFromInt(3100),
		NormFactor: decimal.RequireFromString("900000000000000000"),
		Head:       100,
	}
}

func TestProviderCachesByBlock(t *testing.T) {
	ctx := context.Background()
	market := newMarket()
	hits, misses := &countingCounter{}, &countingCounter{}
	m := metrics.NewNoop()
	m.QuoteCacheHits = hits
	m.QuoteCacheMisses = misses
	p := New(market, NewMemory(), nil, m)

	for i := 0; i < 3; i++ {
		price, err := p.SpotPrice(ctx, quote.PairWETHUSDC, 10)
		require.NoError(t, err)
		assert.Equal(t, 2000.0, price)
	}
	_, err := p.SpotPrice(ctx, quote.PairWETHUSDC, 11)
	require.NoError(t, err)

	assert.Equal(t, 2, market.Calls("SpotPrice"))
	assert.Equal(t, 2, hits.n)
	assert.Equal(t, 2, misses.n)
}

func TestProviderCachesDecimalsAndTimes(t *testing.T) {
	ctx := context.Background()
	market := newMarket()
	p := New(market, NewMemory(), nil, nil)
	amount := decimal.RequireFromString("1000000000000000000")

	for i := 0; i < 2; i++ {
		twap, err := p.TWAP(ctx, quote.PairOSQTHWETH, quote.DefaultTWAPWindow, 5)
		require.NoError(t, err)
		assert.True(t, twap.Equal(market.TWAPPrice))

		cost, err := p.QuoteExactOutput(ctx, quote.TokenWETH, quote.TokenOSQTH, amount, 5)
		require.NoError(t, err)
		assert.Equal(t, "250000000000000000", cost.String())

		out, err := p.QuoteExactInput(ctx, quote.TokenOSQTH, quote.TokenWETH, amount, 5)
		require.NoError(t, err)
		assert.Equal(t, "250000000000000000", out.String())

		ts, err := p.BlockTime(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, time.Unix(1_600_000_060, 0).UTC(), ts)

		index, err := p.IndexPrice(ctx, 5)
		require.NoError(t, err)
		assert.Equal(t, "3000", index.String())
		_, err = p.MarkPrice(ctx, 5)
		require.NoError(t, err)
		_, err = p.NormalizationFactor(ctx, 5)
		require.NoError(t, err)
	}

	for _, name := range []string{"TWAP", "QuoteExactOutput", "QuoteExactInput", "BlockTime", "IndexPrice", "MarkPrice", "NormalizationFactor"} {
		assert.Equal(t, 1, market.Calls(name), name)
	}
}

func TestProviderKeysQuotesByDirection(t *testing.T) {
	ctx := context.Background()
	market := newMarket()
	p := New(market, NewMemory(), nil, nil)
	amount := decimal.NewFromInt(1000)

	buy, err := p.QuoteExactOutput(ctx, quote.TokenWETH, quote.TokenOSQTH, amount, 1)
	require.NoError(t, err)
	sell, err := p.QuoteExactOutput(ctx, quote.TokenOSQTH, quote.TokenWETH, amount, 1)
	require.NoError(t, err)
	assert.False(t, buy.Equal(sell))
	assert.Equal(t, 2, market.Calls("QuoteExactOutput"))
}

func TestProviderDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	market := newMarket()
	fail := true
	market.SpotFunc = func(quote.Pair, uint64) (float64, error) {
		if fail {
			return 0, quote.Unavailable("slot0", nil)
		}
		return 1, nil
	}
	store := NewMemory()
	p := New(market, store, nil, nil)

	_, err := p.SpotPrice(ctx, quote.PairOSQTHWETH, 1)
	require.ErrorIs(t, err, quote.ErrDataUnavailable)
	assert.Equal(t, 0, store.Len())

	fail = false
	price, err := p.SpotPrice(ctx, quote.PairOSQTHWETH, 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, price)
}

func TestProviderHeadBlockBypassesCache(t *testing.T) {
	market := newMarket()
	p := New(market, NewMemory(), nil, nil)
	for i := 0; i < 3; i++ {
		head, err := p.HeadBlock(context.Background())
		require.NoError(t, err)
		assert.Equal(t, uint64(100), head)
	}
	assert.Equal(t, 3, market.Calls("HeadBlock"))
}

func TestProviderFallsThroughOnStoreErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	market := newMarket()
	p := New(market, NewRedis(db, "", 0), nil, nil)

	mock.ExpectGet("spot:WETH/USDC:7").SetErr(errors.New("connection reset"))
	mock.ExpectSet("spot:WETH/USDC:7", "2000", 0).SetErr(errors.New("connection reset"))

	price, err := p.SpotPrice(context.Background(), quote.PairWETHUSDC, 7)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, price)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderReadsRedisHits(t *testing.T) {
	db, mock := redismock.NewClientMock()
	market := newMarket()
	p := New(market, NewRedis(db, "", 0), nil, nil)

	mock.ExpectGet("twap:oSQTH/WETH:420:9").SetVal("123")
	twap, err := p.TWAP(context.Background(), quote.PairOSQTHWETH, quote.DefaultTWAPWindow, 9)
	require.NoError(t, err)
	assert.Equal(t, "123", twap.String())
	assert.Equal(t, 0, market.Calls("TWAP"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProviderRefetchesCorruptEntries(t *testing.T) {
	ctx := context.Background()
	market := newMarket()
	store := NewMemory()
	require.NoError(t, store.Set(ctx, "spot:WETH/USDC:3", "not-a-number"))
	p := New(market, store, nil, nil)

	price, err := p.SpotPrice(ctx, quote.PairWETHUSDC, 3)
	require.NoError(t, err)
	assert.Equal(t, 2000.0, price)
	v, _, _ := store.Get(ctx, "spot:WETH/USDC:3")
	assert.Equal(t, "2000", v)
}
