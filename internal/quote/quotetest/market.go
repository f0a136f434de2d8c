// Package quotetest provides a deterministic quote.Source for tests.
package quotetest

import (
	"context"
	"sync"
	"time"

	"crab-rebase-sim/internal/quote"

	"github.com/shopspring/decimal"
)

// BlockInterval is the spacing Market uses to derive block times.
const BlockInterval = 12 * time.Second

// Market answers every lookup from fixed prices unless a func override is
// set. Default swap quotes fill exactly at the oSQTH/WETH spot price.
type Market struct {
	ETHPrice   float64
	OSQTHPrice float64
	TWAPPrice  decimal.Decimal
	Index      decimal.Decimal
	Mark       decimal.Decimal
	NormFactor decimal.Decimal
	Head       uint64
	Genesis    time.Time

	SpotFunc   func(pair quote.Pair, block uint64) (float64, error)
	TWAPFunc   func(block uint64) (decimal.Decimal, error)
	OutputFunc func(sell, buy quote.Token, amountOut decimal.Decimal, block uint64) (decimal.Decimal, error)
	InputFunc  func(sell, buy quote.Token, amountIn decimal.Decimal, block uint64) (decimal.Decimal, error)
	HeadFunc   func() (uint64, error)

	mu    sync.Mutex
	calls map[string]int
}

func (m *Market) record(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[name]++
}

// Calls reports how many times the named method was invoked.
func (m *Market) Calls(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[name]
}

func (m *Market) SpotPrice(_ context.Context, pair quote.Pair, block uint64) (float64, error) {
	m.record("SpotPrice")
	if m.SpotFunc != nil {
		return m.SpotFunc(pair, block)
	}
	switch pair {
	case quote.PairWETHUSDC:
		return m.ETHPrice, nil
	case quote.PairOSQTHWETH:
		return m.OSQTHPrice, nil
	}
	return 0, quote.Unavailable("spot "+string(pair), nil)
}

func (m *Market) TWAP(_ context.Context, _ quote.Pair, _ time.Duration, block uint64) (decimal.Decimal, error) {
	m.record("TWAP")
	if m.TWAPFunc != nil {
		return m.TWAPFunc(block)
	}
	return m.TWAPPrice, nil
}

func (m *Market) QuoteExactOutput(_ context.Context, sell, buy quote.Token, amountOut decimal.Decimal, block uint64) (decimal.Decimal, error) {
	m.record("QuoteExactOutput")
	if m.OutputFunc != nil {
		return m.OutputFunc(sell, buy, amountOut, block)
	}
	price := decimal.NewFromFloat(m.OSQTHPrice)
	if sell == quote.TokenWETH {
		return amountOut.Mul(price).Truncate(0), nil
	}
	if price.IsZero() {
		return decimal.Zero, quote.Unavailable("exact output", nil)
	}
	return amountOut.DivRound(price, 18).Truncate(0), nil
}

func (m *Market) QuoteExactInput(_ context.Context, sell, buy quote.Token, amountIn decimal.Decimal, block uint64) (decimal.Decimal, error) {
	m.record("QuoteExactInput")
	if m.InputFunc != nil {
		return m.InputFunc(sell, buy, amountIn, block)
	}
	price := decimal.NewFromFloat(m.OSQTHPrice)
	if sell == quote.TokenOSQTH {
		return amountIn.Mul(price).Truncate(0), nil
	}
	if price.IsZero() {
		return decimal.Zero, quote.Unavailable("exact input", nil)
	}
	return amountIn.DivRound(price, 18).Truncate(0), nil
}

func (m *Market) IndexPrice(context.Context, uint64) (decimal.Decimal, error) {
	m.record("IndexPrice")
	return m.Index, nil
}

func (m *Market) MarkPrice(context.Context, uint64) (decimal.Decimal, error) {
	m.record("MarkPrice")
	return m.Mark, nil
}

func (m *Market) NormalizationFactor(context.Context, uint64) (decimal.Decimal, error) {
	m.record("NormalizationFactor")
	return m.NormFactor, nil
}

func (m *Market) HeadBlock(context.Context) (uint64, error) {
	m.record("HeadBlock")
	if m.HeadFunc != nil {
		return m.HeadFunc()
	}
	return m.Head, nil
}

func (m *Market) BlockTime(_ context.Context, block uint64) (time.Time, error) {
	m.record("BlockTime")
	genesis := m.Genesis
	if genesis.IsZero() {
		genesis = time.Unix(1_600_000_000, 0).UTC()
	}
	return genesis.Add(time.Duration(block) * BlockInterval), nil
}
