package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"crab-rebase-sim/internal/metrics"
	"crab-rebase-sim/internal/quote"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Provider decorates a quote.Source with a Store. Only successful answers are
// cached; HeadBlock always reaches the wrapped source.
type Provider struct {
	next    quote.Source
	store   Store
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(next quote.Source, store Store, log *zap.Logger, m *metrics.Metrics) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNoop()
	}
	return &Provider{next: next, store: store, log: log, metrics: m}
}

func (p *Provider) SpotPrice(ctx context.Context, pair quote.Pair, block uint64) (float64, error) {
	key := fmt.Sprintf("spot:%s:%d", pair, block)
	return lookup(ctx, p, key, formatFloat, parseFloat, func() (float64, error) {
		return p.next.SpotPrice(ctx, pair, block)
	})
}

func (p *Provider) TWAP(ctx context.Context, pair quote.Pair, window time.Duration, block uint64) (decimal.Decimal, error) {
	key := fmt.Sprintf("twap:%s:%d:%d", pair, int64(window/time.Second), block)
	return lookup(ctx, p, key, formatDecimal, decimal.NewFromString, func() (decimal.Decimal, error) {
		return p.next.TWAP(ctx, pair, window, block)
	})
}

func (p *Provider) QuoteExactOutput(ctx context.Context, sell, buy quote.Token, amountOut decimal.Decimal, block uint64) (decimal.Decimal, error) {
	key := fmt.Sprintf("out:%s:%s:%s:%d", sell, buy, amountOut.Truncate(0).String(), block)
	return lookup(ctx, p, key, formatDecimal, decimal.NewFromString, func() (decimal.Decimal, error) {
		return p.next.QuoteExactOutput(ctx, sell, buy, amountOut, block)
	})
}

func (p *Provider) QuoteExactInput(ctx context.Context, sell, buy quote.Token, amountIn decimal.Decimal, block uint64) (decimal.Decimal, error) {
	key := fmt.Sprintf("in:%s:%s:%s:%d", sell, buy, amountIn.Truncate(0).String(), block)
	return lookup(ctx, p, key, formatDecimal, decimal.NewFromString, func() (decimal.Decimal, error) {
		return p.next.QuoteExactInput(ctx, sell, buy, amountIn, block)
	})
}

func (p *Provider) IndexPrice(ctx context.Context, block uint64) (decimal.Decimal, error) {
	return lookup(ctx, p, fmt.Sprintf("index:%d", block), formatDecimal, decimal.NewFromString, func() (decimal.Decimal, error) {
		return p.next.IndexPrice(ctx, block)
	})
}

func (p *Provider) MarkPrice(ctx context.Context, block uint64) (decimal.Decimal, error) {
	return lookup(ctx, p, fmt.Sprintf("mark:%d", block), formatDecimal, decimal.NewFromString, func() (decimal.Decimal, error) {
		return p.next.MarkPrice(ctx, block)
	})
}

func (p *Provider) NormalizationFactor(ctx context.Context, block uint64) (decimal.Decimal, error) {
	return lookup(ctx, p, fmt.Sprintf("nf:%d", block), formatDecimal, decimal.NewFromString, func() (decimal.Decimal, error) {
		return p.next.NormalizationFactor(ctx, block)
	})
}

func (p *Provider) BlockTime(ctx context.Context, block uint64) (time.Time, error) {
	return lookup(ctx, p, fmt.Sprintf("time:%d", block), formatUnix, parseUnix, func() (time.Time, error) {
		return p.next.BlockTime(ctx, block)
	})
}

func (p *Provider) HeadBlock(ctx context.Context) (uint64, error) {
	return p.next.HeadBlock(ctx)
}

func lookup[T any](ctx context.Context, p *Provider, key string, encode func(T) string, decode func(string) (T, error), load func() (T, error)) (T, error) {
	raw, ok, err := p.store.Get(ctx, key)
	if err != nil {
		p.log.Warn("quote cache read failed", zap.String("key", key), zap.Error(err))
	}
	if ok {
		v, err := decode(raw)
		if err == nil {
			p.metrics.QuoteCacheHits.Inc()
			return v, nil
		}
		p.log.Warn("quote cache entry corrupt", zap.String("key", key), zap.Error(err))
	}
	p.metrics.QuoteCacheMisses.Inc()
	v, err := load()
	if err != nil {
		return v, err
	}
	if err := p.store.Set(ctx, key, encode(v)); err != nil {
		p.log.Warn("quote cache write failed", zap.String("key", key), zap.Error(err))
	}
	return v, nil
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

func parseFloat(s string) (float64, error) { return strconv.ParseFloat(s, 64) }

func formatDecimal(v decimal.Decimal) string { return v.String() }

func formatUnix(t time.Time) string { return strconv.FormatInt(t.Unix(), 10) }

func parseUnix(s string) (time.Time, error) {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
