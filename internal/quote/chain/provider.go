// Package chain reads historical prices and quotes from an Ethereum archive
// node over JSON-RPC.
package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"crab-rebase-sim/internal/quote"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type Backend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	Addresses         Addresses
}

type Provider struct {
	backend Backend
	closer  func()
	log     *zap.Logger
	addrs   Addresses
	timeout time.Duration
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func Dial(ctx context.Context, url string, opts Options, log *zap.Logger) (*Provider, error) {
	if url == "" {
		return nil, errors.New("rpc url is required")
	}
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, err
	}
	p := New(client, opts, log)
	p.closer = client.Close
	return p, nil
}

func New(backend Backend, opts Options, log *zap.Logger) *Provider {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Addresses == (Addresses{}) {
		opts.Addresses = Mainnet
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Provider{
		backend: backend,
		log:     log,
		addrs:   opts.Addresses,
		timeout: opts.Timeout,
		limiter: rate.NewLimiter(limit, burst),
		breaker: newBreaker(log),
	}
}

func newBreaker(log *zap.Logger) *gobreaker.CircuitBreaker {
	st := gobreaker.Settings{
		Name:     "eth-rpc",
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
	}
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		return counts.ConsecutiveFailures >= 5
	}
	st.IsSuccessful = func(err error) bool {
		// A revert is an answer from a healthy node.
		return err == nil || isRevert(err)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		log.Warn("rpc breaker state changed", zap.String("breaker", name), zap.String("from", from.String()), zap.String("to", to.String()))
	}
	return gobreaker.NewCircuitBreaker(st)
}

func (p *Provider) Close() {
	if p.closer != nil {
		p.closer()
	}
}

func (p *Provider) SpotPrice(ctx context.Context, pair quote.Pair, block uint64) (float64, error) {
	ref, ok := p.addrs.pool(pair)
	if !ok {
		return 0, fmt.Errorf("unknown pair %q", pair)
	}
	out, err := p.call(ctx, "slot0", ref.pool, poolABI, "slot0", block)
	if err != nil {
		return 0, err
	}
	sqrt, err := bigOutput("slot0", out)
	if err != nil {
		return 0, err
	}
	return quote.PriceFromSqrtX96(sqrt, ref.decimalsDiff)
}

func (p *Provider) TWAP(ctx context.Context, pair quote.Pair, window time.Duration, block uint64) (decimal.Decimal, error) {
	ref, ok := p.addrs.pool(pair)
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown pair %q", pair)
	}
	if window <= 0 {
		window = quote.DefaultTWAPWindow
	}
	period := uint32(window / time.Second)
	out, err := p.call(ctx, "getTwap", p.addrs.Oracle, oracleABI, "getTwap", block, ref.pool, ref.base, ref.quote, period, true)
	if err != nil {
		return decimal.Zero, err
	}
	return decimalOutput("getTwap", out)
}

func (p *Provider) QuoteExactOutput(ctx context.Context, sell, buy quote.Token, amountOut decimal.Decimal, block uint64) (decimal.Decimal, error) {
	return p.quoteSingle(ctx, "quoteExactOutputSingle", sell, buy, amountOut, block)
}

func (p *Provider) QuoteExactInput(ctx context.Context, sell, buy quote.Token, amountIn decimal.Decimal, block uint64) (decimal.Decimal, error) {
	return p.quoteSingle(ctx, "quoteExactInputSingle", sell, buy, amountIn, block)
}

func (p *Provider) quoteSingle(ctx context.Context, method string, sell, buy quote.Token, amount decimal.Decimal, block uint64) (decimal.Decimal, error) {
	tokenIn, ok := p.addrs.token(sell)
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown token %q", sell)
	}
	tokenOut, ok := p.addrs.token(buy)
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown token %q", buy)
	}
	if amount.Sign() < 0 {
		return decimal.Zero, fmt.Errorf("%s amount must be >= 0, got %s", method, amount)
	}
	out, err := p.call(ctx, method, p.addrs.Quoter, quoterABI, method, block, tokenIn, tokenOut, poolFeeBig, amount.Truncate(0).BigInt(), noPriceLimit)
	if err != nil {
		return decimal.Zero, err
	}
	return decimalOutput(method, out)
}

func (p *Provider) IndexPrice(ctx context.Context, block uint64) (decimal.Decimal, error) {
	out, err := p.call(ctx, "getIndex", p.addrs.Controller, controllerABI, "getIndex", block, uint32(indexPeriod))
	if err != nil {
		return decimal.Zero, err
	}
	return decimalOutput("getIndex", out)
}

func (p *Provider) MarkPrice(ctx context.Context, block uint64) (decimal.Decimal, error) {
	out, err := p.call(ctx, "getDenormalizedMark", p.addrs.Controller, controllerABI, "getDenormalizedMark", block, uint32(indexPeriod))
	if err != nil {
		return decimal.Zero, err
	}
	return decimalOutput("getDenormalizedMark", out)
}

func (p *Provider) NormalizationFactor(ctx context.Context, block uint64) (decimal.Decimal, error) {
	out, err := p.call(ctx, "getExpectedNormalizationFactor", p.addrs.Controller, controllerABI, "getExpectedNormalizationFactor", block)
	if err != nil {
		return decimal.Zero, err
	}
	return decimalOutput("getExpectedNormalizationFactor", out)
}

func (p *Provider) HeadBlock(ctx context.Context) (uint64, error) {
	v, err := p.guard(ctx, func(ctx context.Context) (any, error) {
		return p.backend.BlockNumber(ctx)
	})
	if err != nil {
		return 0, p.failure(ctx, "block number", err)
	}
	return v.(uint64), nil
}

func (p *Provider) BlockTime(ctx context.Context, block uint64) (time.Time, error) {
	v, err := p.guard(ctx, func(ctx context.Context) (any, error) {
		return p.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(block))
	})
	if err != nil {
		return time.Time{}, p.failure(ctx, fmt.Sprintf("header %d", block), err)
	}
	header, _ := v.(*types.Header)
	if header == nil {
		return time.Time{}, quote.Unavailable(fmt.Sprintf("header %d", block), errors.New("header not found"))
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

func (p *Provider) call(ctx context.Context, op string, to common.Address, parsed abi.ABI, method string, block uint64, args ...any) ([]any, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	v, err := p.guard(ctx, func(ctx context.Context) (any, error) {
		return p.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, new(big.Int).SetUint64(block))
	})
	if err != nil {
		return nil, p.failure(ctx, fmt.Sprintf("%s at %d", op, block), err)
	}
	raw, _ := v.([]byte)
	if len(raw) == 0 {
		return nil, quote.Unavailable(fmt.Sprintf("%s at %d", op, block), errors.New("empty call result"))
	}
	out, err := parsed.Unpack(method, raw)
	if err != nil {
		return nil, quote.Unavailable(fmt.Sprintf("%s at %d", op, block), err)
	}
	return out, nil
}

func (p *Provider) guard(ctx context.Context, fn func(context.Context) (any, error)) (any, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.breaker.Execute(func() (any, error) {
		return fn(callCtx)
	})
}

func (p *Provider) failure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	p.log.Debug("rpc call failed", zap.String("op", op), zap.Error(err))
	return quote.Unavailable(op, err)
}

func bigOutput(method string, out []any) (*big.Int, error) {
	if len(out) == 0 {
		return nil, quote.Unavailable(method, errors.New("no outputs"))
	}
	v, ok := out[0].(*big.Int)
	if !ok || v == nil {
		return nil, quote.Unavailable(method, fmt.Errorf("unexpected output type %T", out[0]))
	}
	return v, nil
}

func decimalOutput(method string, out []any) (decimal.Decimal, error) {
	v, err := bigOutput(method, out)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromBigInt(v, 0), nil
}

func isRevert(err error) bool {
	var dataErr interface{ ErrorData() interface{} }
	if errors.As(err, &dataErr) {
		return true
	}
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "missing trie node")
}
