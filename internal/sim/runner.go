package sim

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"crab-rebase-sim/internal/alerts"
	"crab-rebase-sim/internal/config"
	"crab-rebase-sim/internal/metrics"
	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/report"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Notifier interface {
	NotifyFinished(ctx context.Context, summary alerts.Summary)
}

type RunnerDeps struct {
	Market   quote.Source
	Notifier Notifier
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

// Runner walks every strategy over the same blocks in lockstep. All
// strategies see block N before any sees block N+1.
type Runner struct {
	cfg        config.SimulationConfig
	market     quote.Source
	strategies []*Strategy
	notifier   Notifier
	metrics    *metrics.Metrics
	log        *zap.Logger
	rng        *rand.Rand
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

func NewRunner(cfg config.SimulationConfig, strategies []*Strategy, deps RunnerDeps) (*Runner, error) {
	if len(strategies) == 0 {
		return nil, errors.New("at least one strategy is required")
	}
	if deps.Market == nil {
		return nil, errors.New("market is required")
	}
	if cfg.InitialETH <= 0 {
		return nil, errors.New("initial eth must be positive")
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Runner{
		cfg:        cfg,
		market:     deps.Market,
		strategies: strategies,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		log:        deps.Log,
		rng:        rand.New(rand.NewSource(seed)),
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

// Run executes one pass, or passes forever in loop mode. Passes after the
// first always use a random start.
func (r *Runner) Run(ctx context.Context) error {
	random := r.cfg.RandomStart
	for {
		start := r.cfg.StartBlock
		if random {
			start = r.randomStart(start)
		}
		if _, err := r.Pass(ctx, start); err != nil {
			return err
		}
		if !r.cfg.Loop {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		random = true
	}
}

// Pass initializes (or resumes) every strategy at start, walks the blocks up
// to the end block and finishes each strategy there.
func (r *Runner) Pass(ctx context.Context, start uint64) ([]alerts.Summary, error) {
	end, err := r.endBlock(ctx)
	if err != nil {
		return nil, err
	}
	if start >= end {
		return nil, fmt.Errorf("start block %d is not before end block %d", start, end)
	}
	if err := r.initAll(ctx, start); err != nil {
		return nil, err
	}
	next := r.resumeBlock()
	first := next
	started := r.now()
	r.log.Info("pass started",
		zap.Uint64("start_block", start),
		zap.Uint64("next_block", next),
		zap.Uint64("end_block", end),
		zap.Int("strategies", len(r.strategies)),
	)

	for {
		for ; next < end; next++ {
			if err := r.step(ctx, next); err != nil {
				return nil, err
			}
			r.progress(first, next, end, started)
		}
		if r.cfg.EndBlock > 0 {
			break
		}
		head, err := r.market.HeadBlock(ctx)
		if err != nil {
			return nil, err
		}
		if head <= end {
			break
		}
		end = head
	}
	return r.finishAll(ctx, end)
}

func (r *Runner) initAll(ctx context.Context, start uint64) error {
	deposit := decimal.NewFromFloat(r.cfg.InitialETH).Shift(18).Truncate(0)
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range r.strategies {
		g.Go(func() error {
			if r.cfg.Resume {
				ok, err := s.Restore(gctx, start)
				if err != nil {
					return err
				}
				if ok {
					return nil
				}
			}
			return s.Init(gctx, deposit, start)
		})
	}
	return g.Wait()
}

func (r *Runner) endBlock(ctx context.Context) (uint64, error) {
	if r.cfg.EndBlock > 0 {
		return r.cfg.EndBlock, nil
	}
	return r.market.HeadBlock(ctx)
}

// resumeBlock is the first block some strategy has not evaluated yet.
func (r *Runner) resumeBlock() uint64 {
	next := r.strategies[0].LastBlock()
	for _, s := range r.strategies[1:] {
		if b := s.LastBlock(); b < next {
			next = b
		}
	}
	return next + 1
}

// step evaluates block for every strategy, retrying the whole block after
// a failure. Strategies that already passed the block skip it on retry.
func (r *Runner) step(ctx context.Context, block uint64) error {
	limit := r.cfg.MaxStepFailures
	if limit < 1 {
		limit = 1
	}
	for failures := 1; ; failures++ {
		err := r.evaluate(ctx, block)
		if err == nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		r.metrics.StepFailures.Inc()
		r.log.Warn("block step failed",
			zap.Uint64("block", block),
			zap.Int("failures", failures),
			zap.Error(err),
		)
		if failures >= limit {
			return fmt.Errorf("block %d failed %d times: %w", block, failures, err)
		}
		if err := r.sleep(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func (r *Runner) evaluate(ctx context.Context, block uint64) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range r.strategies {
		g.Go(func() error {
			return s.CheckAndRebase(gctx, block)
		})
	}
	return g.Wait()
}

func (r *Runner) finishAll(ctx context.Context, end uint64) ([]alerts.Summary, error) {
	summaries := make([]alerts.Summary, len(r.strategies))
	g, gctx := errgroup.WithContext(ctx)
	for i, s := range r.strategies {
		g.Go(func() error {
			final, err := s.Finish(gctx, end)
			if err != nil {
				return err
			}
			summaries[i] = alerts.Summary{
				Strategy:         s.Name(),
				StartBlock:       s.StartBlock(),
				EndBlock:         end,
				Rebases:          s.Rebases(),
				InitialValueUSDC: s.InitialValue(),
				FinalValueUSDC:   final.TotalValueUSDC,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if r.notifier != nil {
		for _, summary := range summaries {
			r.notifier.NotifyFinished(ctx, summary)
		}
	}
	return summaries, nil
}

func (r *Runner) progress(first, block, end uint64, started time.Time) {
	every := r.cfg.ProgressEvery
	if every == 0 {
		return
	}
	done := block - first + 1
	if done%every != 0 {
		return
	}
	elapsed := r.now().Sub(started)
	var eta time.Duration
	if remaining := end - block - 1; remaining > 0 {
		eta = time.Duration(float64(elapsed) / float64(done) * float64(remaining))
	}
	current := r.strategies[0].Current()
	r.log.Info("progress",
		zap.Uint64("block", block),
		zap.Uint64("end_block", end),
		zap.Uint64("blocks_done", done),
		zap.String("total_value_usdc", report.FormatEther(current.TotalValueUSDC)),
		zap.String("collateral_ratio", current.CollateralRatio.StringFixed(4)),
		zap.Float64("weth_price", current.WETHPrice),
		zap.Float64("osqth_eth_price", current.OSQTHETHPrice),
		zap.Duration("elapsed", elapsed.Round(time.Second)),
		zap.Duration("eta", eta.Round(time.Second)),
	)
}

// randomStart moves start forward by a random distance that keeps it below
// the configured maximum and the end block.
func (r *Runner) randomStart(start uint64) uint64 {
	limit := r.cfg.RandomMaxBlock
	if r.cfg.EndBlock > 0 && r.cfg.EndBlock < limit {
		limit = r.cfg.EndBlock
	}
	if limit <= start {
		return start
	}
	return start + uint64(r.rng.Int63n(int64(limit-start)))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
