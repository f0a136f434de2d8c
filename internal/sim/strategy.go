package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"crab-rebase-sim/internal/hedge"
	"crab-rebase-sim/internal/metrics"
	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/report"
	"crab-rebase-sim/internal/state"
	"crab-rebase-sim/internal/trigger"
	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type StrategyConfig struct {
	Name            string
	Threshold       decimal.Decimal
	Trigger         trigger.Condition
	IncludeInterest bool
	CheckValue      bool
}

// Strategy owns the snapshot history of one named configuration for the
// current pass. CheckAndRebase is safe to call concurrently with other
// strategies but not with itself.
type Strategy struct {
	cfg      StrategyConfig
	market   quote.Source
	rebaser  hedge.Rebaser
	recorder report.Recorder
	store    state.Store
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time

	mu           sync.Mutex
	history      *vault.History
	startBlock   uint64
	lastBlock    uint64
	rebases      int
	initialValue decimal.Decimal
	// recordedBlock is the block of the last rebase row written, so a retry
	// after a failed checkpoint does not write it twice.
	recordedBlock uint64
}

type StrategyDeps struct {
	Market   quote.Source
	Recorder report.Recorder
	Store    state.Store
	Metrics  *metrics.Metrics
	Log      *zap.Logger
}

func NewStrategy(cfg StrategyConfig, deps StrategyDeps) (*Strategy, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("strategy name is required")
	}
	if cfg.Trigger == nil {
		return nil, fmt.Errorf("strategy %s: trigger is required", cfg.Name)
	}
	if deps.Market == nil {
		return nil, fmt.Errorf("strategy %s: market is required", cfg.Name)
	}
	if deps.Recorder == nil {
		deps.Recorder = report.Fanout{}
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Strategy{
		cfg:    cfg,
		market: deps.Market,
		rebaser: hedge.Rebaser{
			Market:          deps.Market,
			Threshold:       cfg.Threshold,
			IncludeInterest: cfg.IncludeInterest,
		},
		recorder: deps.Recorder,
		store:    deps.Store,
		metrics:  deps.Metrics,
		log:      deps.Log.With(zap.String("strategy", cfg.Name)),
		now:      time.Now,
	}, nil
}

func (s *Strategy) Name() string {
	return s.cfg.Name
}

// Init opens a fresh vault for deposit wei at block and records it.
func (s *Strategy) Init(ctx context.Context, deposit decimal.Decimal, block uint64) error {
	status, err := InitialVault(ctx, s.market, deposit, block)
	if err != nil {
		return fmt.Errorf("init %s at block %d: %w", s.cfg.Name, block, err)
	}
	history, err := vault.NewHistory(status)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = history
	s.startBlock = block
	s.lastBlock = block
	s.rebases = 0
	s.recordedBlock = 0
	s.initialValue = status.TotalValueUSDC

	if err := s.recorder.Record(ctx, s.row(report.KindInitial, status)); err != nil {
		return fmt.Errorf("record initial %s: %w", s.cfg.Name, err)
	}
	s.log.Info("strategy initialized",
		zap.Uint64("block", block),
		zap.String("short", report.FormatEther(status.ShortAmount)),
		zap.String("collateral", report.FormatEther(status.CollateralAmount)),
		zap.String("collateral_ratio", status.CollateralRatio.StringFixed(4)),
	)
	current, _ := s.history.Last()
	return s.saveCheckpoint(ctx, current, s.lastBlock, s.rebases)
}

// Restore resumes a pass from its checkpoint. It reports false when no
// checkpoint exists for startBlock.
func (s *Strategy) Restore(ctx context.Context, startBlock uint64) (bool, error) {
	cp, ok, err := state.LoadCheckpoint(ctx, s.store, s.cfg.Name, startBlock)
	if err != nil || !ok {
		return false, err
	}
	history, err := vault.NewHistory(cp.Status)
	if err != nil {
		return false, fmt.Errorf("restore %s: %w", s.cfg.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = history
	s.startBlock = cp.StartBlock
	s.lastBlock = cp.LastBlock
	s.rebases = cp.Rebases
	s.recordedBlock = 0
	s.initialValue = cp.InitialValueUSDC
	s.log.Info("strategy resumed",
		zap.Uint64("start_block", cp.StartBlock),
		zap.Uint64("last_block", cp.LastBlock),
		zap.Int("rebases", cp.Rebases),
	)
	return true, nil
}

func (s *Strategy) Current() vault.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return vault.Status{}
	}
	last, _ := s.history.Last()
	return last
}

func (s *Strategy) LastBlock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastBlock
}

func (s *Strategy) Rebases() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebases
}

// Snapshots returns the pass history in append order.
func (s *Strategy) Snapshots() []vault.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return nil
	}
	return s.history.Snapshots()
}

// CheckAndRebase evaluates the trigger at block and rebases when it fires.
// A block at or before the last evaluated one is skipped, so a driver may
// retry a failed block across every strategy.
func (s *Strategy) CheckAndRebase(ctx context.Context, block uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return fmt.Errorf("strategy %s is not initialized", s.cfg.Name)
	}
	if block <= s.lastBlock {
		return nil
	}
	current, _ := s.history.Last()

	decision, err := s.cfg.Trigger.Evaluate(ctx, s.market, block, current)
	if err != nil {
		return fmt.Errorf("%s trigger: %w", s.cfg.Name, err)
	}
	s.metrics.BlocksEvaluated.Inc()
	if !decision.Triggered {
		s.lastBlock = block
		return nil
	}
	s.metrics.RebasesTriggered.Inc()

	checkValue := s.cfg.CheckValue && decision.Reason == trigger.ReasonOpportunisticPrice
	next, outcome, err := s.rebaser.Rebase(ctx, current, block, checkValue)
	if err != nil {
		return fmt.Errorf("%s rebase: %w", s.cfg.Name, err)
	}
	s.countOutcome(outcome)
	if next.ShortAmount.Equal(current.ShortAmount) {
		s.log.Debug("rebase left position unchanged",
			zap.Uint64("block", block),
			zap.String("reason", decision.Reason),
			zap.Stringer("outcome", outcome),
		)
		s.lastBlock = block
		return nil
	}

	next.Reason = decision.Reason
	if err := annotateFunding(ctx, s.market, &next, block); err != nil {
		return fmt.Errorf("%s funding: %w", s.cfg.Name, err)
	}
	if err := s.commit(ctx, next, block); err != nil {
		return err
	}
	s.log.Info("rebased",
		zap.Uint64("block", block),
		zap.String("reason", decision.Reason),
		zap.String("collateral_ratio", next.CollateralRatio.StringFixed(4)),
		zap.String("prev_collateral_ratio", next.PrevCollateralRatio.StringFixed(4)),
		zap.String("total_value_usdc", report.FormatEther(next.TotalValueUSDC)),
		zap.String("user_interest", next.UserInterest.String()),
	)
	return nil
}

// commit writes the rebased snapshot and its checkpoint before adding it to
// the history. Until both succeed block stays unevaluated, so a retry of the
// same block produces the row again.
func (s *Strategy) commit(ctx context.Context, next vault.Status, block uint64) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("%s rebase result: %w", s.cfg.Name, err)
	}
	rebases := s.rebases + 1
	if s.recordedBlock != block {
		row := s.row(report.KindRebase, next)
		row.Rebases = rebases
		if err := s.recorder.Record(ctx, row); err != nil {
			return fmt.Errorf("record %s: %w", s.cfg.Name, err)
		}
		s.recordedBlock = block
	}
	if err := s.saveCheckpoint(ctx, next, block, rebases); err != nil {
		return err
	}
	if err := s.history.Append(next); err != nil {
		return fmt.Errorf("%s append: %w", s.cfg.Name, err)
	}
	s.rebases = rebases
	s.lastBlock = block
	return nil
}

// Finish reprices the current position at block, records the final row and
// clears the checkpoint.
func (s *Strategy) Finish(ctx context.Context, block uint64) (vault.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.history == nil {
		return vault.Status{}, fmt.Errorf("strategy %s is not initialized", s.cfg.Name)
	}
	final, _ := s.history.Last()
	if err := reprice(ctx, s.market, &final, block); err != nil {
		return vault.Status{}, fmt.Errorf("finish %s at block %d: %w", s.cfg.Name, block, err)
	}
	if err := s.recorder.Record(ctx, s.row(report.KindFinal, final)); err != nil {
		return vault.Status{}, fmt.Errorf("record final %s: %w", s.cfg.Name, err)
	}
	if err := state.DeleteCheckpoint(ctx, s.store, s.cfg.Name, s.startBlock); err != nil {
		s.log.Warn("checkpoint delete failed", zap.Error(err))
	}
	s.log.Info("strategy finished",
		zap.Uint64("block", block),
		zap.Int("rebases", s.rebases),
		zap.String("total_value_usdc", report.FormatEther(final.TotalValueUSDC)),
	)
	return final, nil
}

// InitialValue is the total value of the pass's initial vault.
func (s *Strategy) InitialValue() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialValue
}

func (s *Strategy) StartBlock() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startBlock
}

func (s *Strategy) countOutcome(o hedge.Outcome) {
	switch o {
	case hedge.OutcomeApplied:
		s.metrics.RebasesApplied.Inc()
	case hedge.OutcomeNoHedge:
		s.metrics.HedgeSkipped.Inc()
	case hedge.OutcomeUnfavorable:
		s.metrics.InterestSkipped.Inc()
	case hedge.OutcomeValueRegression:
		s.metrics.ValueRegressions.Inc()
	}
}

func (s *Strategy) row(kind report.Kind, status vault.Status) report.Row {
	return report.Row{
		Strategy:   s.cfg.Name,
		StartBlock: s.startBlock,
		Kind:       kind,
		Rebases:    s.rebases,
		Status:     status,
	}
}

func (s *Strategy) saveCheckpoint(ctx context.Context, current vault.Status, lastBlock uint64, rebases int) error {
	err := state.SaveCheckpoint(ctx, s.store, state.Checkpoint{
		Strategy:         s.cfg.Name,
		StartBlock:       s.startBlock,
		LastBlock:        lastBlock,
		Rebases:          rebases,
		Status:           current,
		InitialValueUSDC: s.initialValue,
		UpdatedAtMS:      s.now().UnixMilli(),
	})
	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", s.cfg.Name, err)
	}
	return nil
}
