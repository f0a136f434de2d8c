package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"crab-rebase-sim/internal/alerts"
	"crab-rebase-sim/internal/config"
	"crab-rebase-sim/internal/metrics"
	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/quote/cache"
	"crab-rebase-sim/internal/quote/chain"
	"crab-rebase-sim/internal/report"
	"crab-rebase-sim/internal/sim"
	"crab-rebase-sim/internal/state/sqlite"
	"crab-rebase-sim/internal/timescale"
	"crab-rebase-sim/internal/trigger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const metricsShutdownTimeout = 5 * time.Second

type App struct {
	cfg         *config.Config
	log         *zap.Logger
	store       *sqlite.Store
	market      quote.Source
	closeMarket func() error
	recorder    report.Recorder
	timescale   *timescale.Writer
	metrics     *metrics.Metrics
	prom        *metrics.Prometheus
	alerts      *alerts.Telegram
	runner      *sim.Runner
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	a := &App{cfg: cfg, log: log, metrics: metrics.NewNoop()}
	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.cfg
	if cfg.Metrics.EnabledValue() {
		a.prom = metrics.NewPrometheus()
		a.metrics = a.prom.Metrics
	}

	if err := os.MkdirAll(filepath.Dir(cfg.State.SQLitePath), 0o755); err != nil {
		return err
	}
	store, err := sqlite.New(cfg.State.SQLitePath)
	if err != nil {
		return err
	}
	a.store = store

	market, closeMarket, err := OpenSource(ctx, cfg, a.log, a.metrics)
	if err != nil {
		return err
	}
	a.market = market
	a.closeMarket = closeMarket

	writer, err := timescale.New(cfg.Timescale, a.log)
	if err != nil {
		return fmt.Errorf("timescale: %w", err)
	}
	a.timescale = writer

	recorder, err := buildRecorder(cfg.Output, writer)
	if err != nil {
		return err
	}
	a.recorder = recorder

	a.alerts = alerts.NewTelegram(cfg.Telegram, a.log)

	strategies, err := buildStrategies(cfg.Strategies, sim.StrategyDeps{
		Market:   a.market,
		Recorder: a.recorder,
		Store:    a.store,
		Metrics:  a.metrics,
		Log:      a.log,
	})
	if err != nil {
		return err
	}
	runner, err := sim.NewRunner(cfg.Simulation, strategies, sim.RunnerDeps{
		Market:   a.market,
		Notifier: a.alerts,
		Metrics:  a.metrics,
		Log:      a.log,
	})
	if err != nil {
		return err
	}
	a.runner = runner
	return nil
}

func (a *App) Run(ctx context.Context) error {
	defer a.Close()
	if a.prom != nil {
		stop, err := a.serveMetrics()
		if err != nil {
			return err
		}
		defer stop()
	}
	a.timescale.Start(ctx)
	a.log.Info("simulation starting",
		zap.Int("strategies", len(a.cfg.Strategies)),
		zap.Uint64("start_block", a.cfg.Simulation.StartBlock),
		zap.Uint64("end_block", a.cfg.Simulation.EndBlock),
		zap.Bool("random_start", a.cfg.Simulation.RandomStart),
		zap.Bool("loop", a.cfg.Simulation.Loop),
		zap.String("quote_cache", a.cfg.Quotes.Cache),
	)
	return a.runner.Run(ctx)
}

// Close releases every resource opened by New. It is safe to call more
// than once.
func (a *App) Close() error {
	var errs []error
	if a.recorder != nil {
		errs = append(errs, a.recorder.Close())
		a.recorder = nil
	} else if a.timescale != nil {
		errs = append(errs, a.timescale.Close())
	}
	a.timescale = nil
	if a.closeMarket != nil {
		errs = append(errs, a.closeMarket())
		a.closeMarket = nil
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
		a.store = nil
	}
	return errors.Join(errs...)
}

func (a *App) serveMetrics() (func(), error) {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	server := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	a.log.Info("metrics endpoint available", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.log.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}, nil
}

// OpenSource dials the archive node and wraps it in the configured quote
// cache. The returned func releases both.
func OpenSource(ctx context.Context, cfg *config.Config, log *zap.Logger, m *metrics.Metrics) (quote.Source, func() error, error) {
	provider, err := chain.Dial(ctx, cfg.RPC.URL, chain.Options{
		Timeout:           cfg.RPC.Timeout,
		RequestsPerSecond: cfg.RPC.RequestsPerSecond,
		Burst:             cfg.RPC.Burst,
	}, log)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rpc: %w", err)
	}
	src, redisCache, err := wrapCache(ctx, cfg.Quotes, provider, log, m)
	if err != nil {
		provider.Close()
		return nil, nil, err
	}
	return src, func() error {
		provider.Close()
		if redisCache != nil {
			return redisCache.Close()
		}
		return nil
	}, nil
}

// wrapCache puts the configured replay cache in front of src. The returned
// Redis store, when non-nil, must be closed by the caller.
func wrapCache(ctx context.Context, cfg config.QuotesConfig, src quote.Source, log *zap.Logger, m *metrics.Metrics) (quote.Source, *cache.Redis, error) {
	switch cfg.Cache {
	case config.CacheNone, "":
		return src, nil, nil
	case config.CacheMemory:
		return cache.New(src, cache.NewMemory(), log, m), nil, nil
	case config.CacheRedis:
		r, err := cache.DialRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
			TTL:      cfg.Redis.TTL,
		})
		if err != nil {
			return nil, nil, err
		}
		return cache.New(src, r, log, m), r, nil
	}
	return nil, nil, fmt.Errorf("unknown quote cache %q", cfg.Cache)
}

// buildRecorder combines every enabled output. A nil writer means Timescale
// is disabled.
func buildRecorder(cfg config.OutputConfig, writer *timescale.Writer) (report.Recorder, error) {
	var out report.Fanout
	if cfg.CSVEnabled() {
		out = append(out, report.NewCSV(cfg.Dir))
	}
	if cfg.JournalDir != "" {
		journal, err := report.OpenJournal(cfg.JournalDir)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		out = append(out, journal)
	}
	if writer != nil {
		out = append(out, report.NewTimescale(writer))
	}
	return out, nil
}

func buildStrategies(cfgs []config.StrategyConfig, deps sim.StrategyDeps) ([]*sim.Strategy, error) {
	strategies := make([]*sim.Strategy, 0, len(cfgs))
	for _, sc := range cfgs {
		rules, ok := trigger.Lookup(sc.Trigger)
		if !ok {
			return nil, fmt.Errorf("strategy %s: unknown trigger %q", sc.Name, sc.Trigger)
		}
		s, err := sim.NewStrategy(sim.StrategyConfig{
			Name:            sc.Name,
			Threshold:       decimal.NewFromFloat(sc.DeltaHedgeThreshold),
			Trigger:         rules,
			IncludeInterest: sc.IncludeInterest,
			CheckValue:      sc.CheckValue,
		}, deps)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, s)
	}
	return strategies, nil
}
