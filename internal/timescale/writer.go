package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"crab-rebase-sim/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const (
	writeTimeout = 3 * time.Second
	drainTimeout = 10 * time.Second
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// VaultSnapshot is one simulated vault row. Amount fields are decimal strings
// in ether units so NUMERIC columns keep full precision.
type VaultSnapshot struct {
	Time                     time.Time
	Strategy                 string
	StartBlock               uint64
	Kind                     string
	BlockNumber              uint64
	ShortAmount              string
	CollateralAmount         string
	CollateralRatio          string
	PrevCollateralRatio      string
	EffectiveCollateralRatio string
	TotalValueUSDC           string
	WETHPrice                float64
	OSQTHETHPrice            float64
	OSQTHUSDCPrice           float64
	TWAPOSQTHPrice           string
	Reason                   string
	UserInterest             string
	ImpliedFunding           float64
	NormalizationFactor      float64
}

type StrategyRun struct {
	Time           time.Time
	Strategy       string
	StartBlock     uint64
	EndBlock       uint64
	Rebases        int
	FinalValueUSDC string
}

type Writer struct {
	db        *sql.DB
	conn      execer
	log       *zap.Logger
	schema    string
	snapshots chan VaultSnapshot
	runs      chan StrategyRun
	started   atomic.Bool
	dropSnap  atomic.Uint64
	dropRun   atomic.Uint64
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, cfg.Schema, cfg.QueueSize, log)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	w := &Writer{
		db:        db,
		log:       log,
		schema:    schema,
		snapshots: make(chan VaultSnapshot, queueSize),
		runs:      make(chan StrategyRun, queueSize),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	if db != nil {
		w.conn = db
	}
	return w
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

// Close drains queued rows, then closes the database.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.stopOnce.Do(func() { close(w.stop) })
	if w.started.Load() {
		<-w.done
		// Rows enqueued after a cancelled run returned.
		w.drain(context.Background())
	}
	if w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) Dropped() (snapshots, runs uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropSnap.Load(), w.dropRun.Load()
}

func (w *Writer) EnqueueSnapshot(snapshot VaultSnapshot) {
	if w == nil {
		return
	}
	select {
	case w.snapshots <- snapshot:
		return
	default:
		if w.dropSnap.Add(1) == 1 {
			w.log.Warn("timescale snapshot queue full")
		}
	}
}

func (w *Writer) EnqueueRun(run StrategyRun) {
	if w == nil {
		return
	}
	select {
	case w.runs <- run:
		return
	default:
		if w.dropRun.Add(1) == 1 {
			w.log.Warn("timescale run queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	defer close(w.done)
	for {
		if ctx.Err() != nil {
			w.drain(ctx)
			return
		}
		select {
		case <-ctx.Done():
			w.drain(ctx)
			return
		case <-w.stop:
			w.drain(ctx)
			return
		case snap := <-w.snapshots:
			w.writeSnapshot(ctx, snap)
		case run := <-w.runs:
			w.writeRun(ctx, run)
		}
	}
}

// drain writes whatever is still queued. It runs on shutdown, usually after
// ctx is cancelled, so writes get their own bounded context.
func (w *Writer) drain(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
	defer cancel()
	for {
		select {
		case snap := <-w.snapshots:
			w.writeSnapshot(ctx, snap)
		case run := <-w.runs:
			w.writeRun(ctx, run)
		default:
			return
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		strategy TEXT NOT NULL,
		start_block BIGINT NOT NULL,
		kind TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		short_amount NUMERIC NOT NULL,
		collateral_amount NUMERIC NOT NULL,
		collateral_ratio NUMERIC NOT NULL,
		prev_collateral_ratio NUMERIC NOT NULL,
		effective_collateral_ratio NUMERIC NOT NULL,
		total_value_usdc NUMERIC NOT NULL,
		weth_price DOUBLE PRECISION NOT NULL,
		osqth_eth_price DOUBLE PRECISION NOT NULL,
		osqth_usdc_price DOUBLE PRECISION NOT NULL,
		twap_osqth_price NUMERIC NOT NULL,
		reason TEXT NOT NULL,
		user_interest TEXT NOT NULL,
		implied_funding DOUBLE PRECISION NOT NULL,
		normalization_factor DOUBLE PRECISION NOT NULL
	)`, w.table("vault_snapshots"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		strategy TEXT NOT NULL,
		start_block BIGINT NOT NULL,
		end_block BIGINT NOT NULL,
		rebases INTEGER NOT NULL,
		final_value_usdc NUMERIC NOT NULL,
		PRIMARY KEY (ts, strategy, start_block)
	)`, w.table("strategy_runs"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("vault_snapshots"))); err != nil {
		w.log.Warn("timescale vault_snapshots hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) writeSnapshot(ctx context.Context, snap VaultSnapshot) {
	if w.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, strategy, start_block, kind, block_number, short_amount, collateral_amount,
		collateral_ratio, prev_collateral_ratio, effective_collateral_ratio, total_value_usdc,
		weth_price, osqth_eth_price, osqth_usdc_price, twap_osqth_price, reason, user_interest,
		implied_funding, normalization_factor
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19
	)`, w.table("vault_snapshots"))
	if _, err := w.conn.ExecContext(ctx, query,
		snap.Time,
		snap.Strategy,
		int64(snap.StartBlock),
		snap.Kind,
		int64(snap.BlockNumber),
		snap.ShortAmount,
		snap.CollateralAmount,
		snap.CollateralRatio,
		snap.PrevCollateralRatio,
		snap.EffectiveCollateralRatio,
		snap.TotalValueUSDC,
		snap.WETHPrice,
		snap.OSQTHETHPrice,
		snap.OSQTHUSDCPrice,
		snap.TWAPOSQTHPrice,
		snap.Reason,
		snap.UserInterest,
		snap.ImpliedFunding,
		snap.NormalizationFactor,
	); err != nil {
		w.log.Warn("timescale snapshot insert failed", zap.Error(err))
	}
}

func (w *Writer) writeRun(ctx context.Context, run StrategyRun) {
	if w.conn == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, strategy, start_block, end_block, rebases, final_value_usdc
	) VALUES (
		$1,$2,$3,$4,$5,$6
	)
	ON CONFLICT (ts, strategy, start_block) DO UPDATE SET
		end_block = EXCLUDED.end_block,
		rebases = EXCLUDED.rebases,
		final_value_usdc = EXCLUDED.final_value_usdc`, w.table("strategy_runs"))
	if _, err := w.conn.ExecContext(ctx, query,
		run.Time,
		run.Strategy,
		int64(run.StartBlock),
		int64(run.EndBlock),
		run.Rebases,
		run.FinalValueUSDC,
	); err != nil {
		w.log.Warn("timescale run upsert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
