package sim

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"crab-rebase-sim/internal/alerts"
	"crab-rebase-sim/internal/metrics"
	"crab-rebase-sim/internal/quote"
	"crab-rebase-sim/internal/quote/quotetest"
	"crab-rebase-sim/internal/report"
	"crab-rebase-sim/internal/state"
	"crab-rebase-sim/internal/state/sqlite"
	"crab-rebase-sim/internal/trigger"
	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var twapQuarter = d("250000000000000000")

func quarterMarket() *quotetest.Market {
	return &quotetest.Market{ETHPrice: 2000, OSQTHPrice: 0.25, TWAPPrice: twapQuarter}
}

// stubCondition fires with a fixed reason on the listed blocks.
type stubCondition struct {
	mu      sync.Mutex
	fire    map[uint64]string
	fail    map[uint64]int
	err     error
	visited []uint64
}

func (c *stubCondition) Evaluate(_ context.Context, _ quote.Provider, block uint64, _ vault.Status) (trigger.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.visited = append(c.visited, block)
	if c.fail[block] > 0 {
		c.fail[block]--
		return trigger.Result{}, c.err
	}
	if reason, ok := c.fire[block]; ok {
		return trigger.Result{Triggered: true, Reason: reason}, nil
	}
	return trigger.Result{Reason: trigger.ReasonNone}, nil
}

func (c *stubCondition) blocks() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint64(nil), c.visited...)
}

// memRecorder keeps rows in memory. It rejects the next failures rows with
// err.
type memRecorder struct {
	mu       sync.Mutex
	rows     []report.Row
	closed   bool
	failures int
	err      error
}

func (r *memRecorder) Record(_ context.Context, row report.Row) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return r.err
	}
	r.rows = append(r.rows, row)
	return nil
}

func (r *memRecorder) Close() error {
	r.closed = true
	return nil
}

func (r *memRecorder) kinds(strategy string) []report.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []report.Kind
	for _, row := range r.rows {
		if row.Strategy == strategy {
			out = append(out, row.Kind)
		}
	}
	return out
}

type countingCounter struct {
	mu sync.Mutex
	n  int
}

func (c *countingCounter) Inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *countingCounter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

type countingMetrics struct {
	*metrics.Metrics
	evaluated, triggered, applied, skipped, interest, regressions, failures *countingCounter
}

func newCountingMetrics() countingMetrics {
	m := countingMetrics{
		Metrics:     metrics.NewNoop(),
		evaluated:   &countingCounter{},
		triggered:   &countingCounter{},
		applied:     &countingCounter{},
		skipped:     &countingCounter{},
		interest:    &countingCounter{},
		regressions: &countingCounter{},
		failures:    &countingCounter{},
	}
	m.BlocksEvaluated = m.evaluated
	m.RebasesTriggered = m.triggered
	m.RebasesApplied = m.applied
	m.HedgeSkipped = m.skipped
	m.InterestSkipped = m.interest
	m.ValueRegressions = m.regressions
	m.StepFailures = m.failures
	return m
}

type memNotifier struct {
	mu        sync.Mutex
	summaries []alerts.Summary
}

func (n *memNotifier) NotifyFinished(_ context.Context, s alerts.Summary) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.summaries = append(n.summaries, s)
}

// flakyStore fails the next failures writes.
type flakyStore struct {
	state.Store
	failures int
	err      error
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	if f.failures > 0 {
		f.failures--
		return f.err
	}
	return f.Store.Set(ctx, key, value)
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "sim.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

type notifyFunc func()

func (f notifyFunc) NotifyFinished(context.Context, alerts.Summary) {
	f()
}
