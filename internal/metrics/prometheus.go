package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "crab_sim"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	blocksEvaluated  prometheus.Counter
	rebasesTriggered prometheus.Counter
	rebasesApplied   prometheus.Counter
	hedgeSkipped     prometheus.Counter
	interestSkipped  prometheus.Counter
	valueRegressions prometheus.Counter
	stepFailures     prometheus.Counter
	cacheHits        prometheus.Counter
	cacheMisses      prometheus.Counter
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:         registry,
		blocksEvaluated:  newCounter("blocks_evaluated_total", "Total number of strategy block evaluations."),
		rebasesTriggered: newCounter("rebases_triggered_total", "Total number of trigger rule matches."),
		rebasesApplied:   newCounter("rebases_applied_total", "Total number of rebases that changed the vault."),
		hedgeSkipped:     newCounter("hedge_skipped_total", "Total number of rebases inside the hedge dead band."),
		interestSkipped:  newCounter("interest_skipped_total", "Total number of rebases skipped on quote direction."),
		valueRegressions: newCounter("value_regressions_total", "Total number of rebases rejected by the value guard."),
		stepFailures:     newCounter("step_failures_total", "Total number of failed simulation steps."),
		cacheHits:        newCounter("quote_cache_hits_total", "Total number of quote cache hits."),
		cacheMisses:      newCounter("quote_cache_misses_total", "Total number of quote cache misses."),
	}

	registry.MustRegister(
		p.blocksEvaluated,
		p.rebasesTriggered,
		p.rebasesApplied,
		p.hedgeSkipped,
		p.interestSkipped,
		p.valueRegressions,
		p.stepFailures,
		p.cacheHits,
		p.cacheMisses,
	)

	p.Metrics = &Metrics{
		BlocksEvaluated:  promCounter{p.blocksEvaluated},
		RebasesTriggered: promCounter{p.rebasesTriggered},
		RebasesApplied:   promCounter{p.rebasesApplied},
		HedgeSkipped:     promCounter{p.hedgeSkipped},
		InterestSkipped:  promCounter{p.interestSkipped},
		ValueRegressions: promCounter{p.valueRegressions},
		StepFailures:     promCounter{p.stepFailures},
		QuoteCacheHits:   promCounter{p.cacheHits},
		QuoteCacheMisses: promCounter{p.cacheMisses},
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
