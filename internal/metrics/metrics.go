package metrics

type Counter interface {
	Inc()
}

type Metrics struct {
	BlocksEvaluated  Counter
	RebasesTriggered Counter
	RebasesApplied   Counter
	HedgeSkipped     Counter
	InterestSkipped  Counter
	ValueRegressions Counter
	StepFailures     Counter
	QuoteCacheHits   Counter
	QuoteCacheMisses Counter
}

type noopCounter struct{}

func (noopCounter) Inc() {}

func NewNoop() *Metrics {
	n := noopCounter{}
	return &Metrics{
		BlocksEvaluated:  n,
		RebasesTriggered: n,
		RebasesApplied:   n,
		HedgeSkipped:     n,
		InterestSkipped:  n,
		ValueRegressions: n,
		StepFailures:     n,
		QuoteCacheHits:   n,
		QuoteCacheMisses: n,
	}
}
