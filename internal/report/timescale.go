package report

import (
	"context"

	"crab-rebase-sim/internal/timescale"
)

// SnapshotSink is the subset of the timescale writer the recorder needs.
type SnapshotSink interface {
	EnqueueSnapshot(timescale.VaultSnapshot)
	EnqueueRun(timescale.StrategyRun)
	Close() error
}

// Timescale forwards rows to a queued database writer. Final rows also
// produce a strategy run summary.
type Timescale struct {
	sink SnapshotSink
}

func NewTimescale(sink SnapshotSink) *Timescale {
	return &Timescale{sink: sink}
}

func (t *Timescale) Record(_ context.Context, row Row) error {
	s := row.Status
	interest := s.UserInterest.String()
	if row.Kind == KindInitial {
		interest = "-"
	}
	t.sink.EnqueueSnapshot(timescale.VaultSnapshot{
		Time:                     s.Timestamp,
		Strategy:                 row.Strategy,
		StartBlock:               row.StartBlock,
		Kind:                     string(row.Kind),
		BlockNumber:              s.BlockNumber,
		ShortAmount:              FormatEther(s.ShortAmount),
		CollateralAmount:         FormatEther(s.CollateralAmount),
		CollateralRatio:          s.CollateralRatio.String(),
		PrevCollateralRatio:      s.PrevCollateralRatio.String(),
		EffectiveCollateralRatio: s.EffectiveCollateralRatio.String(),
		TotalValueUSDC:           FormatEther(s.TotalValueUSDC),
		WETHPrice:                s.WETHPrice,
		OSQTHETHPrice:            s.OSQTHETHPrice,
		OSQTHUSDCPrice:           s.OSQTHUSDCPrice,
		TWAPOSQTHPrice:           FormatEther(s.TWAPOSQTHPrice),
		Reason:                   s.Reason,
		UserInterest:             interest,
		ImpliedFunding:           s.CurrentImpliedFunding,
		NormalizationFactor:      s.NormalizationFactor,
	})
	if row.Kind == KindFinal {
		t.sink.EnqueueRun(timescale.StrategyRun{
			Time:           s.Timestamp,
			Strategy:       row.Strategy,
			StartBlock:     row.StartBlock,
			EndBlock:       s.BlockNumber,
			Rebases:        row.Rebases,
			FinalValueUSDC: FormatEther(s.TotalValueUSDC),
		})
	}
	return nil
}

func (t *Timescale) Close() error {
	return t.sink.Close()
}
