// Package report persists vault snapshots produced by the simulation.
package report

import (
	"context"
	"strconv"
	"strings"
	"time"

	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindInitial Kind = "initial"
	KindRebase  Kind = "rebase"
	KindFinal   Kind = "final"
)

// TimeFormat renders block times the way HTTP dates are written.
const TimeFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

type Row struct {
	Strategy   string       `json:"strategy"`
	StartBlock uint64       `json:"start_block"`
	Kind       Kind         `json:"kind"`
	Rebases    int          `json:"rebases"`
	Status     vault.Status `json:"status"`
}

// Recorder receives rows in emission order for every strategy.
type Recorder interface {
	Record(ctx context.Context, row Row) error
	Close() error
}

var Header = []string{
	"blockNumber",
	"timestamp",
	"shortAmount",
	"collateralAmount",
	"collateralRatio",
	"prevCollateralRatio",
	"effectiveCollateralRatio",
	"totalValueUSDC",
	"wethPrice",
	"oSQTHETHPrice",
	"oSQTHUSDCPrice",
	"twapOSQTHPrice",
	"reason",
	"userInterest",
	"currentImpliedFunding",
	"normalizationFactor",
}

// Fields renders the row in Header order. Token amounts, total value and
// TWAP are 18-decimal fixed point and are written in ether units.
func (r Row) Fields() []string {
	s := r.Status
	interest := s.UserInterest.String()
	if r.Kind == KindInitial {
		interest = "-"
	}
	return []string{
		strconv.FormatUint(s.BlockNumber, 10),
		formatTime(s.Timestamp),
		FormatEther(s.ShortAmount),
		FormatEther(s.CollateralAmount),
		s.CollateralRatio.String(),
		s.PrevCollateralRatio.String(),
		s.EffectiveCollateralRatio.String(),
		FormatEther(s.TotalValueUSDC),
		formatFloat(s.WETHPrice),
		formatFloat(s.OSQTHETHPrice),
		formatFloat(s.OSQTHUSDCPrice),
		FormatEther(s.TWAPOSQTHPrice),
		s.Reason,
		interest,
		formatFloat(s.CurrentImpliedFunding),
		formatFloat(s.NormalizationFactor),
	}
}

// FormatEther converts a wei amount to ether, always keeping a fractional
// part ("100.0").
func FormatEther(wei decimal.Decimal) string {
	out := wei.Truncate(0).Shift(-18).String()
	if !strings.Contains(out, ".") {
		out += ".0"
	}
	return out
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}
