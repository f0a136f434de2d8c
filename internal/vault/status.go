// Package vault holds the Crab vault snapshot and the position metrics
// derived from it.
package vault

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrDivisionByZero = errors.New("division by zero")
	ErrOutOfOrder     = errors.New("snapshot block precedes history")
)

// Status is an immutable snapshot of a strategy at a block. Amounts are in
// wei; TotalValueUSDC is wei-denominated ETH value times the USDC price.
type Status struct {
	BlockNumber              uint64          `json:"block_number"`
	Timestamp                time.Time       `json:"timestamp"`
	ShortAmount              decimal.Decimal `json:"short_amount"`
	CollateralAmount         decimal.Decimal `json:"collateral_amount"`
	CollateralRatio          decimal.Decimal `json:"collateral_ratio"`
	PrevCollateralRatio      decimal.Decimal `json:"prev_collateral_ratio"`
	EffectiveCollateralRatio decimal.Decimal `json:"effective_collateral_ratio"`
	TotalValueUSDC           decimal.Decimal `json:"total_value_usdc"`
	WETHPrice                float64         `json:"weth_price"`
	OSQTHETHPrice            float64         `json:"osqth_eth_price"`
	OSQTHUSDCPrice           float64         `json:"osqth_usdc_price"`
	TWAPOSQTHPrice           decimal.Decimal `json:"twap_osqth_price"`
	Reason                   string          `json:"reason"`
	CurrentImpliedFunding    float64         `json:"current_implied_funding"`
	NormalizationFactor      float64         `json:"normalization_factor"`
	UserInterest             decimal.Decimal `json:"user_interest"`
}

// SamePosition reports whether two snapshots hold identical amounts.
func (s Status) SamePosition(other Status) bool {
	return s.ShortAmount.Equal(other.ShortAmount) && s.CollateralAmount.Equal(other.CollateralAmount)
}

func (s Status) Validate() error {
	if s.ShortAmount.Sign() < 0 {
		return fmt.Errorf("short amount %s is negative", s.ShortAmount)
	}
	if s.CollateralAmount.Sign() < 0 {
		return fmt.Errorf("collateral amount %s is negative", s.CollateralAmount)
	}
	return nil
}

// History is the append-only snapshot sequence owned by one strategy.
type History struct {
	items []Status
}

func NewHistory(initial ...Status) (*History, error) {
	h := &History{}
	for _, s := range initial {
		if err := h.Append(s); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *History) Append(s Status) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if n := len(h.items); n > 0 && s.BlockNumber < h.items[n-1].BlockNumber {
		return fmt.Errorf("block %d after %d: %w", s.BlockNumber, h.items[n-1].BlockNumber, ErrOutOfOrder)
	}
	h.items = append(h.items, s)
	return nil
}

func (h *History) Last() (Status, bool) {
	if len(h.items) == 0 {
		return Status{}, false
	}
	return h.items[len(h.items)-1], true
}

func (h *History) Len() int {
	return len(h.items)
}

// Snapshots returns a copy of the sequence.
func (h *History) Snapshots() []Status {
	out := make([]Status, len(h.items))
	copy(out, h.items)
	return out
}
