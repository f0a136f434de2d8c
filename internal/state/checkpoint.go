package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"crab-rebase-sim/internal/vault"

	"github.com/shopspring/decimal"
)

// Checkpoint is the resume point of one strategy pass.
type Checkpoint struct {
	Strategy   string       `json:"strategy"`
	StartBlock uint64       `json:"start_block"`
	LastBlock  uint64       `json:"last_block"`
	Rebases    int          `json:"rebases"`
	Status     vault.Status `json:"status"`
	// InitialValueUSDC is the total value of the pass's initial vault.
	InitialValueUSDC decimal.Decimal `json:"initial_value_usdc"`
	UpdatedAtMS      int64           `json:"updated_at_ms"`
}

func CheckpointKey(strategy string, startBlock uint64) string {
	return fmt.Sprintf("strategy:%s:%d:checkpoint", strategy, startBlock)
}

func LoadCheckpoint(ctx context.Context, store Store, strategy string, startBlock uint64) (Checkpoint, bool, error) {
	if store == nil {
		return Checkpoint{}, false, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	raw, ok, err := store.Get(ctx, CheckpointKey(strategy, startBlock))
	if err != nil {
		return Checkpoint{}, false, err
	}
	if !ok || strings.TrimSpace(raw) == "" {
		return Checkpoint{}, false, nil
	}
	var cp Checkpoint
	if err := json.Unmarshal([]byte(raw), &cp); err != nil {
		return Checkpoint{}, false, err
	}
	return cp, true, nil
}

func SaveCheckpoint(ctx context.Context, store Store, cp Checkpoint) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	payload, err := json.Marshal(cp)
	if err != nil {
		return err
	}
	return store.Set(ctx, CheckpointKey(cp.Strategy, cp.StartBlock), string(payload))
}

func DeleteCheckpoint(ctx context.Context, store Store, strategy string, startBlock uint64) error {
	if store == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return store.Delete(ctx, CheckpointKey(strategy, startBlock))
}
