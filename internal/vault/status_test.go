package vault

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryAppendOrdered(t *testing.T) {
	h, err := NewHistory(Status{BlockNumber: 10, ShortAmount: d("1"), CollateralAmount: d("2")})
	require.NoError(t, err)

	require.NoError(t, h.Append(Status{BlockNumber: 10, ShortAmount: d("1"), CollateralAmount: d("2")}))
	require.NoError(t, h.Append(Status{BlockNumber: 12, ShortAmount: d("3"), CollateralAmount: d("2")}))

	err = h.Append(Status{BlockNumber: 11})
	require.ErrorIs(t, err, ErrOutOfOrder)

	last, ok := h.Last()
	require.True(t, ok)
	assert.Equal(t, uint64(12), last.BlockNumber)
	assert.Equal(t, 3, h.Len())
}

func TestHistoryRejectsNegativeAmounts(t *testing.T) {
	h, err := NewHistory()
	require.NoError(t, err)
	require.Error(t, h.Append(Status{ShortAmount: d("-1")}))
	require.Error(t, h.Append(Status{CollateralAmount: d("-1")}))
	assert.Equal(t, 0, h.Len())
}

func TestHistorySnapshotsAreCopies(t *testing.T) {
	h, err := NewHistory(Status{BlockNumber: 1, Reason: "Initial"})
	require.NoError(t, err)

	snaps := h.Snapshots()
	snaps[0].Reason = "mutated"

	last, _ := h.Last()
	assert.Equal(t, "Initial", last.Reason)
}

func TestEmptyHistory(t *testing.T) {
	h, err := NewHistory()
	require.NoError(t, err)
	_, ok := h.Last()
	assert.False(t, ok)
}

func TestSamePosition(t *testing.T) {
	a := Status{ShortAmount: d("1.0"), CollateralAmount: d("2")}
	b := Status{ShortAmount: d("1"), CollateralAmount: d("2.00"), Reason: "other"}
	assert.True(t, a.SamePosition(b))
	b.ShortAmount = decimal.NewFromInt(5)
	assert.False(t, a.SamePosition(b))
}
