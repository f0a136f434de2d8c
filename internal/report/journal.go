package report

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
)

const (
	journalSegmentLimit = 1000
	journalMaxSegments  = 100
	journalKeyPrefix    = "vault_snapshot_"
)

// Journal appends every row to a write-ahead log so a run can be replayed
// or exported after the fact.
type Journal struct {
	wal *gowal.Wal
	mu  sync.RWMutex
}

func OpenJournal(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal dir is required")
	}
	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "snapshot_",
		SegmentThreshold: journalSegmentLimit,
		MaxSegments:      journalMaxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init snapshot journal")
	}
	return &Journal{wal: wal}, nil
}

func (j *Journal) Record(_ context.Context, row Row) error {
	if j == nil || j.wal == nil {
		return errors.New("snapshot journal is not initialized")
	}
	if row.Strategy == "" {
		return errors.New("snapshot strategy is required")
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return errors.Wrap(err, "marshal snapshot")
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Write(j.wal.CurrentIndex()+1, journalKeyPrefix+row.Strategy, payload)
}

// Rows returns every journaled row in write order.
func (j *Journal) Rows() ([]Row, error) {
	if j == nil || j.wal == nil {
		return nil, errors.New("snapshot journal is not initialized")
	}
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows := make([]Row, 0, j.wal.CurrentIndex())
	for msg := range j.wal.Iterator() {
		if !strings.HasPrefix(msg.Key, journalKeyPrefix) {
			continue
		}
		var row Row
		if err := json.Unmarshal(msg.Value, &row); err != nil {
			return nil, errors.Wrapf(err, "decode snapshot %s", msg.Key)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (j *Journal) Close() error {
	if j == nil || j.wal == nil {
		return errors.New("snapshot journal is not initialized")
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.wal.Close()
}
