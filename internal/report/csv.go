package report

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// CSV writes one file per strategy pass under <dir>/<DD-MM-YY>/. An initial
// row starts a fresh file, later rows append to it and a final row closes it.
type CSV struct {
	dir string
	now func() time.Time

	mu    sync.Mutex
	files map[string]*csvFile
}

type csvFile struct {
	path string
	f    *os.File
	w    *csv.Writer
}

func NewCSV(dir string) *CSV {
	return &CSV{dir: dir, now: time.Now, files: make(map[string]*csvFile)}
}

func (c *CSV) Path(strategy string, startBlock uint64) string {
	return filepath.Join(c.dir, c.now().Format("02-01-06"), fmt.Sprintf("%s_%d.csv", strategy, startBlock))
}

func (c *CSV) Record(_ context.Context, row Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fmt.Sprintf("%s_%d", row.Strategy, row.StartBlock)
	file, ok := c.files[key]
	if !ok {
		var err error
		if file, err = c.open(row.Strategy, row.StartBlock, row.Kind == KindInitial); err != nil {
			return err
		}
		c.files[key] = file
	}
	if err := file.w.Write(row.Fields()); err != nil {
		return fmt.Errorf("write %s: %w", file.path, err)
	}
	file.w.Flush()
	if err := file.w.Error(); err != nil {
		return fmt.Errorf("flush %s: %w", file.path, err)
	}
	if row.Kind == KindFinal {
		delete(c.files, key)
		return file.f.Close()
	}
	return nil
}

func (c *CSV) open(strategy string, startBlock uint64, fresh bool) (*csvFile, error) {
	path := c.Path(strategy, startBlock)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if fresh {
		flags |= os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(Header); err != nil {
			_ = f.Close()
			return nil, err
		}
	}
	return &csvFile{path: path, f: f, w: w}, nil
}

func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for key, file := range c.files {
		file.w.Flush()
		errs = append(errs, file.w.Error(), file.f.Close())
		delete(c.files, key)
	}
	return errors.Join(errs...)
}
