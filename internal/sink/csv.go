package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"aboproducts/internal/csvtable"
	"aboproducts/internal/listing"
)

// CSV is the primary output table. The file is truncated and the header
// written as soon as it is created.
type CSV struct {
	path string
	f    *os.File
	w    *bufio.Writer
	rows int
}

func CreateCSV(path string) (*CSV, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create output table: %w", err)
	}
	c := &CSV{path: path, f: f, w: bufio.NewWriter(f)}
	if err := csvtable.WriteRecord(c.w, listing.Header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write header: %w", err)
	}
	return c, nil
}

func (c *CSV) Path() string { return c.path }

// Rows is the number of data rows written so far.
func (c *CSV) Rows() int { return c.rows }

func (c *CSV) Write(_ context.Context, rec listing.Record) error {
	if err := csvtable.WriteRecord(c.w, rec.Values()); err != nil {
		return err
	}
	c.rows++
	return nil
}

func (c *CSV) Close(_ context.Context) error {
	return errors.Join(c.w.Flush(), c.f.Close())
}

// Abort flushes and closes the file. Rows written before the failure stay in
// the table.
func (c *CSV) Abort(ctx context.Context) error {
	return c.Close(ctx)
}
