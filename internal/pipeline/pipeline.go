// Package pipeline walks a directory of ABO listing files, keeps the
// documents whose main image is present on disk, and emits one record per
// kept document to a sink.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"aboproducts/internal/listing"
	"aboproducts/internal/sink"
)

type Option func(*Pipeline)

func WithLogger(l logrus.FieldLogger) Option {
	return func(p *Pipeline) { p.log = l }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

type Pipeline struct {
	cfg     Config
	out     sink.Sink
	log     logrus.FieldLogger
	metrics *Metrics
}

// Summary tallies one run. On a completed run every listed entry lands in
// exactly one of SkippedExtension, SkippedMissingImage, Failed or Written; a
// run stopped by a sink failure leaves the remaining entries uncounted.
type Summary struct {
	Listed              int
	Processed           int
	Written             int
	SkippedExtension    int
	SkippedMissingImage int
	Failed              int
	Failures            []*listing.DocumentError
	Duration            time.Duration
}

func New(cfg Config, out sink.Sink, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("output sink is required")
	}
	p := &Pipeline{cfg: cfg.withDefaults(), out: out, log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run makes one sequential pass over the metadata dir in the order os.ReadDir
// returns it. Per-document failures are reported and skipped. Listing the
// directory or writing to the sink fails the whole run; rows already written
// stay written. ctx only reaches the sink.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	var sum Summary

	entries, err := os.ReadDir(p.cfg.MetadataDir)
	if err != nil {
		return sum, fmt.Errorf("list metadata dir: %w", err)
	}

	for _, entry := range entries {
		sum.Listed++
		p.metrics.observeListed()

		name := entry.Name()
		if !strings.HasSuffix(name, p.cfg.MetadataExt) {
			sum.SkippedExtension++
			p.metrics.observeSkipped(reasonExtension)
			continue
		}

		sum.Processed++
		p.metrics.observeProcessed()
		rec, ok, failure := p.process(name)
		if failure != nil {
			sum.Failed++
			sum.Failures = append(sum.Failures, failure)
			p.metrics.observeFailure(failure.Kind)
			p.report(failure)
			continue
		}
		if !ok {
			sum.SkippedMissingImage++
			p.metrics.observeSkipped(reasonMissingImage)
			p.log.WithFields(logrus.Fields{"file": name, "image_path": rec.ImagePath}).Debug("image missing, skipping")
			continue
		}

		if err := p.out.Write(ctx, rec); err != nil {
			return sum, fmt.Errorf("write record from %s: %w", name, err)
		}
		sum.Written++
		p.metrics.observeWritten()
	}

	sum.Duration = time.Since(start)
	p.metrics.observeRun(sum)
	return sum, nil
}

// process returns the record for name and whether its image exists. When the
// image is missing the record still carries the derived ImagePath.
func (p *Pipeline) process(name string) (listing.Record, bool, *listing.DocumentError) {
	data, err := os.ReadFile(filepath.Join(p.cfg.MetadataDir, name))
	if err != nil {
		return listing.Record{}, false, &listing.DocumentError{File: name, Kind: listing.FilesystemError, Err: err}
	}

	doc, err := listing.Decode(data)
	if err != nil {
		var docErr *listing.DocumentError
		if errors.As(err, &docErr) {
			docErr.File = name
			return listing.Record{}, false, docErr
		}
		return listing.Record{}, false, &listing.DocumentError{File: name, Kind: listing.ParseError, Err: err}
	}

	rec := listing.NewRecord(doc, p.ImagePath(doc.ImageID()))
	exists, err := fileExists(rec.ImagePath)
	if err != nil {
		return listing.Record{}, false, &listing.DocumentError{File: name, Kind: listing.FilesystemError, Field: "main_image_id", Err: err}
	}
	return rec, exists, nil
}

// ImagePath derives where the image for imageID is expected.
func (p *Pipeline) ImagePath(imageID string) string {
	return filepath.Join(p.cfg.ImageDir, imageID+p.cfg.ImageExt)
}

func (p *Pipeline) report(failure *listing.DocumentError) {
	fields := logrus.Fields{"file": failure.File, "kind": failure.Kind.String()}
	if failure.Field != "" {
		fields["field"] = failure.Field
	}
	p.log.WithFields(fields).WithError(failure.Err).Errorf("Failed to process %s", failure.File)
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, syscall.ENOTDIR):
		return false, nil
	default:
		return false, err
	}
}
