package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"aboproducts/internal/config"
	"aboproducts/internal/logging"
	"aboproducts/internal/pipeline"
	"aboproducts/internal/sink"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalf("load config: %v", err)
	}

	metadataDir := flag.String("metadata-dir", cfg.MetadataDir, "Directory of ABO listing JSON files")
	imageDir := flag.String("image-dir", cfg.ImageDir, "Directory of product images, looked up as <main_image_id>.jpg")
	outPath := flag.String("out", cfg.OutputPath, "Output CSV path")
	sqlitePath := flag.String("sqlite", cfg.SQLitePath, "Optional SQLite mirror of the output table")
	postgresURL := flag.String("postgres-url", cfg.PostgresURL, "Optional Postgres connection string for a mirror of the output table")
	postgresTable := flag.String("postgres-table", cfg.PostgresTable, "Postgres mirror table name")
	metricsFile := flag.String("metrics-file", cfg.MetricsFile, "Optional Prometheus textfile written after the run")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", cfg.LogFile, "Optional rotated log file, in addition to stderr")
	logJSON := flag.Bool("log-json", cfg.LogJSON, "Log as JSON instead of text")
	flag.Parse()

	log, err := logging.New(logging.Options{Level: *logLevel, File: *logFile, JSON: *logJSON})
	if err != nil {
		fatalf("init logger: %v", err)
	}

	ctx := context.Background()
	out, err := openSinks(ctx, *outPath, *sqlitePath, *postgresURL, *postgresTable)
	if err != nil {
		fatalf("open output: %v", err)
	}

	metrics := pipeline.NewMetrics()
	p, err := pipeline.New(pipeline.Config{
		MetadataDir: *metadataDir,
		ImageDir:    *imageDir,
	}, out, pipeline.WithLogger(log), pipeline.WithMetrics(metrics))
	if err != nil {
		fatalf("configure pipeline: %v", err)
	}

	sum, err := runAndFinish(ctx, p, out, log)
	if err != nil {
		fatalf("%v", err)
	}

	if *metricsFile != "" {
		if err := os.MkdirAll(filepath.Dir(*metricsFile), 0o755); err != nil {
			log.WithError(err).Warn("could not create metrics dir")
		} else if err := metrics.WriteTextfile(*metricsFile); err != nil {
			log.WithError(err).Warn("could not write metrics textfile")
		}
	}

	log.WithFields(logrus.Fields{
		"listed":        sum.Listed,
		"processed":     sum.Processed,
		"written":       sum.Written,
		"missing_image": sum.SkippedMissingImage,
		"failed":        sum.Failed,
		"duration":      sum.Duration.String(),
	}).Info("extraction finished")

	fmt.Printf("Files listed: %d\n", sum.Listed)
	fmt.Printf("Documents processed: %d\n", sum.Processed)
	fmt.Printf("Rows written: %d\n", sum.Written)
	fmt.Printf("Skipped (missing image): %d\n", sum.SkippedMissingImage)
	fmt.Printf("Failed documents: %d\n", sum.Failed)
	fmt.Printf("CSV: %s\n", *outPath)
	if *sqlitePath != "" {
		fmt.Printf("SQLite: %s\n", *sqlitePath)
	}
}

// runAndFinish runs p and then closes out. A failed run aborts out instead,
// so the database mirrors keep their previous contents.
func runAndFinish(ctx context.Context, p *pipeline.Pipeline, out sink.Sink, log logrus.FieldLogger) (pipeline.Summary, error) {
	sum, err := p.Run(ctx)
	if err != nil {
		if abortErr := out.Abort(ctx); abortErr != nil {
			log.WithError(abortErr).Warn("could not abort output")
		}
		return sum, fmt.Errorf("run: %w", err)
	}
	if err := out.Close(ctx); err != nil {
		return sum, fmt.Errorf("close output: %w", err)
	}
	return sum, nil
}

// openSinks creates the CSV table first, so a bad output path fails the run
// before any input is read.
func openSinks(ctx context.Context, csvPath, sqlitePath, postgresURL, postgresTable string) (sink.Sink, error) {
	primary, err := sink.CreateCSV(csvPath)
	if err != nil {
		return nil, err
	}
	sinks := []sink.Sink{primary}
	abortOpened := func() {
		for _, s := range sinks {
			_ = s.Abort(ctx)
		}
	}
	if sqlitePath != "" {
		s, err := sink.OpenSQLite(ctx, sqlitePath)
		if err != nil {
			abortOpened()
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		sinks = append(sinks, s)
	}
	if postgresURL != "" {
		s, err := sink.OpenPostgres(ctx, postgresURL, postgresTable)
		if err != nil {
			abortOpened()
			return nil, fmt.Errorf("postgres: %w", err)
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 1 {
		return primary, nil
	}
	return sink.Multi(sinks...), nil
}

func fatalf(msg string, args ...any) {
	fmt.Fprintf(os.Stderr, msg+"\n", args...)
	os.Exit(1)
}
