package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"aboproducts/internal/catalog"
	"aboproducts/internal/config"
	"aboproducts/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -path <products.sqlite>\n", os.Args[0])
		flag.PrintDefaults()
	}
	dbPath := flag.String("path", cfg.SQLitePath, "Path to the SQLite mirror written by extract-abo-products -sqlite")
	addr := flag.String("addr", cfg.ServerAddr, "HTTP listen address")
	imageRoot := flag.String("image-root", "", "Directory relative image paths are resolved against (the extractor's working directory); defaults to the server's working directory")
	sitemapChunkSize := flag.Int("sitemap-chunk-size", catalog.DefaultSitemapChunkSize, "Max product URLs per sitemap file (capped at 50000)")
	logLevel := flag.String("log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	logFile := flag.String("log-file", cfg.LogFile, "Optional rotated log file, in addition to stderr")
	logJSON := flag.Bool("log-json", cfg.LogJSON, "Log as JSON instead of text")
	flag.Parse()

	log, err := logging.New(logging.Options{Level: *logLevel, File: *logFile, JSON: *logJSON})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	if *dbPath == "" {
		log.Fatal("missing -path")
	}

	store, err := catalog.Open(*dbPath)
	if err != nil {
		log.WithError(err).Fatal("open catalog")
	}
	defer store.Close()

	srv := &http.Server{
		Addr:              *addr,
		Handler:           catalog.NewHandler(store, log, *sitemapChunkSize, catalog.WithImageRoot(*imageRoot)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.Infof("serve-products listening on %s (db=%s)", *addr, *dbPath)
	if err := srv.ListenAndServe(); err != nil {
		log.WithError(err).Fatal("server error")
	}
}
