package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"aboproducts/internal/csvtable"
)

const (
	defaultInput  = "../data/products.csv"
	defaultOutput = "../data/products_sample.csv"
	defaultSeed   = int64(20260224)
)

func main() {
	inPath := flag.String("input", defaultInput, "Input product table")
	outPath := flag.String("output", defaultOutput, "Output product table")
	seed := flag.Int64("seed", defaultSeed, "Deterministic shuffle seed")
	sampleRows := flag.Int("sample-rows", 0, "If > 0, keep only this many rows after shuffling")
	flag.Parse()

	tbl, err := csvtable.Load(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load csv error: %v\n", err)
		os.Exit(1)
	}

	rows := sampleRowsSeeded(tbl.Rows, *seed, *sampleRows)
	if err := csvtable.Save(*outPath, tbl.Headers, rows); err != nil {
		fmt.Fprintf(os.Stderr, "write csv error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Input:  %s\n", *inPath)
	fmt.Printf("Output: %s\n", *outPath)
	fmt.Printf("Seed:   %d\n", *seed)
	fmt.Printf("Rows:   %d of %d\n", len(rows), len(tbl.Rows))
}

// sampleRowsSeeded shuffles a copy of rows with a fixed seed and keeps the
// first n when n is positive. The input slice is not modified.
func sampleRowsSeeded(rows []map[string]string, seed int64, n int) []map[string]string {
	out := append([]map[string]string(nil), rows...)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if n > 0 && n < len(out) {
		out = out[:n]
	}
	return out
}
