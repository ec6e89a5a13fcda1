package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"aboproducts/internal/csvtable"
)

const maxListedIDs = 50

type columnScore struct {
	Column            string  `json:"column"`
	InCandidate       bool    `json:"in_candidate"`
	EqualRows         int     `json:"equal_rows"`
	ComparedRows      int     `json:"compared_rows"`
	ExactMatchRatio   float64 `json:"exact_match_ratio"`
	MeanSimilarity    float64 `json:"mean_similarity"`
	FirstMismatchedID string  `json:"first_mismatched_id,omitempty"`
}

type rowAlignment struct {
	ReferenceRows         int      `json:"reference_rows"`
	CandidateRows         int      `json:"candidate_rows"`
	MatchedRows           int      `json:"matched_rows"`
	CoverageReference     float64  `json:"coverage_reference"`
	CoverageCandidate     float64  `json:"coverage_candidate"`
	SameOrder             bool     `json:"same_order"`
	MissingIDs            []string `json:"missing_ids,omitempty"`
	ExtraIDs              []string `json:"extra_ids,omitempty"`
	DuplicateReferenceIDs int      `json:"duplicate_reference_ids"`
	DuplicateCandidateIDs int      `json:"duplicate_candidate_ids"`

	pairs [][2]int
}

type report struct {
	Status                   string        `json:"status"`
	Reference                string        `json:"reference"`
	Candidate                string        `json:"candidate"`
	KeyColumn                string        `json:"key_column"`
	HeadersEqual             bool          `json:"headers_equal"`
	RowAlignment             rowAlignment  `json:"row_alignment"`
	Columns                  []columnScore `json:"columns"`
	DatasetSimilarity        float64       `json:"dataset_similarity"`
	OverallScoreWithCoverage float64       `json:"overall_score_with_coverage"`
}

func main() {
	reference := flag.String("reference", "../data/products.csv", "Reference product table")
	candidate := flag.String("candidate", "", "Candidate product table to compare against the reference")
	keyColumn := flag.String("key", "product_id", "Column used to align rows")
	outputJSON := flag.String("output-json", "", "Optional path to write the JSON report")
	flag.Parse()

	if *candidate == "" {
		fmt.Fprintln(os.Stderr, "missing -candidate")
		flag.Usage()
		os.Exit(2)
	}

	rep, err := compareProductTables(*reference, *candidate, *keyColumn)
	if err != nil {
		fmt.Fprintf(os.Stderr, "compare error: %v\n", err)
		os.Exit(1)
	}

	payload, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "json encode error: %v\n", err)
		os.Exit(1)
	}
	if *outputJSON == "" {
		fmt.Println(string(payload))
		return
	}
	if err := os.MkdirAll(filepath.Dir(*outputJSON), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outputJSON, append(payload, '\n'), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write report error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote JSON report: %s\n", *outputJSON)
	fmt.Printf("Status: %s\n", rep.Status)
	fmt.Printf("Coverage (reference/candidate): %.6f / %.6f\n", rep.RowAlignment.CoverageReference, rep.RowAlignment.CoverageCandidate)
	fmt.Printf("Dataset similarity: %.6f\n", rep.DatasetSimilarity)
}

func compareProductTables(referenceCSV, candidateCSV, key string) (report, error) {
	ref, err := csvtable.Load(referenceCSV)
	if err != nil {
		return report{}, fmt.Errorf("load reference: %w", err)
	}
	cand, err := csvtable.Load(candidateCSV)
	if err != nil {
		return report{}, fmt.Errorf("load candidate: %w", err)
	}

	rep := report{
		Reference:    ref.Path,
		Candidate:    cand.Path,
		KeyColumn:    key,
		HeadersEqual: slices.Equal(ref.Headers, cand.Headers),
	}
	if !slices.Contains(ref.Headers, key) || !slices.Contains(cand.Headers, key) {
		rep.Status = "no_key_column"
		rep.RowAlignment = rowAlignment{ReferenceRows: len(ref.Rows), CandidateRows: len(cand.Rows)}
		rep.Columns = []columnScore{}
		return rep, nil
	}

	rep.RowAlignment = alignRowsByKey(ref, cand, key)
	rep.Columns = scoreColumns(ref, cand, key, rep.RowAlignment.pairs)

	sims := make([]float64, 0, len(rep.Columns))
	for _, c := range rep.Columns {
		sims = append(sims, c.MeanSimilarity)
	}
	rep.DatasetSimilarity = round6(avgFloat(sims))
	rep.OverallScoreWithCoverage = round6(rep.DatasetSimilarity * rep.RowAlignment.CoverageReference)

	identical := rep.HeadersEqual &&
		len(ref.Rows) == len(cand.Rows) &&
		rep.RowAlignment.MatchedRows == len(ref.Rows)
	for _, c := range rep.Columns {
		identical = identical && c.EqualRows == c.ComparedRows
	}
	rep.Status = ternary(identical, "identical", "different")
	return rep, nil
}

// alignRowsByKey pairs the n-th occurrence of an id in the reference with the
// n-th occurrence in the candidate, so duplicate ids align one to one.
func alignRowsByKey(ref, cand csvtable.Table, key string) rowAlignment {
	refIdx := make(map[string][]int, len(ref.Rows))
	for i, row := range ref.Rows {
		refIdx[row[key]] = append(refIdx[row[key]], i)
	}
	candIdx := make(map[string][]int, len(cand.Rows))
	for i, row := range cand.Rows {
		candIdx[row[key]] = append(candIdx[row[key]], i)
	}

	out := rowAlignment{
		ReferenceRows: len(ref.Rows),
		CandidateRows: len(cand.Rows),
		SameOrder:     len(ref.Rows) == len(cand.Rows),
	}
	for _, idxs := range refIdx {
		if len(idxs) > 1 {
			out.DuplicateReferenceIDs++
		}
	}
	for _, idxs := range candIdx {
		if len(idxs) > 1 {
			out.DuplicateCandidateIDs++
		}
	}

	seen := make(map[string]int, len(cand.Rows))
	for ci, row := range cand.Rows {
		id := row[key]
		n := seen[id]
		seen[id] = n + 1
		if n < len(refIdx[id]) {
			ri := refIdx[id][n]
			out.pairs = append(out.pairs, [2]int{ri, ci})
			if ri != ci {
				out.SameOrder = false
			}
			continue
		}
		out.SameOrder = false
		if len(out.ExtraIDs) < maxListedIDs {
			out.ExtraIDs = append(out.ExtraIDs, id)
		}
	}
	used := make(map[string]int, len(ref.Rows))
	for _, row := range ref.Rows {
		id := row[key]
		n := used[id]
		used[id] = n + 1
		if n >= len(candIdx[id]) && len(out.MissingIDs) < maxListedIDs {
			out.MissingIDs = append(out.MissingIDs, id)
		}
	}

	out.MatchedRows = len(out.pairs)
	out.CoverageReference = round6(safeDiv(float64(out.MatchedRows), float64(len(ref.Rows))))
	out.CoverageCandidate = round6(safeDiv(float64(out.MatchedRows), float64(len(cand.Rows))))
	if len(ref.Rows) == 0 && len(cand.Rows) == 0 {
		out.CoverageReference, out.CoverageCandidate = 1, 1
	}
	return out
}

func scoreColumns(ref, cand csvtable.Table, key string, pairs [][2]int) []columnScore {
	out := make([]columnScore, 0, len(ref.Headers))
	for _, col := range ref.Headers {
		cs := columnScore{Column: col, InCandidate: slices.Contains(cand.Headers, col)}
		if !cs.InCandidate {
			out = append(out, cs)
			continue
		}
		sims := make([]float64, 0, len(pairs))
		for _, p := range pairs {
			a, b := ref.Rows[p[0]][col], cand.Rows[p[1]][col]
			cs.ComparedRows++
			if a == b {
				cs.EqualRows++
				sims = append(sims, 1)
				continue
			}
			if cs.FirstMismatchedID == "" {
				cs.FirstMismatchedID = ref.Rows[p[0]][key]
			}
			sims = append(sims, valueSimilarity(a, b))
		}
		cs.ExactMatchRatio = round6(safeDiv(float64(cs.EqualRows), float64(cs.ComparedRows)))
		cs.MeanSimilarity = round6(avgFloat(sims))
		if cs.ComparedRows == 0 {
			cs.ExactMatchRatio, cs.MeanSimilarity = 1, 1
		}
		out = append(out, cs)
	}
	return out
}

func valueSimilarity(a, b string) float64 {
	if isEmpty(a) && isEmpty(b) {
		return 1
	}
	if isEmpty(a) || isEmpty(b) {
		return 0
	}
	return normalizedLevenshteinSimilarity(strings.TrimSpace(a), strings.TrimSpace(b))
}

func normalizedLevenshteinSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	dist := levenshteinDistance(a, b)
	denom := max(len([]rune(a)), len([]rune(b)))
	if denom == 0 {
		return 1
	}
	return math.Max(0, 1-(float64(dist)/float64(denom)))
}

func levenshteinDistance(a, b string) int {
	ar := []rune(a)
	br := []rune(b)
	if string(ar) == string(br) {
		return 0
	}
	if len(ar) < len(br) {
		ar, br = br, ar
	}
	if len(br) == 0 {
		return len(ar)
	}
	prev := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i, ca := range ar {
		curr := make([]int, len(br)+1)
		curr[0] = i + 1
		for j, cb := range br {
			ins := curr[j] + 1
			del := prev[j+1] + 1
			sub := prev[j]
			if ca != cb {
				sub++
			}
			curr[j+1] = min(ins, del, sub)
		}
		prev = curr
	}
	return prev[len(prev)-1]
}

func isEmpty(v string) bool { return strings.TrimSpace(v) == "" }

func round6(v float64) float64 { return math.Round(v*1e6) / 1e6 }

func avgFloat(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func safeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

func ternary[T any](cond bool, a, b T) T {
	if cond {
		return a
	}
	return b
}
