package ingest

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/grimoire-ai/grimoire/internal/log"
	"github.com/grimoire-ai/grimoire/internal/notation"
)

// CategoryStats aggregates extraction outcomes for one category.
type CategoryStats struct {
	Files      int
	Parsed     int
	Skipped    int
	Errors     int
	Characters int
	Chunks     int
}

// Report is the outcome of a corpus analysis pass: extraction and
// chunking statistics without any embedding or store traffic.
type Report struct {
	Categories  map[string]*CategoryStats
	Notation    notation.Counters
	SkipReasons map[string]int

	TotalFiles      int
	TotalChunks     int
	TotalCharacters int
	EstimatedCost   float64

	chunkLengths []int
}

// ChunkLengthPercentile returns the chunk content length at percentile p
// (0 < p <= 100) using nearest-rank, or 0 when no chunks were seen.
func (r *Report) ChunkLengthPercentile(p int) int {
	if len(r.chunkLengths) == 0 || p <= 0 {
		return 0
	}
	sorted := make([]int, len(r.chunkLengths))
	copy(sorted, r.chunkLengths)
	sort.Ints(sorted)

	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}

// Analyzer inspects a corpus without writing anything. It shares the
// extractor and chunker with the real pipeline so its numbers predict an
// actual run.
type Analyzer struct {
	Extractor *Extractor
	Chunker   *Chunker
	Logger    log.Logger
}

// Analyze extracts and chunks every record under dataDir and returns the
// aggregate report.
func (a *Analyzer) Analyze(dataDir string, categories []string) (*Report, error) {
	files, err := Discover(dataDir, FilterCategories(TargetCategories, categories), a.Logger)
	if err != nil {
		return nil, fmt.Errorf("discover records: %w", err)
	}

	report := &Report{
		Categories:  make(map[string]*CategoryStats),
		SkipReasons: make(map[string]int),
	}
	for _, f := range files {
		stats := report.Categories[f.Category]
		if stats == nil {
			stats = &CategoryStats{}
			report.Categories[f.Category] = stats
		}
		stats.Files++
		report.TotalFiles++

		data, err := os.ReadFile(f.Path)
		if err != nil {
			stats.Errors++
			continue
		}

		res := a.Extractor.Extract(data, f.Path, f.Category)
		report.Notation.Add(res.Notation)
		stats.Skipped += res.PagesSkipped
		switch {
		case res.Err != nil:
			stats.Errors++
			continue
		case res.Skipped:
			stats.Skipped++
			report.SkipReasons[res.SkipReason]++
			continue
		}

		stats.Parsed++
		for _, doc := range res.Documents {
			for _, ch := range a.Chunker.Chunk(doc) {
				stats.Chunks++
				stats.Characters += len(ch.Content)
				report.TotalChunks++
				report.TotalCharacters += len(ch.Content)
				report.chunkLengths = append(report.chunkLengths, len(ch.Content))
			}
		}
	}

	report.EstimatedCost = EstimateCost(report.TotalCharacters)
	return report, nil
}

// String renders the report as an aligned per-category table.
func (r *Report) String() string {
	names := make([]string, 0, len(r.Categories))
	for name := range r.Categories {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %8s %8s %8s %8s %8s %12s\n",
		"category", "files", "parsed", "skipped", "errors", "chunks", "chars")
	for _, name := range names {
		s := r.Categories[name]
		fmt.Fprintf(&b, "%-20s %8d %8d %8d %8d %8d %12d\n",
			name, s.Files, s.Parsed, s.Skipped, s.Errors, s.Chunks, s.Characters)
	}
	fmt.Fprintf(&b, "\ntotal files: %d, chunks: %d, characters: %d\n",
		r.TotalFiles, r.TotalChunks, r.TotalCharacters)
	if r.TotalChunks > 0 {
		fmt.Fprintf(&b, "chunk length p50/p90/p99: %d / %d / %d\n",
			r.ChunkLengthPercentile(50), r.ChunkLengthPercentile(90), r.ChunkLengthPercentile(99))
	}
	if len(r.SkipReasons) > 0 {
		reasons := make([]string, 0, len(r.SkipReasons))
		for reason := range r.SkipReasons {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		parts := make([]string, 0, len(reasons))
		for _, reason := range reasons {
			parts = append(parts, fmt.Sprintf("%s %d", reason, r.SkipReasons[reason]))
		}
		fmt.Fprintf(&b, "skip reasons: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(&b, "notation refs: %d (uuid %d, damage %d, check %d, embed %d, localize %d)\n",
		r.Notation.Total(), r.Notation.UUIDRefs, r.Notation.DamageRefs,
		r.Notation.CheckRefs, r.Notation.EmbedRefs, r.Notation.LocalizeRefs)
	fmt.Fprintf(&b, "estimated embedding cost: $%.4f\n", r.EstimatedCost)
	return b.String()
}
