package ingest

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/grimoire-ai/grimoire/internal/log"
	"github.com/grimoire-ai/grimoire/internal/notation"
	"github.com/grimoire-ai/grimoire/internal/store"
)

// embeddingCostPerMTokens is the provider list price used for the dry-run
// estimate, in USD per million tokens.
const embeddingCostPerMTokens = 0.02

// charsPerToken is the rough chars-to-tokens ratio used for cost estimates.
const charsPerToken = 4

// Embedder produces one vector per input text, in input order.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore persists embedded chunks.
type ChunkStore interface {
	WriteChunks(ctx context.Context, rows []store.StoredChunk, batchSize int) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int64, error)
}

// Options control one pipeline run.
type Options struct {
	DataDir    string
	Categories []string

	// Clear deletes all existing rows before writing.
	Clear bool
	// DryRun parses and chunks but performs no embedding or writes.
	DryRun bool
	// SkipEmbedding writes rows without vectors.
	SkipEmbedding bool
}

// Summary is the accumulated outcome of one pipeline run. Skips and
// per-record errors are counted here rather than aborting the run.
type Summary struct {
	Files       int
	Parsed      int
	Documents   int
	Skipped     int
	Errors      int
	Chunks      int
	Characters  int
	SkipReasons map[string]int
	Notation    notation.Counters

	// EstimatedCost is the projected embedding spend in USD.
	EstimatedCost float64

	// StoredRows is the store row count after the run, -1 when not written.
	StoredRows int64
}

// Pipeline runs ingestion end to end: discover, extract, chunk, embed,
// write. Embedding batches and store batches run strictly sequentially.
type Pipeline struct {
	Extractor *Extractor
	Chunker   *Chunker
	Embedder  Embedder
	Store     ChunkStore
	Logger    log.Logger

	EmbedBatchSize int
	DBBatchSize    int
}

// Run executes one ingestion pass. Extraction skips and parse errors are
// accumulated into the summary; embedding failures that survive the retry
// policy and any store-write failure abort the run.
func (p *Pipeline) Run(ctx context.Context, opts Options) (*Summary, error) {
	files, err := Discover(opts.DataDir, FilterCategories(TargetCategories, opts.Categories), p.Logger)
	if err != nil {
		return nil, fmt.Errorf("discover records: %w", err)
	}

	summary := &Summary{SkipReasons: make(map[string]int), StoredRows: -1}
	summary.Files = len(files)

	var chunks []Chunk
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := os.ReadFile(f.Path)
		if err != nil {
			summary.Errors++
			p.Logger.Warn("unreadable record file", "path", f.Path, "error", err)
			continue
		}

		res := p.Extractor.Extract(data, f.Path, f.Category)
		summary.Notation.Add(res.Notation)
		summary.Skipped += res.PagesSkipped
		switch {
		case res.Err != nil:
			summary.Errors++
			p.Logger.Warn("malformed record", "path", f.Path, "error", res.Err)
			continue
		case res.Skipped:
			summary.Skipped++
			summary.SkipReasons[res.SkipReason]++
			continue
		}

		summary.Parsed++
		summary.Documents += len(res.Documents)
		for _, doc := range res.Documents {
			for _, ch := range p.Chunker.Chunk(doc) {
				summary.Characters += len(ch.Content)
				chunks = append(chunks, ch)
			}
		}
	}
	summary.Chunks = len(chunks)
	summary.EstimatedCost = EstimateCost(summary.Characters)

	p.Logger.Info("extraction complete",
		"files", summary.Files,
		"parsed", summary.Parsed,
		"documents", summary.Documents,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
		"chunks", summary.Chunks,
	)

	if opts.DryRun {
		return summary, nil
	}

	if opts.Clear {
		if err := p.Store.Clear(ctx); err != nil {
			return nil, fmt.Errorf("clear chunks: %w", err)
		}
		p.Logger.Info("cleared existing chunks")
	}

	var vectors [][]float32
	if !opts.SkipEmbedding {
		batchSize := p.EmbedBatchSize
		if batchSize <= 0 {
			batchSize = 100
		}
		vectors = make([][]float32, 0, len(chunks))
		for start := 0; start < len(chunks); start += batchSize {
			end := min(start+batchSize, len(chunks))
			texts := make([]string, 0, end-start)
			for _, ch := range chunks[start:end] {
				texts = append(texts, ch.Content)
			}

			batch, err := p.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return nil, fmt.Errorf("embed batch at chunk %d: %w", start, err)
			}
			vectors = append(vectors, batch...)
			p.Logger.Info("embedded batch", "done", end, "total", len(chunks))
		}
	}

	rows := make([]store.StoredChunk, 0, len(chunks))
	for i, ch := range chunks {
		row := store.StoredChunk{
			ID:       uuid.New(),
			Title:    ch.Title,
			Category: ch.Category,
			Source:   ch.Source,
			Content:  ch.Content,
			SourceID: ch.SourceID,
			Metadata: ch.Metadata,
		}
		if vectors != nil {
			row.Embedding = vectors[i]
		}
		rows = append(rows, row)
	}

	// A partial write cannot be verified, so a store failure is fatal
	// to the run.
	if err := p.Store.WriteChunks(ctx, rows, p.DBBatchSize); err != nil {
		return nil, fmt.Errorf("write chunks: %w", err)
	}

	count, err := p.Store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count chunks: %w", err)
	}
	summary.StoredRows = count
	p.Logger.Info("ingestion complete", "rows", count, "estimated_cost_usd", summary.EstimatedCost)

	return summary, nil
}

// EstimateCost projects embedding spend in USD for a corpus of the given
// character volume.
func EstimateCost(chars int) float64 {
	tokens := float64(chars) / charsPerToken
	return tokens / 1_000_000 * embeddingCostPerMTokens
}

// String renders the run summary the way the CLI prints it.
func (s *Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "files:      %d\n", s.Files)
	fmt.Fprintf(&b, "parsed:     %d\n", s.Parsed)
	fmt.Fprintf(&b, "documents:  %d\n", s.Documents)
	fmt.Fprintf(&b, "skipped:    %d\n", s.Skipped)
	fmt.Fprintf(&b, "errors:     %d\n", s.Errors)
	fmt.Fprintf(&b, "chunks:     %d\n", s.Chunks)
	fmt.Fprintf(&b, "characters: %d\n", s.Characters)
	fmt.Fprintf(&b, "est. cost:  $%.4f\n", s.EstimatedCost)
	if len(s.SkipReasons) > 0 {
		reasons := make([]string, 0, len(s.SkipReasons))
		for r := range s.SkipReasons {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		b.WriteString("skip reasons:\n")
		for _, r := range reasons {
			fmt.Fprintf(&b, "  %-20s %d\n", r, s.SkipReasons[r])
		}
	}
	if s.Notation.Total() > 0 {
		fmt.Fprintf(&b, "notation refs: %d (uuid %d, damage %d, check %d, embed %d, localize %d)\n",
			s.Notation.Total(), s.Notation.UUIDRefs, s.Notation.DamageRefs,
			s.Notation.CheckRefs, s.Notation.EmbedRefs, s.Notation.LocalizeRefs)
	}
	if s.StoredRows >= 0 {
		fmt.Fprintf(&b, "stored rows: %d\n", s.StoredRows)
	}
	return b.String()
}
