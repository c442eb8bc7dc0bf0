// Package ingest implements the offline ingestion pipeline: discovery of
// structured record files, extraction and normalization into plain-text
// documents, heading/paragraph-aware chunking, batched embedding, and
// batched vector-store writes.
package ingest

import "github.com/grimoire-ai/grimoire/internal/notation"

// DiscoveredFile is one structured record file paired with its category label.
type DiscoveredFile struct {
	Path     string
	Category string
}

// Document is the normalized, flattened result of extracting one record
// (or one page of a multi-page record). It is consumed immediately by the
// chunker and never persisted on its own.
type Document struct {
	SourceID   string
	SourceFile string
	Name       string
	Type       string
	Category   string
	Source     string
	Content    string
	Metadata   map[string]any
}

// Chunk is a bounded unit of text derived from one Document, ready for
// embedding and storage.
type Chunk struct {
	Title      string
	Category   string
	Source     string
	Content    string
	SourceID   string
	SourceFile string
	Metadata   map[string]any
}

// Skip reasons recorded by the extractor. Skips are counted, never fatal.
const (
	SkipEmptyDescription = "empty-description"
	SkipLocalizeOnly     = "localize-only"
	SkipContentTooShort  = "content-too-short"
	SkipNoPages          = "no-pages"
	SkipAllPagesEmpty    = "all-pages-empty"
)

// ExtractResult is the outcome of extracting one record file.
type ExtractResult struct {
	Documents  []Document
	Skipped    bool
	SkipReason string
	// PagesSkipped counts individually skipped pages of a multi-page
	// record whose other pages still produced documents.
	PagesSkipped int
	Err          error
	Notation     notation.Counters
}

// TargetCategories maps a data directory name to the category label used
// in stored chunks.
var TargetCategories = map[string]string{
	"spells":                        "spell",
	"feats":                         "feat",
	"actions":                       "action",
	"conditions":                    "condition",
	"classes":                       "class",
	"ancestries":                    "ancestry",
	"heritages":                     "heritage",
	"backgrounds":                   "background",
	"class-features":                "class-feature",
	"ancestry-features":             "ancestry-feature",
	"equipment":                     "equipment",
	"deities":                       "deity",
	"journals":                      "journal",
	"hazards":                       "hazard",
	"familiar-abilities":            "familiar-ability",
	"bestiary-ability-glossary-srd": "bestiary-ability",
}
