package ingest

import (
	"strings"
	"testing"
)

func testDoc(name, content string) Document {
	return Document{
		SourceID:   "abc123",
		SourceFile: "spells/" + name + ".json",
		Name:       name,
		Type:       "spell",
		Category:   "spell",
		Source:     "Player Core",
		Content:    content,
	}
}

func TestChunkSingleUnderBudget(t *testing.T) {
	c := &Chunker{MaxChars: 6000, OverlapChars: 200}
	doc := testDoc("Fireball", "A roaring blast of fire.")

	chunks := c.Chunk(doc)
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	got := chunks[0]
	if got.Title != "Fireball" {
		t.Errorf("title = %q, want %q", got.Title, "Fireball")
	}
	if got.Content != doc.Content {
		t.Errorf("content = %q, want unmodified document content", got.Content)
	}
	if got.Category != "spell" || got.Source != "Player Core" || got.SourceID != "abc123" {
		t.Errorf("chunk lost document fields: %+v", got)
	}
}

func TestChunkExactlyAtBudget(t *testing.T) {
	c := &Chunker{MaxChars: 50, OverlapChars: 10}
	content := strings.Repeat("a", 50)

	chunks := c.Chunk(testDoc("Edge", content))
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk at exact budget, got %d", len(chunks))
	}
	if chunks[0].Content != content {
		t.Errorf("content modified for single chunk")
	}
}

func TestChunkSplitsAtHeadings(t *testing.T) {
	c := &Chunker{MaxChars: 120, OverlapChars: 20}
	content := "Intro text before any heading.\n\n" +
		"CASTING THE SPELL\n" +
		"You trace sigils in the air.\n\n" +
		"HEIGHTENED EFFECTS\n" +
		"The damage increases by 2d6."

	chunks := c.Chunk(testDoc("Fireball", content))
	if len(chunks) < 2 {
		t.Fatalf("expected heading split to produce multiple chunks, got %d", len(chunks))
	}

	var sawHeadingTitle bool
	for _, ch := range chunks {
		if strings.TrimSpace(ch.Content) == "" {
			t.Errorf("empty chunk content in %q", ch.Title)
		}
		if !strings.HasPrefix(ch.Content, "Fireball\n\n") {
			t.Errorf("chunk %q missing name prefix: %q", ch.Title, ch.Content)
		}
		if strings.HasPrefix(ch.Title, "Fireball - ") {
			sawHeadingTitle = true
		}
	}
	if !sawHeadingTitle {
		t.Errorf("no chunk carried a heading-derived title: %+v", titles(chunks))
	}
}

func TestChunkHeadingTitleCase(t *testing.T) {
	c := &Chunker{MaxChars: 60, OverlapChars: 10}
	content := "Some opening paragraph that uses the budget up front.\n\n" +
		"AREA OF EFFECT\n" +
		"A twenty foot burst."

	chunks := c.Chunk(testDoc("Fireball", content))
	var found bool
	for _, ch := range chunks {
		if ch.Title == "Fireball - Area Of Effect" {
			found = true
		}
	}
	if !found {
		t.Errorf("want title %q in %v", "Fireball - Area Of Effect", titles(chunks))
	}
}

func TestChunkMergesSmallSections(t *testing.T) {
	c := &Chunker{MaxChars: 500, OverlapChars: 20}
	content := strings.Repeat("x", 495) + "\n\n" +
		"FIRST\n" +
		"aa.\n\n" +
		"SECOND\n" +
		"bb."

	chunks := c.Chunk(testDoc("Doc", content))
	// The two small trailing sections fit one budget together.
	last := chunks[len(chunks)-1]
	if !strings.Contains(last.Content, "FIRST") || !strings.Contains(last.Content, "SECOND") {
		t.Errorf("small adjacent sections not merged: %q", last.Content)
	}
}

func TestChunkOversizedSectionParagraphSplit(t *testing.T) {
	c := &Chunker{MaxChars: 100, OverlapChars: 10}
	big := strings.Repeat("p", 60) + "\n\n" + strings.Repeat("q", 60) + "\n\n" + strings.Repeat("r", 60)
	content := "Lead in paragraph text.\n\nBIG SECTION\n" + big

	chunks := c.Chunk(testDoc("Doc", content))
	var parts []Chunk
	for _, ch := range chunks {
		if strings.Contains(ch.Title, "Big Section (Part ") {
			parts = append(parts, ch)
		}
	}
	if len(parts) < 2 {
		t.Fatalf("oversized section not split into parts: %v", titles(chunks))
	}
	if parts[0].Title != "Doc - Big Section (Part 1)" {
		t.Errorf("part title = %q", parts[0].Title)
	}
}

func TestChunkNoHeadingsParagraphFallback(t *testing.T) {
	c := &Chunker{MaxChars: 100, OverlapChars: 15}
	p1 := strings.Repeat("a", 70)
	p2 := strings.Repeat("b", 70)
	p3 := strings.Repeat("c", 70)
	doc := testDoc("Longform", p1+"\n\n"+p2+"\n\n"+p3)

	chunks := c.Chunk(doc)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d: %v", len(chunks), titles(chunks))
	}
	for i, ch := range chunks {
		want := "Longform (Part " + string(rune('1'+i)) + ")"
		if ch.Title != want {
			t.Errorf("chunk %d title = %q, want %q", i, ch.Title, want)
		}
		if !strings.HasPrefix(ch.Content, "Longform\n\n") {
			t.Errorf("chunk %d missing name prefix", i)
		}
	}

	// Overlap: chunk 2 carries a suffix of chunk 1's text.
	if !strings.Contains(chunks[1].Content, strings.Repeat("a", 15)+"\n\n"+p2) {
		t.Errorf("second chunk missing overlap context: %q", chunks[1].Content)
	}
}

func TestChunkReadingOrderPreserved(t *testing.T) {
	c := &Chunker{MaxChars: 80, OverlapChars: 0}
	content := "first paragraph here\n\nsecond paragraph here\n\nthird paragraph here\n\nfourth paragraph here"

	chunks := c.Chunk(testDoc("Doc", content))
	var joined strings.Builder
	for _, ch := range chunks {
		joined.WriteString(ch.Content)
	}
	all := joined.String()
	for _, word := range []string{"first", "second", "third", "fourth"} {
		if !strings.Contains(all, word) {
			t.Fatalf("lost paragraph %q", word)
		}
	}
	if strings.Index(all, "first") > strings.Index(all, "second") ||
		strings.Index(all, "second") > strings.Index(all, "third") ||
		strings.Index(all, "third") > strings.Index(all, "fourth") {
		t.Errorf("chunks out of reading order")
	}
}

func TestIsHeadingLine(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"CASTING THE SPELL", true},
		{"AREA", true},
		{"ABC", true},
		{"AB", false},
		{"Casting the Spell", false},
		{"123", false},
		{"---", false},
		{"===", false},
		{"| CELL | CELL |", false},
		{"DC 20", true},
		{"", false},
	}
	for _, tt := range tests {
		if got := isHeadingLine(tt.line); got != tt.want {
			t.Errorf("isHeadingLine(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func titles(chunks []Chunk) []string {
	out := make([]string, len(chunks))
	for i, ch := range chunks {
		out[i] = ch.Title
	}
	return out
}
