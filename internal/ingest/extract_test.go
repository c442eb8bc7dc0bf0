package ingest

import (
	"strings"
	"testing"
)

func newExtractor() *Extractor {
	return &Extractor{MinContentChars: 20}
}

func TestExtractStandard(t *testing.T) {
	data := []byte(`{
		"_id": "spell-001",
		"name": "Fireball",
		"type": "spell",
		"system": {
			"description": {"value": "<p>A roaring blast of fire engulfs the area.</p>"},
			"publication": {"title": "Player Core", "remaster": true},
			"level": {"value": 3},
			"traits": {"value": ["evocation", "fire"], "rarity": "common", "traditions": ["arcane", "primal"]}
		}
	}`)

	res := newExtractor().Extract(data, "spells/fireball.json", "spell")
	if res.Err != nil || res.Skipped {
		t.Fatalf("result: %+v", res)
	}
	if len(res.Documents) != 1 {
		t.Fatalf("got %d documents", len(res.Documents))
	}

	doc := res.Documents[0]
	if doc.Name != "Fireball" || doc.SourceID != "spell-001" || doc.Source != "Player Core" {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Content != "A roaring blast of fire engulfs the area." {
		t.Errorf("content = %q", doc.Content)
	}
	if doc.Category != "spell" {
		t.Errorf("category = %q", doc.Category)
	}
	if _, ok := doc.Metadata["rarity"]; ok {
		t.Errorf("common rarity should not be recorded: %v", doc.Metadata)
	}
	traditions, ok := doc.Metadata["traditions"].([]string)
	if !ok || len(traditions) != 2 {
		t.Errorf("traditions = %v", doc.Metadata["traditions"])
	}
}

func TestExtractStandardSkips(t *testing.T) {
	tests := []struct {
		name   string
		data   string
		reason string
	}{
		{
			name:   "empty description",
			data:   `{"name": "X", "system": {"description": {"value": "  "}}}`,
			reason: SkipEmptyDescription,
		},
		{
			name:   "localize only",
			data:   `{"name": "X", "system": {"description": {"value": "<p>@Localize[PF2E.NPC.Abilities.Glossary.Grab]</p>"}}}`,
			reason: SkipLocalizeOnly,
		},
		{
			name:   "too short",
			data:   `{"name": "X", "system": {"description": {"value": "<p>tiny</p>"}}}`,
			reason: SkipContentTooShort,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := newExtractor().Extract([]byte(tt.data), "f.json", "spell")
			if !res.Skipped || res.SkipReason != tt.reason {
				t.Errorf("result = %+v, want skip %q", res, tt.reason)
			}
			if len(res.Documents) != 0 {
				t.Errorf("skipped record produced documents")
			}
		})
	}
}

func TestExtractMalformedJSON(t *testing.T) {
	res := newExtractor().Extract([]byte(`{not json`), "bad.json", "spell")
	if res.Err == nil {
		t.Fatal("expected parse error")
	}
	if res.Skipped || len(res.Documents) != 0 {
		t.Errorf("result = %+v", res)
	}
}

func TestExtractHazard(t *testing.T) {
	data := []byte(`{
		"_id": "haz-1",
		"name": "Spiked Pit",
		"type": "hazard",
		"system": {
			"details": {
				"description": "<p>A concealed pit with spikes at the bottom.</p>",
				"disable": "<p>Thievery DC 20 to seal the trapdoor.</p>",
				"reset": "<p>The trapdoor springs back shut.</p>",
				"level": {"value": 1},
				"isComplex": false,
				"publication": {"title": "Core Rulebook"}
			},
			"attributes": {"ac": {"value": 10}, "hp": {"max": 20}},
			"traits": {"value": ["trap"], "rarity": "common"}
		},
		"items": [
			{"name": "Spikes", "system": {"description": {"value": "<p>Sharpened wooden spikes.</p>"}}}
		]
	}`)

	res := newExtractor().Extract(data, "hazards/pit.json", "hazard")
	if res.Err != nil || res.Skipped {
		t.Fatalf("result: %+v", res)
	}
	doc := res.Documents[0]

	for _, want := range []string{
		"A concealed pit with spikes at the bottom.",
		"Disable: Thievery DC 20 to seal the trapdoor.",
		"Reset: The trapdoor springs back shut.",
		"Spikes: Sharpened wooden spikes.",
	} {
		if !strings.Contains(doc.Content, want) {
			t.Errorf("content missing %q:\n%s", want, doc.Content)
		}
	}
	if doc.Metadata["ac"] != float64(10) || doc.Metadata["hp"] != float64(20) {
		t.Errorf("metadata = %v", doc.Metadata)
	}
}

func TestExtractJournalSkipsPagesIndividually(t *testing.T) {
	data := []byte(`{
		"_id": "jrn-1",
		"name": "GM Screen",
		"pages": [
			{"_id": "p1", "name": "Empty Page", "text": {"content": "  "}},
			{"_id": "p2", "name": "Cover Rules", "text": {"content": "<p>Cover grants a circumstance bonus to AC.</p>"}}
		]
	}`)

	res := newExtractor().Extract(data, "journals/gm-screen.json", "journal")
	if res.Err != nil || res.Skipped {
		t.Fatalf("result: %+v", res)
	}
	if len(res.Documents) != 1 {
		t.Fatalf("got %d documents, want 1", len(res.Documents))
	}
	if res.PagesSkipped != 1 {
		t.Errorf("PagesSkipped = %d, want 1", res.PagesSkipped)
	}

	doc := res.Documents[0]
	if doc.Name != "Cover Rules" || doc.SourceID != "p2" {
		t.Errorf("doc = %+v", doc)
	}
	if doc.Category != "rules" {
		t.Errorf("category = %q, want rules for a GM screen journal", doc.Category)
	}
	if doc.Source != "GM Screen" {
		t.Errorf("source = %q", doc.Source)
	}
}

func TestExtractJournalAllPagesEmpty(t *testing.T) {
	data := []byte(`{
		"name": "Empty Journal",
		"pages": [
			{"name": "A", "text": {"content": ""}},
			{"name": "B", "text": {"content": "<p>x</p>"}}
		]
	}`)

	res := newExtractor().Extract(data, "journals/empty.json", "journal")
	if !res.Skipped || res.SkipReason != SkipAllPagesEmpty {
		t.Errorf("result = %+v, want all-pages-empty skip", res)
	}
}

func TestExtractJournalNoPages(t *testing.T) {
	res := newExtractor().Extract([]byte(`{"name": "Bare"}`), "journals/bare.json", "journal")
	if !res.Skipped || res.SkipReason != SkipNoPages {
		t.Errorf("result = %+v, want no-pages skip", res)
	}
}

func TestJournalCategory(t *testing.T) {
	tests := []struct {
		journal string
		want    string
	}{
		{"Classes", "class-journal"},
		{"Ancestries", "ancestry-journal"},
		{"Archetypes", "archetype-journal"},
		{"Domains", "domain-journal"},
		{"GM Screen", "rules"},
		{"Remaster Changes", "rules"},
		{"Hero Point Deck", "rules"},
		{"Travel Guide", "journal"},
	}
	for _, tt := range tests {
		if got := journalCategory(tt.journal); got != tt.want {
			t.Errorf("journalCategory(%q) = %q, want %q", tt.journal, got, tt.want)
		}
	}
}
