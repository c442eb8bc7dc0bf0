package ingest

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/grimoire-ai/grimoire/internal/notation"
)

// Extractor turns one raw record into zero or more normalized Documents.
// Each category-specific path below is declared explicitly: a missing
// field is tolerated, an unparseable record is reported as Err without
// aborting the caller's run.
type Extractor struct {
	// MinContentChars is the minimum normalized content length below
	// which a document is dropped rather than stored.
	MinContentChars int
}

// Extract parses one record and applies the per-category extraction
// rules. filePath is recorded on the resulting documents; category is
// the label assigned during discovery.
func (e *Extractor) Extract(data []byte, filePath, category string) ExtractResult {
	var counters notation.Counters

	if !gjson.ValidBytes(data) {
		return ExtractResult{
			Err:      fmt.Errorf("invalid JSON in %s", filePath),
			Notation: counters,
		}
	}
	record := gjson.ParseBytes(data)

	switch category {
	case "journal":
		return e.extractJournal(record, filePath, &counters)
	case "hazard":
		return e.extractHazard(record, filePath, &counters)
	default:
		return e.extractStandard(record, filePath, category, &counters)
	}
}

// extractStandard reads the single rich-text description field common to
// spells, feats, actions, equipment and the other standard categories.
func (e *Extractor) extractStandard(record gjson.Result, filePath, category string, counters *notation.Counters) ExtractResult {
	raw := record.Get("system.description.value").String()

	if strings.TrimSpace(raw) == "" {
		return ExtractResult{Skipped: true, SkipReason: SkipEmptyDescription, Notation: *counters}
	}
	if notation.IsLocalizeOnly(raw) {
		return ExtractResult{Skipped: true, SkipReason: SkipLocalizeOnly, Notation: *counters}
	}

	content := notation.Normalize(raw, counters)
	if len(content) < e.MinContentChars {
		return ExtractResult{Skipped: true, SkipReason: SkipContentTooShort, Notation: *counters}
	}

	name := record.Get("name").String()
	if name == "" {
		name = "Unknown"
	}
	recordType := record.Get("type").String()
	if recordType == "" {
		recordType = category
	}

	metadata := standardMetadata(record)
	for k, v := range categoryMetadata(record, category) {
		metadata[k] = v
	}

	return ExtractResult{
		Documents: []Document{{
			SourceID:   record.Get("_id").String(),
			SourceFile: filePath,
			Name:       name,
			Type:       recordType,
			Category:   category,
			Source:     record.Get("system.publication.title").String(),
			Content:    content,
			Metadata:   metadata,
		}},
		Notation: *counters,
	}
}

// extractHazard concatenates the hazard's labeled rich-text fields and
// any nested sub-item descriptions into one document.
func (e *Extractor) extractHazard(record gjson.Result, filePath string, counters *notation.Counters) ExtractResult {
	var parts []string

	if raw := record.Get("system.details.description").String(); raw != "" {
		parts = append(parts, notation.Normalize(raw, counters))
	}
	for _, field := range []struct{ path, label string }{
		{"system.details.disable", "Disable"},
		{"system.details.reset", "Reset"},
		{"system.details.routine", "Routine"},
	} {
		if raw := record.Get(field.path).String(); raw != "" {
			parts = append(parts, field.label+": "+notation.Normalize(raw, counters))
		}
	}

	record.Get("items").ForEach(func(_, item gjson.Result) bool {
		raw := item.Get("system.description.value").String()
		if raw == "" {
			return true
		}
		clean := notation.Normalize(raw, counters)
		if clean == "" {
			return true
		}
		if itemName := item.Get("name").String(); itemName != "" {
			parts = append(parts, itemName+": "+clean)
		} else {
			parts = append(parts, clean)
		}
		return true
	})

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	content := strings.Join(nonEmpty, "\n\n")

	if len(content) < e.MinContentChars {
		return ExtractResult{Skipped: true, SkipReason: SkipContentTooShort, Notation: *counters}
	}

	name := record.Get("name").String()
	if name == "" {
		name = "Unknown"
	}

	metadata := map[string]any{}
	if level := record.Get("system.details.level.value"); level.Exists() {
		metadata["level"] = level.Value()
	}
	if traits := stringSlice(record.Get("system.traits.value")); len(traits) > 0 {
		metadata["traits"] = traits
	}
	if rarity := record.Get("system.traits.rarity").String(); rarity != "" && rarity != "common" {
		metadata["rarity"] = rarity
	}
	if record.Get("system.details.isComplex").Bool() {
		metadata["isComplex"] = true
	}
	if ac := record.Get("system.attributes.ac.value"); ac.Exists() {
		metadata["ac"] = ac.Value()
	}
	if hp := record.Get("system.attributes.hp.max"); hp.Exists() {
		metadata["hp"] = hp.Value()
	}

	return ExtractResult{
		Documents: []Document{{
			SourceID:   record.Get("_id").String(),
			SourceFile: filePath,
			Name:       name,
			Type:       "hazard",
			Category:   "hazard",
			Source:     record.Get("system.details.publication.title").String(),
			Content:    content,
			Metadata:   metadata,
		}},
		Notation: *counters,
	}
}

// extractJournal yields one document per page with usable content.
// Unusable pages are skipped individually; the whole record is skipped
// only when it has no pages or every page was skipped.
func (e *Extractor) extractJournal(record gjson.Result, filePath string, counters *notation.Counters) ExtractResult {
	journalName := record.Get("name").String()
	if journalName == "" {
		journalName = "Unknown Journal"
	}

	pages := record.Get("pages")
	if !pages.Exists() || len(pages.Array()) == 0 {
		return ExtractResult{Skipped: true, SkipReason: SkipNoPages, Notation: *counters}
	}

	category := journalCategory(journalName)

	var documents []Document
	pagesSkipped := 0
	for _, page := range pages.Array() {
		raw := page.Get("text.content").String()
		if strings.TrimSpace(raw) == "" || notation.IsLocalizeOnly(raw) {
			pagesSkipped++
			continue
		}
		content := notation.Normalize(raw, counters)
		if len(content) < e.MinContentChars {
			pagesSkipped++
			continue
		}

		pageName := page.Get("name").String()
		if pageName == "" {
			pageName = "Unknown Page"
		}

		documents = append(documents, Document{
			SourceID:   page.Get("_id").String(),
			SourceFile: filePath,
			Name:       pageName,
			Type:       "journal",
			Category:   category,
			Source:     journalName,
			Content:    content,
			Metadata:   map[string]any{"journalName": journalName},
		})
	}

	if len(documents) == 0 {
		return ExtractResult{Skipped: true, SkipReason: SkipAllPagesEmpty, Notation: *counters}
	}

	return ExtractResult{Documents: documents, PagesSkipped: pagesSkipped, Notation: *counters}
}

// journalCategory maps a journal's display name to a retrieval category.
func journalCategory(journalName string) string {
	lower := strings.ToLower(journalName)
	switch {
	case strings.Contains(lower, "class"):
		return "class-journal"
	case strings.Contains(lower, "ancestr"):
		return "ancestry-journal"
	case strings.Contains(lower, "archetype"):
		return "archetype-journal"
	case strings.Contains(lower, "domain"):
		return "domain-journal"
	case strings.Contains(lower, "gm"),
		strings.Contains(lower, "screen"),
		strings.Contains(lower, "remaster"),
		strings.Contains(lower, "hero"):
		return "rules"
	default:
		return "journal"
	}
}

// standardMetadata extracts the metadata subset shared by all standard
// categories.
func standardMetadata(record gjson.Result) map[string]any {
	meta := map[string]any{}

	if level := record.Get("system.level.value"); level.Exists() {
		meta["level"] = level.Value()
	}
	if traits := stringSlice(record.Get("system.traits.value")); len(traits) > 0 {
		meta["traits"] = traits
	}
	if rarity := record.Get("system.traits.rarity").String(); rarity != "" && rarity != "common" {
		meta["rarity"] = rarity
	}
	if record.Get("system.publication.remaster").Bool() {
		meta["remaster"] = true
	}
	if license := record.Get("system.publication.license").String(); license != "" {
		meta["license"] = license
	}

	return meta
}

// categoryMetadata extracts the fields specific to one category. Unknown
// categories receive no extra fields.
func categoryMetadata(record gjson.Result, category string) map[string]any {
	meta := map[string]any{}

	switch category {
	case "spell":
		if traditions := stringSlice(record.Get("system.traits.traditions")); len(traditions) > 0 {
			meta["traditions"] = traditions
		}
		if v := record.Get("system.time.value").String(); v != "" {
			meta["castingTime"] = v
		}
		if v := record.Get("system.range.value").String(); v != "" {
			meta["range"] = v
		}
		if v := record.Get("system.duration.value").String(); v != "" {
			meta["duration"] = v
		}
		if v := record.Get("system.defense.save.statistic").String(); v != "" {
			meta["save"] = v
		}
	case "feat":
		if v := record.Get("system.category").String(); v != "" {
			meta["featCategory"] = v
		}
		if v := record.Get("system.actionType.value").String(); v != "" {
			meta["actionType"] = v
		}
		var prereqs []string
		record.Get("system.prerequisites.value").ForEach(func(_, p gjson.Result) bool {
			if v := p.Get("value").String(); v != "" {
				prereqs = append(prereqs, v)
			}
			return true
		})
		if len(prereqs) > 0 {
			meta["prerequisites"] = prereqs
		}
	case "action":
		if v := record.Get("system.actionType.value").String(); v != "" {
			meta["actionType"] = v
		}
		if v := record.Get("system.actions.value"); v.Exists() && v.Type != gjson.Null {
			meta["actionCost"] = v.Value()
		}
	case "equipment":
		if v := record.Get("system.price.value"); v.Exists() {
			meta["price"] = v.Value()
		}
		if v := record.Get("system.bulk.value"); v.Exists() {
			meta["bulk"] = v.Value()
		}
		if v := record.Get("system.usage.value").String(); v != "" {
			meta["usage"] = v
		}
	case "class":
		if v := record.Get("system.hp"); v.Exists() && v.Int() != 0 {
			meta["hp"] = v.Value()
		}
		if keyAbility := stringSlice(record.Get("system.keyAbility.value")); len(keyAbility) > 0 {
			meta["keyAbility"] = keyAbility
		}
	case "ancestry":
		if v := record.Get("system.hp"); v.Exists() && v.Int() != 0 {
			meta["hp"] = v.Value()
		}
		if v := record.Get("system.speed"); v.Exists() && v.Int() != 0 {
			meta["speed"] = v.Value()
		}
		if v := record.Get("system.size").String(); v != "" {
			meta["size"] = v
		}
		if v := record.Get("system.vision").String(); v != "" {
			meta["vision"] = v
		}
		if languages := stringSlice(record.Get("system.languages.value")); len(languages) > 0 {
			meta["languages"] = languages
		}
	case "deity":
		if v := record.Get("system.domains"); v.Exists() {
			meta["domains"] = v.Value()
		}
		if skill := stringSlice(record.Get("system.skill")); len(skill) > 0 {
			meta["skill"] = skill
		}
		if v := record.Get("system.category").String(); v != "" {
			meta["deityCategory"] = v
		}
	case "background":
		if v := record.Get("system.trainedSkills"); v.Exists() {
			meta["trainedSkills"] = v.Value()
		}
	}

	return meta
}

func stringSlice(r gjson.Result) []string {
	if !r.IsArray() {
		return nil
	}
	var out []string
	r.ForEach(func(_, v gjson.Result) bool {
		out = append(out, v.String())
		return true
	})
	return out
}
