// Package notation rewrites the inline markup embedded in the corpus
// rich-text fields (cross-references, damage formulas, checks, area
// templates, embeds, localization placeholders, roll macros, action-cost
// glyphs) into plain readable text, then flattens the remaining HTML.
//
// Normalization is an ordered list of independent rewrite rules, each a
// pure string -> string function, composed left-to-right. Pass order is a
// correctness requirement: later rules must see earlier rules' output.
package notation

import (
	"fmt"
	"regexp"
	"strings"
)

// Counters tracks notation occurrences resolved during normalization.
// Diagnostic only; it never affects normalization output.
type Counters struct {
	UUIDRefs     int
	DamageRefs   int
	CheckRefs    int
	EmbedRefs    int
	LocalizeRefs int
}

// Add accumulates other into c.
func (c *Counters) Add(other Counters) {
	c.UUIDRefs += other.UUIDRefs
	c.DamageRefs += other.DamageRefs
	c.CheckRefs += other.CheckRefs
	c.EmbedRefs += other.EmbedRefs
	c.LocalizeRefs += other.LocalizeRefs
}

// Total returns the sum across all counters.
func (c *Counters) Total() int {
	return c.UUIDRefs + c.DamageRefs + c.CheckRefs + c.EmbedRefs + c.LocalizeRefs
}

var (
	actionGlyphRe = regexp.MustCompile(`(?i)<span\s+class="action-glyph">([^<]+)</span>`)

	uuidLabeledRe   = regexp.MustCompile(`@UUID\[([^\]]+)\]\{([^}]+)\}`)
	uuidUnlabeledRe = regexp.MustCompile(`@UUID\[([^\]]+)\]`)

	damageRe      = regexp.MustCompile(`@Damage\[([^\]]*(?:\[[^\]]*\])*[^\]]*)\]`)
	damageTypesRe = regexp.MustCompile(`\[([^\]]+)\]\s*$`)
	parenFormulaRe = regexp.MustCompile(`^\((.+)\)$`)

	checkRe = regexp.MustCompile(`@Check\[([^\]]+)\]`)

	templateLabeledRe   = regexp.MustCompile(`@Template\[([^\]]+)\]\{([^}]+)\}`)
	templateUnlabeledRe = regexp.MustCompile(`@Template\[([^\]]+)\]`)

	embedRe = regexp.MustCompile(`@Embed\[([^\]]+)\](?:\{([^}]+)\})?`)

	localizeRe = regexp.MustCompile(`@Localize\[([^\]]+)\]`)

	rollLabeledRe = regexp.MustCompile(`\[\[/[^\]]+\]\]\{([^}]+)\}`)
	rollGMRRe     = regexp.MustCompile(`\[\[/gmr\s+(\S+)[^\]]*\]\]`)
	rollAnyRe     = regexp.MustCompile(`\[\[[^\]]*\]\]`)

	tagRe = regexp.MustCompile(`<[^>]*>`)
	localizeStripRe = regexp.MustCompile(`@Localize\[[^\]]*\]`)
)

// actionGlyphs maps the glyph character conventions to bracketed tokens.
var actionGlyphs = map[string]string{
	"1": "[one-action]",
	"A": "[one-action]",
	"2": "[two-actions]",
	"D": "[two-actions]",
	"3": "[three-actions]",
	"T": "[three-actions]",
	"r": "[reaction]",
	"R": "[reaction]",
	"f": "[free-action]",
	"F": "[free-action]",
}

// saveTypes are the check types rendered as saves rather than checks.
var saveTypes = map[string]bool{
	"reflex":    true,
	"fortitude": true,
	"will":      true,
}

// Normalize converts a rich-text field into flat plain text.
// counters may be nil when no corpus statistics are wanted.
//
// Rule order matters and must not change: glyphs, cross-references,
// damage, checks, templates, embeds, localization, roll macros, and
// finally HTML flattening with whitespace cleanup.
func Normalize(raw string, counters *Counters) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	s := raw
	s = replaceActionGlyphs(s)
	s = replaceUUIDRefs(s, counters)
	s = replaceDamageRefs(s, counters)
	s = replaceCheckRefs(s, counters)
	s = replaceTemplateRefs(s)
	s = replaceEmbedRefs(s, counters)
	s = replaceLocalizeRefs(s, counters)
	s = replaceRollMacros(s)

	return HTMLToText(s)
}

// IsLocalizeOnly reports whether content reduces to nothing but
// localization placeholders once markup tags are removed. Such fields
// carry no text resolvable at ingestion time and are skipped upstream.
func IsLocalizeOnly(raw string) bool {
	stripped := tagRe.ReplaceAllString(raw, "")
	stripped = localizeStripRe.ReplaceAllString(stripped, "")
	return strings.TrimSpace(stripped) == ""
}

// replaceActionGlyphs rewrites action-cost glyph spans to bracketed
// tokens. Unrecognized glyph values degrade to a synthesized
// "[<value>-action]" token.
func replaceActionGlyphs(s string) string {
	return actionGlyphRe.ReplaceAllStringFunc(s, func(m string) string {
		glyph := strings.TrimSpace(actionGlyphRe.FindStringSubmatch(m)[1])
		if token, ok := actionGlyphs[glyph]; ok {
			return token
		}
		return fmt.Sprintf("[%s-action]", glyph)
	})
}

// replaceUUIDRefs rewrites cross-reference notation. A labeled reference
// becomes its label; an unlabeled one becomes the final path segment,
// humanized.
func replaceUUIDRefs(s string, counters *Counters) string {
	s = uuidLabeledRe.ReplaceAllStringFunc(s, func(m string) string {
		if counters != nil {
			counters.UUIDRefs++
		}
		return uuidLabeledRe.FindStringSubmatch(m)[2]
	})

	return uuidUnlabeledRe.ReplaceAllStringFunc(s, func(m string) string {
		if counters != nil {
			counters.UUIDRefs++
		}
		refPath := uuidUnlabeledRe.FindStringSubmatch(m)[1]
		segments := strings.Split(refPath, ".")
		last := segments[len(segments)-1]
		if last == "" {
			last = refPath
		}
		// "Effect: Name" style segments keep only the trailing text.
		if idx := strings.LastIndex(last, ":"); idx >= 0 {
			return strings.TrimSpace(last[idx+1:])
		}
		return kebabToTitle(last)
	})
}

// replaceDamageRefs rewrites damage-formula notation to
// "<formula> <types> damage". Formulas with unresolvable dynamic terms
// degrade to the damage types alone.
func replaceDamageRefs(s string, counters *Counters) string {
	return damageRe.ReplaceAllStringFunc(s, func(m string) string {
		if counters != nil {
			counters.DamageRefs++
		}
		inner := damageRe.FindStringSubmatch(m)[1]

		// Strip roll options (|options:xxx).
		mainPart := inner
		if idx := strings.Index(mainPart, "|"); idx >= 0 {
			mainPart = mainPart[:idx]
		}

		var types string
		formula := strings.TrimSpace(mainPart)
		if tm := damageTypesRe.FindStringSubmatch(mainPart); tm != nil {
			types = strings.ReplaceAll(tm[1], ",", " ")
			formula = strings.TrimSpace(mainPart[:strings.LastIndex(mainPart, "[")])
		}

		if fm := parenFormulaRe.FindStringSubmatch(formula); fm != nil {
			formula = fm[1]
		}

		// Dynamic formulas reference runtime item state and cannot be
		// resolved during ingestion.
		if strings.Contains(formula, "@item") ||
			strings.Contains(formula, "ceil(") ||
			strings.Contains(formula, "floor(") {
			if types != "" {
				return types + " damage"
			}
			return "damage"
		}

		switch {
		case formula != "" && types != "":
			return formula + " " + types + " damage"
		case formula != "":
			return formula + " damage"
		case types != "":
			return types + " damage"
		}
		return "damage"
	})
}

// replaceCheckRefs rewrites check notation to "<Type> save (DC n, basic)"
// for save-type checks and "<Type> check (DC n)" otherwise. DC and the
// basic qualifier appear only when present in the source notation.
func replaceCheckRefs(s string, counters *Counters) string {
	return checkRe.ReplaceAllStringFunc(s, func(m string) string {
		if counters != nil {
			counters.CheckRefs++
		}
		inner := checkRe.FindStringSubmatch(m)[1]

		var checkType, dc string
		var basic bool
		for _, part := range strings.Split(inner, "|") {
			switch {
			case strings.HasPrefix(part, "type:"):
				checkType = part[len("type:"):]
			case strings.HasPrefix(part, "dc:"):
				dc = part[len("dc:"):]
			case part == "basic":
				basic = true
			case !strings.HasPrefix(part, "options:") && !strings.HasPrefix(part, "traits:") && checkType == "":
				// The first unkeyed part is the check type.
				checkType = part
			}
		}

		label := capitalize(checkType)
		if saveTypes[strings.ToLower(checkType)] {
			label += " save"
		} else {
			label += " check"
		}

		var details []string
		if dc != "" {
			details = append(details, "DC "+dc)
		}
		if basic {
			details = append(details, "basic")
		}
		if len(details) > 0 {
			return label + " (" + strings.Join(details, ", ") + ")"
		}
		return label
	})
}

// replaceTemplateRefs rewrites area-template notation. An explicit label
// is used verbatim; otherwise the result is "<distance>-foot <shape>".
func replaceTemplateRefs(s string) string {
	s = templateLabeledRe.ReplaceAllStringFunc(s, func(m string) string {
		return templateLabeledRe.FindStringSubmatch(m)[2]
	})

	return templateUnlabeledRe.ReplaceAllStringFunc(s, func(m string) string {
		inner := templateUnlabeledRe.FindStringSubmatch(m)[1]
		parts := strings.Split(inner, "|")

		shape := parts[0]
		if shape == "" {
			shape = "area"
		}
		var distance string
		for _, part := range parts {
			if strings.HasPrefix(part, "distance:") {
				distance = part[len("distance:"):]
			}
		}

		if distance != "" {
			return distance + "-foot " + shape
		}
		return shape
	})
}

// replaceEmbedRefs rewrites embed notation to "[See: <label>]" when a
// label is present, else removes it entirely.
func replaceEmbedRefs(s string, counters *Counters) string {
	return embedRe.ReplaceAllStringFunc(s, func(m string) string {
		if counters != nil {
			counters.EmbedRefs++
		}
		sub := embedRe.FindStringSubmatch(m)
		if sub[2] != "" {
			return "[See: " + sub[2] + "]"
		}
		return ""
	})
}

// replaceLocalizeRefs removes localization placeholders, which cannot be
// resolved at ingestion time.
func replaceLocalizeRefs(s string, counters *Counters) string {
	return localizeRe.ReplaceAllStringFunc(s, func(string) string {
		if counters != nil {
			counters.LocalizeRefs++
		}
		return ""
	})
}

// replaceRollMacros rewrites [[...]] roll macros to their display label
// if present, else the dice-formula token, else removes them.
func replaceRollMacros(s string) string {
	s = rollLabeledRe.ReplaceAllStringFunc(s, func(m string) string {
		return rollLabeledRe.FindStringSubmatch(m)[1]
	})
	s = rollGMRRe.ReplaceAllStringFunc(s, func(m string) string {
		return rollGMRRe.FindStringSubmatch(m)[1]
	})
	return rollAnyRe.ReplaceAllString(s, "")
}

// kebabToTitle converts a kebab-case path segment to Title Case words.
func kebabToTitle(s string) string {
	words := strings.Split(strings.ReplaceAll(s, "-", " "), " ")
	for i, w := range words {
		words[i] = capitalize(w)
	}
	return strings.Join(words, " ")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
