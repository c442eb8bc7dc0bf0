package ingest

import (
	"fmt"
	"regexp"
	"strings"
)

// Chunker splits a normalized document into bounded-length chunks along
// heading, then paragraph, boundaries. It is a pure function of one
// document: chunk order matches reading order, and paragraph-level splits
// carry a fixed-size character overlap from their predecessor.
//
// Heading detection keys off the all-uppercase line convention produced
// by notation.HTMLToText. If that rendering changes, heading detection
// silently degrades to paragraph-only splitting.
type Chunker struct {
	// MaxChars is the chunk character budget.
	MaxChars int

	// OverlapChars is the trailing-context overlap carried across a
	// paragraph-level split.
	OverlapChars int
}

type section struct {
	heading string
	body    string
}

var (
	paragraphRe = regexp.MustCompile(`\n\n+`)
	separatorRe = regexp.MustCompile(`^[-=*_]+$`)
	digitsRe    = regexp.MustCompile(`^\d+$`)
	letterRe    = regexp.MustCompile(`[A-Z]`)
	wordStartRe = regexp.MustCompile(`\b\w`)
)

// Chunk splits doc into one or more chunks. Content at or under the
// budget yields a single chunk equal to the whole document.
func (c *Chunker) Chunk(doc Document) []Chunk {
	if len(doc.Content) <= c.MaxChars {
		return []Chunk{c.newChunk(doc, doc.Name, doc.Content)}
	}

	sections := splitAtHeadings(doc.Content)
	if len(sections) > 1 {
		return c.chunkBySections(sections, doc)
	}

	// No headings detected: split directly at paragraph boundaries.
	texts := c.splitAtParagraphs(doc.Content)
	if len(texts) == 1 {
		return []Chunk{c.newChunk(doc, doc.Name, texts[0])}
	}

	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		title := fmt.Sprintf("%s (Part %d)", doc.Name, i+1)
		chunks = append(chunks, c.newChunk(doc, title, doc.Name+"\n\n"+text))
	}
	return chunks
}

// chunkBySections merges consecutive sections into a running chunk while
// it stays within budget, closing the chunk when the next section would
// exceed it. An oversized single section is split further at paragraph
// boundaries.
func (c *Chunker) chunkBySections(sections []section, doc Document) []Chunk {
	var chunks []Chunk

	currentTitle := doc.Name
	var current string

	flush := func() {
		if strings.TrimSpace(current) != "" {
			chunks = append(chunks, c.newChunk(doc, currentTitle, doc.Name+"\n\n"+current))
		}
		current = ""
	}

	for _, sec := range sections {
		sectionText := sec.body
		if sec.heading != "" {
			sectionText = sec.heading + "\n\n" + sec.body
		}

		if len(current)+len(sectionText)+2 > c.MaxChars && current != "" {
			flush()
			currentTitle = doc.Name
			if sec.heading != "" {
				currentTitle = doc.Name + " - " + headingTitle(sec.heading)
			}
		}

		if len(sectionText) > c.MaxChars {
			flush()

			sectionTitle := doc.Name
			if sec.heading != "" {
				sectionTitle = doc.Name + " - " + headingTitle(sec.heading)
			}

			subTexts := c.splitAtParagraphs(sectionText)
			for i, text := range subTexts {
				title := sectionTitle
				if len(subTexts) > 1 {
					title = fmt.Sprintf("%s (Part %d)", sectionTitle, i+1)
				}
				chunks = append(chunks, c.newChunk(doc, title, doc.Name+"\n\n"+text))
			}
			currentTitle = doc.Name
			continue
		}

		if sec.heading != "" {
			currentTitle = doc.Name + " - " + headingTitle(sec.heading)
		}
		if current != "" {
			current += "\n\n"
		}
		current += sectionText
	}

	flush()
	return chunks
}

// splitAtHeadings divides text into sections at heading-like lines.
// A heading is a trimmed line that is entirely uppercase, at least 3
// characters, contains a letter, and is neither purely numeric, a
// separator run, nor a table row.
func splitAtHeadings(text string) []section {
	var sections []section
	var heading string
	var body []string

	push := func() {
		if len(body) > 0 || heading != "" {
			sections = append(sections, section{
				heading: heading,
				body:    strings.TrimSpace(strings.Join(body, "\n")),
			})
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if isHeadingLine(trimmed) {
			push()
			heading = trimmed
			body = nil
			continue
		}
		body = append(body, line)
	}
	push()

	return sections
}

func isHeadingLine(trimmed string) bool {
	return len(trimmed) >= 3 &&
		trimmed == strings.ToUpper(trimmed) &&
		letterRe.MatchString(trimmed) &&
		!digitsRe.MatchString(trimmed) &&
		!separatorRe.MatchString(trimmed) &&
		!strings.HasPrefix(trimmed, "|")
}

// splitAtParagraphs packs blank-line-delimited paragraphs into chunks
// under the budget, prepending a fixed-size suffix of the previous chunk
// to the next one as overlap context.
func (c *Chunker) splitAtParagraphs(text string) []string {
	var chunks []string
	var current string

	for _, para := range paragraphRe.Split(text, -1) {
		if len(current)+len(para)+2 > c.MaxChars && current != "" {
			chunks = append(chunks, strings.TrimSpace(current))
			overlap := current
			if len(overlap) > c.OverlapChars {
				overlap = overlap[len(overlap)-c.OverlapChars:]
			}
			current = overlap + "\n\n" + para
			continue
		}
		if current != "" {
			current += "\n\n"
		}
		current += para
	}

	if strings.TrimSpace(current) != "" {
		chunks = append(chunks, strings.TrimSpace(current))
	}

	return chunks
}

func (c *Chunker) newChunk(doc Document, title, content string) Chunk {
	return Chunk{
		Title:      title,
		Category:   doc.Category,
		Source:     doc.Source,
		Content:    content,
		SourceID:   doc.SourceID,
		SourceFile: doc.SourceFile,
		Metadata:   doc.Metadata,
	}
}

// headingTitle converts an ALL-CAPS heading to Title Case.
func headingTitle(heading string) string {
	lower := strings.ToLower(heading)
	return wordStartRe.ReplaceAllStringFunc(lower, strings.ToUpper)
}
