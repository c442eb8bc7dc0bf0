package notation

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	inlineSpaceRe  = regexp.MustCompile(`[ \t\r\n]+`)
	blankRunRe     = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe = regexp.MustCompile(`(?m)[ \t]+$`)
)

// HTMLToText flattens an HTML fragment to plain text preserving block
// structure: headings become uppercase lines, tables become data rows,
// horizontal rules become a literal separator, links keep only their
// text, images are skipped. Runs of more than one blank line and
// trailing horizontal whitespace are collapsed.
//
// NOTE: the chunker's heading detection depends on headings being
// rendered as all-uppercase lines here. Changing that convention
// silently degrades heading-aware chunking to paragraph-only splitting.
func HTMLToText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		// Malformed beyond html.Parse's tolerance: degrade to tag stripping.
		return cleanup(tagRe.ReplaceAllString(fragment, ""))
	}

	var r textRenderer
	for _, node := range doc.Find("body").Nodes {
		r.renderChildren(node)
	}

	return cleanup(r.b.String())
}

func cleanup(s string) string {
	s = trailingSpaceRe.ReplaceAllString(s, "")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// textRenderer walks an HTML node tree and accumulates plain text.
type textRenderer struct {
	b strings.Builder
}

func (r *textRenderer) renderChildren(n *html.Node) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		r.render(c)
	}
}

func (r *textRenderer) render(n *html.Node) {
	switch n.Type {
	case html.TextNode:
		r.b.WriteString(inlineSpaceRe.ReplaceAllString(n.Data, " "))
	case html.ElementNode:
		r.renderElement(n)
	default:
		r.renderChildren(n)
	}
}

func (r *textRenderer) renderElement(n *html.Node) {
	switch n.Data {
	case "script", "style", "img", "head", "template":
		// skipped
	case "br":
		r.newline()
	case "hr":
		r.block("---")
	case "h1", "h2", "h3", "h4", "h5", "h6":
		r.block(strings.ToUpper(inlineText(n)))
	case "p", "div", "section", "article", "blockquote", "aside", "figure":
		r.blankLine()
		r.renderChildren(n)
		r.blankLine()
	case "ul", "ol", "dl":
		r.blankLine()
		r.renderChildren(n)
		r.blankLine()
	case "li", "dt", "dd":
		r.newline()
		r.b.WriteString("* " + inlineText(n))
		r.newline()
	case "table":
		r.blankLine()
		r.renderTable(n)
		r.blankLine()
	default:
		// a, span, strong, em, and anything unknown render as inline text.
		r.renderChildren(n)
	}
}

func (r *textRenderer) renderTable(n *html.Node) {
	walkElements(n, func(row *html.Node) {
		var cells []string
		walkElements(row, func(cell *html.Node) {
			cells = append(cells, inlineText(cell))
		}, "td", "th")
		if len(cells) > 0 {
			r.b.WriteString(strings.Join(cells, " | "))
			r.newline()
		}
	}, "tr")
}

// newline ensures the builder ends with a single line break.
func (r *textRenderer) newline() {
	if s := r.b.String(); s != "" && !strings.HasSuffix(s, "\n") {
		r.b.WriteByte('\n')
	}
}

// blankLine ensures the builder ends at a paragraph boundary.
func (r *textRenderer) blankLine() {
	s := r.b.String()
	if s == "" || strings.HasSuffix(s, "\n\n") {
		return
	}
	if strings.HasSuffix(s, "\n") {
		r.b.WriteByte('\n')
		return
	}
	r.b.WriteString("\n\n")
}

// block writes s as its own paragraph.
func (r *textRenderer) block(s string) {
	r.blankLine()
	r.b.WriteString(s)
	r.blankLine()
}

// inlineText collects the text content of a node with whitespace
// collapsed, for line-oriented output (headings, list items, table cells).
func inlineText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			return
		}
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style" || n.Data == "img") {
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(inlineSpaceRe.ReplaceAllString(b.String(), " "))
}

// walkElements calls fn, in document order, for every descendant element
// whose name is one of tags, without descending into matches.
func walkElements(n *html.Node, fn func(*html.Node), tags ...string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			matched := false
			for _, tag := range tags {
				if c.Data == tag {
					fn(c)
					matched = true
					break
				}
			}
			if matched {
				continue
			}
		}
		walkElements(c, fn, tags...)
	}
}
