package workspace

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"google.golang.org/api/docs/v1"
)

var docIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/d/([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`id=([a-zA-Z0-9_-]+)`),
	regexp.MustCompile(`^([a-zA-Z0-9_-]+)$`),
}

// ResolveDocumentID extracts a document ID from a Docs/Drive URL or a bare ID. Patterns are
// tried in order: /d/<id>, id=<id>, then the whole string as an ID.
func ResolveDocumentID(reference string) (string, bool) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return "", false
	}
	for _, re := range docIDPatterns {
		if m := re.FindStringSubmatch(reference); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ExtractText concatenates the text runs of top-level paragraphs and of paragraphs inside
// table cells, in document order. Whitespace-only runs are skipped and no separators are
// added. The result is trimmed.
func ExtractText(doc *docs.Document) string {
	if doc == nil || doc.Body == nil {
		return ""
	}
	var sb strings.Builder
	for _, el := range doc.Body.Content {
		switch {
		case el.Paragraph != nil:
			appendParagraph(&sb, el.Paragraph)
		case el.Table != nil:
			for _, row := range el.Table.TableRows {
				for _, cell := range row.TableCells {
					for _, content := range cell.Content {
						if content.Paragraph != nil {
							appendParagraph(&sb, content.Paragraph)
						}
					}
				}
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func appendParagraph(sb *strings.Builder, p *docs.Paragraph) {
	for _, el := range p.Elements {
		if el.TextRun == nil {
			continue
		}
		if strings.TrimSpace(el.TextRun.Content) == "" {
			continue
		}
		sb.WriteString(el.TextRun.Content)
	}
}

var blankLines = regexp.MustCompile(`\n\s*\n+`)

// HTMLText returns the visible text of an HTML document, without scripts and styles.
func HTMLText(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	sel := doc.Find("body")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	text := blankLines.ReplaceAllString(sel.Text(), "\n\n")
	return strings.TrimSpace(text), nil
}

// isTextMime reports whether a downloaded file of this type can be graded as plain text.
func isTextMime(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch mimeType {
	case "application/json", "application/xml", "application/sql", "application/x-yaml":
		return true
	}
	return false
}
