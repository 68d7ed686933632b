package ingest

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// strippedTags are removed before text extraction. They carry navigation and
// boilerplate, not page content, and would pollute embeddings.
const strippedTags = "nav, footer, script, style, header"

// CleanHTML extracts readable text from a page: non-content tags are removed,
// remaining text is joined with spaces and all whitespace runs collapse to a
// single space.
func CleanHTML(body []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	doc.Find(strippedTags).Remove()

	var sb strings.Builder
	doc.Find("body").Contents().Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text != "" {
			sb.WriteString(text)
			sb.WriteByte(' ')
		}
	})

	// Pages without a body element (fragments) still yield their text.
	if sb.Len() == 0 {
		sb.WriteString(doc.Text())
	}

	return strings.Join(strings.Fields(sb.String()), " "), nil
}
