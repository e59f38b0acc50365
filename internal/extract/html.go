package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const htmlBlockSelector = "h1,h2,h3,h4,h5,h6,p,li,td,th,pre,blockquote"

// extractHTML returns the visible text blocks of an HTML page, one paragraph per block.
// Content inside main or article wins over the rest of the page when present.
func extractHTML(content []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("parse HTML: %w", err)
	}
	doc.Find("script,style,noscript,nav,footer").Remove()

	sel := doc.Find("main, article")
	if sel.Length() == 0 {
		sel = doc.Selection
	}
	var parts []string
	sel.Find(htmlBlockSelector).Each(func(_ int, s *goquery.Selection) {
		// nested blocks (li > p) are reported by the innermost element only
		if s.Find(htmlBlockSelector).Length() > 0 {
			return
		}
		if t := collapseWhitespace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return collapseWhitespace(doc.Find("body").Text()), nil
	}
	return strings.Join(parts, "\n\n"), nil
}
