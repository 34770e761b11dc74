package textextract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

var (
	whitespaceRe = regexp.MustCompile(`[^\S\n]+`)
	newlineRe    = regexp.MustCompile(`\n{3,}`)
)

// HTMLToText converts an HTML email body or attachment into clean plain
// text suitable for entity extraction.
func HTMLToText(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()

	// Block elements become line breaks so label/value pairs keep their
	// line structure for the extraction rules.
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})
	// Table cells stay on their row's line, separated by a space.
	doc.Find("td, th").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml(" ")
	})

	text := doc.Text()
	text = whitespaceRe.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	var cleanLines []string
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line != "" {
			cleanLines = append(cleanLines, line)
		}
	}
	text = strings.Join(cleanLines, "\n")
	text = newlineRe.ReplaceAllString(text, "\n\n")

	return strings.TrimSpace(text), nil
}
