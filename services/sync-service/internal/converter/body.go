package converter

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	synmodels "github.com/stoik/mailsync/services/sync-service/internal/models"
)

var (
	whitespaceRegex = regexp.MustCompile(`[^\S\n]+`)
	invisibleRegex  = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}]+`)
)

// body decodes the provider body. It is plain text when it contains no element.
func body(content string) synmodels.EmailBody {
	b := synmodels.EmailBody{Content: content, IsText: true, Text: strings.TrimSpace(content)}
	if content == "" {
		return b
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return b
	}
	if doc.Find("body").Children().Length() == 0 && doc.Find("head").Children().Length() == 0 {
		return b
	}

	b.IsText = false
	b.Text = htmlText(doc)
	return b
}

// htmlText renders a document as plain text, one line per block element
func htmlText(doc *goquery.Document) string {
	doc.Find("script, style, head, meta, link").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("p, div, h1, h2, h3, h4, h5, h6, li, tr").Each(func(i int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})

	text := invisibleRegex.ReplaceAllString(doc.Text(), "")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}
