package extract

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const blockSelector = "h1,h2,h3,h4,h5,h6,p,li,pre,blockquote,td,th,dt,dd,figcaption"

var blankLines = regexp.MustCompile(`[ \t]*\n[\s]*`)

// extractHTML returns the visible text of the body. Block elements become
// lines; script and style content is dropped.
func extractHTML(_ context.Context, data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: html: %v", ErrCorrupt, err)
	}
	doc.Find("script,style,noscript,template").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	var parts []string
	body.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// nested blocks are emitted by their innermost element
		if s.Find(blockSelector).Length() > 0 {
			return
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return cleanWhitespace(body.Text()), nil
	}
	return cleanWhitespace(strings.Join(parts, "\n")), nil
}

func cleanWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(blankLines.ReplaceAllString(s, "\n"))
}
