package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// extractPDF returns the text of each page, pages separated by a newline.
// Encrypted or malformed files are reported as ErrCorrupt.
func extractPDF(ctx context.Context, data []byte) (text string, err error) {
	// the reader panics on some malformed object graphs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: pdf: %v", ErrCorrupt, r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf: %v", ErrCorrupt, err)
	}

	fonts := make(map[string]*pdf.Font)
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		for _, name := range page.Fonts() {
			if _, ok := fonts[name]; !ok {
				f := page.Font(name)
				fonts[name] = &f
			}
		}
		content, err := page.GetPlainText(fonts)
		if err != nil {
			return "", fmt.Errorf("%w: pdf page %d: %v", ErrCorrupt, i, err)
		}
		pages = append(pages, content)
	}
	return strings.Join(pages, "\n"), nil
}
