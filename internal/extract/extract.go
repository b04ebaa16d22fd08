// Package extract turns uploaded file bytes into plain text, keyed by file
// extension.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUnsupportedType indicates no extractor is registered for the extension.
	ErrUnsupportedType = errors.New("unsupported file type")

	// ErrInvalidEncoding indicates a text file that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("file is not valid UTF-8")

	// ErrCorrupt indicates a structured file that could not be parsed.
	ErrCorrupt = errors.New("file could not be parsed")
)

// Extractor converts raw file content to text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (string, error)

// Extract implements Extractor.
func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (string, error) {
	return f(ctx, data)
}

// Registry maps lower-case extensions without the dot to extractors.
type Registry struct {
	extractors map[string]Extractor
}

// NewRegistry returns a registry with the built-in extractors.
func NewRegistry() *Registry {
	r := &Registry{extractors: make(map[string]Extractor)}
	r.Register("txt", ExtractorFunc(extractPlain))
	r.Register("md", ExtractorFunc(extractPlain))
	r.Register("html", ExtractorFunc(extractHTML))
	r.Register("htm", ExtractorFunc(extractHTML))
	r.Register("pdf", ExtractorFunc(extractPDF))
	r.Register("docx", ExtractorFunc(extractDOCX))
	r.Register("xlsx", ExtractorFunc(extractXLSX))
	return r
}

// Register adds or replaces the extractor for ext.
func (r *Registry) Register(ext string, e Extractor) {
	r.extractors[normalize(ext)] = e
}

// Supports reports whether an extractor exists for ext.
func (r *Registry) Supports(ext string) bool {
	_, ok := r.extractors[normalize(ext)]
	return ok
}

// Extensions lists registered extensions in sorted order.
func (r *Registry) Extensions() []string {
	out := make([]string, 0, len(r.extractors))
	for ext := range r.extractors {
		out = append(out, ext)
	}
	sort.Strings(out)
	return out
}

// Extract runs the extractor registered for ext.
func (r *Registry) Extract(ctx context.Context, ext string, data []byte) (string, error) {
	e, ok := r.extractors[normalize(ext)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return e.Extract(ctx, data)
}

// Ext returns the lower-case extension of filename without the dot.
func Ext(filename string) string {
	return normalize(filepath.Ext(filename))
}

func normalize(ext string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
}

func extractPlain(_ context.Context, data []byte) (string, error) {
	if !utf8.Valid(data) {
		return "", ErrInvalidEncoding
	}
	return strings.TrimPrefix(string(data), "\ufeff"), nil
}
