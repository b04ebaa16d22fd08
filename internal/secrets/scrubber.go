package secrets

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	gitleaksConfig "github.com/zricethezav/gitleaks/v8/config"
	"github.com/zricethezav/gitleaks/v8/detect"
	gitleaksRegexp "github.com/zricethezav/gitleaks/v8/regexp"
)

const previewLen = 4

// Scrubber redacts secrets from text. It is safe for concurrent use.
type Scrubber struct {
	cfg gitleaksConfig.Config
}

// NewScrubber loads the gitleaks default rules once and merges the
// allowlist into them. allowlist may be nil.
func NewScrubber(allowlist *Allowlist) (*Scrubber, error) {
	base, err := detect.NewDetectorDefaultConfig()
	if err != nil {
		return nil, fmt.Errorf("loading gitleaks rules: %w", err)
	}
	cfg := base.Config
	if allowlist != nil && len(allowlist.Regexes) > 0 {
		if err := applyAllowlist(&cfg, allowlist); err != nil {
			return nil, err
		}
	}
	return &Scrubber{cfg: cfg}, nil
}

// applyAllowlist appends a global allowlist entry to the gitleaks config.
func applyAllowlist(cfg *gitleaksConfig.Config, allowlist *Allowlist) error {
	entry := &gitleaksConfig.Allowlist{Description: "ragd allowlist"}
	for _, pattern := range allowlist.Regexes {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("%w: %q: %v", ErrInvalidRegex, pattern, err)
		}
		entry.Regexes = append(entry.Regexes, (*gitleaksRegexp.Regexp)(re))
	}
	entry.StopWords = append(entry.StopWords, allowlist.Regexes...)
	cfg.Allowlists = append(cfg.Allowlists, entry)
	return nil
}

// Scrub returns content with every detected secret replaced by a marker.
func (s *Scrubber) Scrub(ctx context.Context, content string) (*Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// A detector accumulates findings across calls, so each scan gets its own.
	detector := detect.NewDetector(s.cfg)
	leaks := detector.DetectString(content)

	findings := make([]Finding, 0, len(leaks))
	for _, l := range leaks {
		if l.Secret == "" {
			continue
		}
		findings = append(findings, Finding{
			RuleID:      l.RuleID,
			Description: l.Description,
			Line:        l.StartLine,
			Length:      len(l.Secret),
			secret:      l.Secret,
		})
	}

	result := newResult(content, findings)
	result.Duration = time.Since(start)
	return result, nil
}

// span is a byte range of content to replace.
type span struct {
	start, end int
	marker     string
}

// redact replaces every occurrence of each finding's secret. Overlapping
// ranges are merged and keep the marker of the earliest one.
func redact(content string, findings []Finding) string {
	var spans []span
	for _, f := range findings {
		marker := fmt.Sprintf("[REDACTED:%s:%s]", f.RuleID, preview(f.secret))
		for offset := 0; offset < len(content); {
			i := strings.Index(content[offset:], f.secret)
			if i < 0 {
				break
			}
			start := offset + i
			spans = append(spans, span{start: start, end: start + len(f.secret), marker: marker})
			offset = start + len(f.secret)
		}
	}
	if len(spans) == 0 {
		return content
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })
	merged := []span{spans[0]}
	for _, cur := range spans[1:] {
		last := &merged[len(merged)-1]
		if cur.start < last.end {
			if cur.end > last.end {
				last.end = cur.end
			}
			continue
		}
		merged = append(merged, cur)
	}

	var b strings.Builder
	b.Grow(len(content))
	prev := 0
	for _, sp := range merged {
		b.WriteString(content[prev:sp.start])
		b.WriteString(sp.marker)
		prev = sp.end
	}
	b.WriteString(content[prev:])
	return b.String()
}

func preview(s string) string {
	if len(s) <= previewLen {
		return s
	}
	return s[:previewLen]
}
