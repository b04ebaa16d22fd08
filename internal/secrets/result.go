package secrets

import "time"

// Result is the outcome of one Scrub call.
type Result struct {
	// Content is the input with secrets replaced by markers.
	Content string `json:"-"`

	Findings []Finding      `json:"findings,omitempty"`
	ByRule   map[string]int `json:"by_rule,omitempty"`
	Duration time.Duration  `json:"duration"`
}

// Finding describes one detected secret. The value itself is never exported.
type Finding struct {
	RuleID      string `json:"rule_id"`
	Description string `json:"description"`
	Line        int    `json:"line"`
	Length      int    `json:"length"`

	secret string
}

func newResult(content string, findings []Finding) *Result {
	byRule := make(map[string]int, len(findings))
	for _, f := range findings {
		byRule[f.RuleID]++
	}
	return &Result{
		Content:  redact(content, findings),
		Findings: findings,
		ByRule:   byRule,
	}
}

// HasFindings returns true if any secret was redacted.
func (r *Result) HasFindings() bool {
	return len(r.Findings) > 0
}

// RuleIDs returns the distinct rule IDs that matched.
func (r *Result) RuleIDs() []string {
	ids := make([]string, 0, len(r.ByRule))
	for id := range r.ByRule {
		ids = append(ids, id)
	}
	return ids
}
