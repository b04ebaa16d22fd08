package reranker

import (
	"context"
	"strings"
	"unicode"
)

// LexicalScorer scores a text by the share of distinct query terms it
// contains, in [0, 1]. Terms are lowercased alphanumeric runs longer than
// two characters, minus common English stopwords.
type LexicalScorer struct{}

// NewLexicalScorer returns a LexicalScorer.
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{}
}

// Name implements Scorer.
func (LexicalScorer) Name() string { return "lexical" }

// Score implements Scorer.
func (LexicalScorer) Score(_ context.Context, query string, texts []string) ([]float64, error) {
	queryTerms := termSet(query)
	scores := make([]float64, len(texts))
	if len(queryTerms) == 0 {
		return scores, nil
	}
	for i, text := range texts {
		scores[i] = termOverlap(queryTerms, termSet(text))
	}
	return scores, nil
}

func tokenize(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	filtered := tokens[:0]
	for _, token := range tokens {
		if len(token) > 2 && !stopwords[token] {
			filtered = append(filtered, token)
		}
	}
	return filtered
}

func termSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, t := range tokenize(text) {
		set[t] = struct{}{}
	}
	return set
}

// termOverlap is the fraction of query terms present in the document.
func termOverlap(query, doc map[string]struct{}) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for term := range query {
		if _, ok := doc[term]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

var stopwords = map[string]bool{
	"the": true, "and": true, "but": true, "for": true, "with": true, "from": true,
	"was": true, "are": true, "been": true, "being": true, "have": true, "has": true,
	"had": true, "does": true, "did": true, "will": true, "would": true, "could": true,
	"should": true, "may": true, "might": true, "can": true, "this": true, "that": true,
	"these": true, "those": true, "you": true, "she": true, "they": true, "what": true,
	"which": true, "who": true, "when": true, "where": true, "why": true, "how": true,
}
