// Package chunker splits extracted document text into token-bounded chunks.
//
// Three strategies are supported, fixed when the Chunker is built:
//
//   - sentence: greedy packing of ". "-separated sentences under MaxTokens
//   - overlap: sliding word windows of MaxTokens words sharing Overlap words
//   - paragraph: one chunk per non-blank line
//
// Output is deterministic for identical input and settings.
package chunker

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/ragd/internal/config"
	"github.com/fyrsmithlabs/ragd/internal/logging"
)

// ErrInvalidParams is returned for unusable strategy parameters.
var ErrInvalidParams = errors.New("invalid chunking parameters")

// Chunker splits text with one configured strategy.
type Chunker struct {
	strategy  string
	maxTokens int
	overlap   int
	tokenizer Tokenizer
}

// New creates a Chunker. tokenizer may be nil for the overlap and paragraph
// strategies, which do not count model tokens.
func New(strategy string, maxTokens, overlap int, tokenizer Tokenizer) (*Chunker, error) {
	switch strategy {
	case config.StrategySentence, config.StrategyOverlap, config.StrategyParagraph:
	default:
		return nil, fmt.Errorf("%w: unknown strategy %q", ErrInvalidParams, strategy)
	}
	if maxTokens <= 0 {
		return nil, fmt.Errorf("%w: max_tokens must be positive, got %d", ErrInvalidParams, maxTokens)
	}
	if strategy == config.StrategyOverlap && (overlap < 0 || overlap >= maxTokens) {
		return nil, fmt.Errorf("%w: overlap must be in [0, %d), got %d", ErrInvalidParams, maxTokens, overlap)
	}
	if tokenizer == nil {
		tokenizer = BasicTokenizer{}
	}
	return &Chunker{strategy: strategy, maxTokens: maxTokens, overlap: overlap, tokenizer: tokenizer}, nil
}

// FromConfig builds a Chunker and its tokenizer from the chunking section.
// model is the embedding model whose vocabulary sizes wordpiece chunks.
func FromConfig(cfg config.ChunkingConfig, model string, logger *logging.Logger) (*Chunker, error) {
	tok, err := NewTokenizer(TokenizerOptions{
		Name:     cfg.Tokenizer,
		Encoding: cfg.Encoding,
		Path:     cfg.TokenizerPath,
		Model:    model,
	}, logger)
	if err != nil {
		return nil, err
	}
	return New(cfg.Strategy, cfg.MaxTokens, cfg.Overlap, tok)
}

// Strategy returns the configured strategy name.
func (c *Chunker) Strategy() string {
	return c.strategy
}

// Chunk splits text. It returns an empty slice only for empty or
// whitespace-only input.
func (c *Chunker) Chunk(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	switch c.strategy {
	case config.StrategyOverlap:
		return c.byOverlap(text)
	case config.StrategyParagraph:
		return byParagraph(text)
	default:
		return c.bySentence(text)
	}
}

// bySentence packs sentences while the token count of the joined chunk stays
// within maxTokens. A sentence that alone exceeds the budget is emitted as
// its own chunk.
func (c *Chunker) bySentence(text string) []string {
	sentences := strings.Split(text, ". ")
	chunks := make([]string, 0, len(sentences))
	current := make([]string, 0, 8)

	for _, sentence := range sentences {
		tentative := strings.Join(append(current, sentence), " ")
		if c.tokenizer.Count(tentative) <= c.maxTokens {
			current = append(current, sentence)
			continue
		}
		if len(current) > 0 {
			chunks = append(chunks, strings.Join(current, " "))
		}
		current = append(current[:0], sentence)
	}
	if len(current) > 0 {
		chunks = append(chunks, strings.Join(current, " "))
	}
	return chunks
}

// byOverlap emits windows of maxTokens words starting every
// maxTokens-overlap words. The last window may be shorter.
func (c *Chunker) byOverlap(text string) []string {
	words := strings.Fields(text)
	step := c.maxTokens - c.overlap
	chunks := make([]string, 0, len(words)/step+1)
	for start := 0; start < len(words); start += step {
		end := start + c.maxTokens
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

func byParagraph(text string) []string {
	lines := strings.Split(text, "\n")
	chunks := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			chunks = append(chunks, line)
		}
	}
	return chunks
}
