package chunker

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/fyrsmithlabs/ragd/internal/logging"
	"github.com/pkoukk/tiktoken-go"
	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
	"go.uber.org/zap"
)

// Tokenizer counts model tokens in a piece of text.
type Tokenizer interface {
	Count(text string) int
}

// BasicTokenizer counts tokens the way a BERT-style pre-tokenizer splits
// text: whitespace separates words, and every punctuation mark and CJK
// ideograph is a token of its own. It needs no vocabulary file, so counts
// are a lower bound on the wordpiece count of the embedding model. It is only
// used when the model's tokenizer.json cannot be loaded.
type BasicTokenizer struct{}

// Count implements Tokenizer.
func (BasicTokenizer) Count(text string) int {
	n := 0
	inWord := false
	for _, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			inWord = false
		case isPunct(r) || isCJK(r):
			n++
			inWord = false
		default:
			if !inWord {
				n++
				inWord = true
			}
		}
	}
	return n
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r)
}

// TiktokenTokenizer counts BPE tokens with an OpenAI encoding.
type TiktokenTokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenTokenizer loads the named encoding (e.g. cl100k_base). The BPE
// ranks are fetched once and cached under TIKTOKEN_CACHE_DIR.
func NewTiktokenTokenizer(encoding string) (*TiktokenTokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading tiktoken encoding %q: %w", encoding, err)
	}
	return &TiktokenTokenizer{enc: enc}, nil
}

// Count implements Tokenizer.
func (t *TiktokenTokenizer) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// WordPieceTokenizer counts tokens with the embedding model's own
// tokenizer.json, so chunk budgets match what the model sees.
type WordPieceTokenizer struct {
	tk *tokenizer.Tokenizer
}

// NewWordPieceTokenizer wraps tk. Truncation and padding are switched off so
// counts are not capped at the model's sequence length.
func NewWordPieceTokenizer(tk *tokenizer.Tokenizer) *WordPieceTokenizer {
	tk.WithTruncation(nil)
	tk.WithPadding(nil)
	return &WordPieceTokenizer{tk: tk}
}

// LoadWordPieceTokenizer reads a tokenizer.json file.
func LoadWordPieceTokenizer(path string) (*WordPieceTokenizer, error) {
	tk, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading tokenizer %q: %w", path, err)
	}
	return NewWordPieceTokenizer(tk), nil
}

// Count implements Tokenizer. Special tokens are not counted.
func (w *WordPieceTokenizer) Count(text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	enc, err := w.tk.EncodeSingle(text)
	if err != nil {
		return BasicTokenizer{}.Count(text)
	}
	return enc.Len()
}

// TokenizerOptions selects and locates a tokenizer.
type TokenizerOptions struct {
	Name     string // wordpiece or tiktoken
	Encoding string // tiktoken encoding
	// Path is a tokenizer.json file. When empty the file is resolved from
	// Model, a Hugging Face model id or a local model directory.
	Path  string
	Model string
}

// NewTokenizer builds the configured tokenizer. A wordpiece tokenizer whose
// vocabulary cannot be found falls back to BasicTokenizer with a warning.
func NewTokenizer(opts TokenizerOptions, logger *logging.Logger) (Tokenizer, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	switch strings.ToLower(opts.Name) {
	case "", "wordpiece":
		tok, err := resolveWordPiece(opts)
		if err != nil {
			logger.Warn(context.Background(), "wordpiece vocabulary unavailable, token counts are approximate",
				zap.String("model", opts.Model),
				zap.String("path", opts.Path),
				zap.Error(err),
			)
			return BasicTokenizer{}, nil
		}
		return tok, nil
	case "tiktoken":
		return NewTiktokenTokenizer(opts.Encoding)
	default:
		return nil, fmt.Errorf("unknown tokenizer %q", opts.Name)
	}
}

func resolveWordPiece(opts TokenizerOptions) (*WordPieceTokenizer, error) {
	path := opts.Path
	if path == "" {
		if opts.Model == "" {
			return nil, fmt.Errorf("no tokenizer path or model configured")
		}
		resolved, err := tokenizer.CachedPath(opts.Model, "tokenizer.json")
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	return LoadWordPieceTokenizer(path)
}
